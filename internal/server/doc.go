// Package server implements the HTTP API: wake word sessions, fixed-length
// recordings, spoken and typed questions, and monitoring endpoints.
package server
