// Package config provides configuration loading and validation for the voice front-end.
// It reads a YAML file over built-in defaults, expands environment references and
// validates every section before the service starts.
package config
