// Package session keeps one listen loop per client session.
//
// Sessions are keyed by UUID and live in memory only. A background sweep
// removes sessions that finished their cycle and stayed idle past the
// configured timeout. With record-on-wake enabled, a session that hears its
// wake phrase records a follow-up question, answers it and keeps the
// exchange in its history.
package session
