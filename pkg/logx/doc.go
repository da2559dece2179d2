// Package logx wraps zerolog behind a small, stable logging API.
//
// It provides ordered structured fields, derived loggers via With(),
// console and JSON-file sinks, and runtime level/output reconfiguration
// through Service.Apply without invalidating existing Logger values.
package logx
