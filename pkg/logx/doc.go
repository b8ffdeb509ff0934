// Package logx wraps zerolog for revertbot.
//
// Console output is human readable with a short caller; the optional file
// sink is JSON. Loggers derived from a Service survive config reloads.
package logx
