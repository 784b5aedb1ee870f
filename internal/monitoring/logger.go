// Package monitoring holds the diagnostic logger shared by the fuel layer
// pipeline, the batch runner and the command line tools.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose turns per-stage diagnostics on or off. It has no effect on
// any computed value.
func SetVerbose(on bool) { verbose.Store(on) }

// Verbose reports whether per-stage diagnostics are enabled.
func Verbose() bool { return verbose.Load() }

// Debugf logs through Logf only when verbose diagnostics are enabled.
func Debugf(format string, v ...interface{}) {
	if verbose.Load() {
		Logf(format, v...)
	}
}
