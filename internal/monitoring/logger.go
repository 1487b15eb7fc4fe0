// Package monitoring holds the diagnostic logger shared by the motion packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Tagged returns a logger that prefixes every message with "[tag] ".
// The returned function resolves Logf at call time, so a later SetLogger
// still takes effect for loggers created earlier.
func Tagged(tag string) func(format string, v ...interface{}) {
	prefix := "[" + tag + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

// Warnf logs a warning for the named component.
func Warnf(component, format string, v ...interface{}) {
	Logf("["+component+"] WARNING: "+format, v...)
}
