// Package monitoring carries the redirectable diagnostic logger used on the
// tracker's per-report and per-estimate paths.
package monitoring

import "log"

// Logf is the package-level diagnostic logger, defaulting to log.Printf.
// Tests and embedding code can redirect or mute it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
