// Package monitoring holds the process-wide diagnostic logger shared by the
// kiosk shell and the serial worker.
package monitoring

import (
	"io"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger so tests can capture or mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// UseWriter routes Logf to w with the given line prefix. The serial worker
// uses this to keep stdout free for protocol frames.
func UseWriter(w io.Writer, prefix string) {
	l := log.New(w, prefix, log.LstdFlags|log.Lmsgprefix)
	Logf = l.Printf
}
