// Package scanlog provides the core's logging surface.
//
// Every producer (walker, importer, ScanDir merger) logs through this
// package's Debugf/Warnf rather than taking a *logrus.Logger parameter
// everywhere, mirroring how the teacher's backends call the package-level
// fs.Debugf/fs.Errorf instead of threading a logger through every method.
// A collaborator that wants the logs routed elsewhere calls SetOutput or
// replaces L entirely before starting a scan.
package scanlog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// L is the logger every core package writes through. It defaults to a
// fresh logrus logger: stderr at Info level, so Debugf lines are dropped
// and Warnf lines are printed until it is reconfigured.
var L = logrus.New()

// SetOutput redirects where log lines go (e.g. to the UI's scrollback, or
// to io.Discard during tests).
func SetOutput(w io.Writer) {
	L.SetOutput(w)
}

// Debugf logs a routine, per-entry condition: a stat failure on an
// individual file, a refresh reconciliation note. These never abort a
// scan (see spec §7).
func Debugf(path, format string, args ...any) {
	L.WithField("path", path).Debugf(format, args...)
}

// Warnf logs a condition the UI collaborator likely wants to surface,
// such as disabling xattr support after the first unsupported-filesystem
// error.
func Warnf(path, format string, args ...any) {
	L.WithField("path", path).Warnf(format, args...)
}
