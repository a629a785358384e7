// Package config models the knobs a collaborator (the CLI parser, the
// interactive browser) passes into the scanning core. The core never
// parses these itself (spec.md §6); this package only gives the
// collaborator-supplied values a typed home and, optionally, a way to
// bind them to a flag set built on the teacher's own CLI stack.
package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ScanUI names the progress display the collaborator runs. The core
// itself never renders anything and does not read this value: whenever a
// UI callback is supplied, the walker calls it once per entry and the
// importer once per 1024 entries, whatever ScanUI says.
type ScanUI int

const (
	// ScanUINone selects no progress display.
	ScanUINone ScanUI = iota
	// ScanUILine selects a single-line progress display.
	ScanUILine
	// ScanUIFull selects a full progress display.
	ScanUIFull
)

func (s ScanUI) String() string {
	switch s {
	case ScanUILine:
		return "line"
	case ScanUIFull:
		return "full"
	default:
		return "none"
	}
}

// Config is every input the scanning core needs from its collaborator,
// laid out the way the teacher's backend Options structs are: one
// exported field per knob, each with a doc comment explaining its effect,
// parsed by the caller rather than by this package.
type Config struct {
	// SameFS records any child (directory or not) whose device differs
	// from its parent directory's as an other-filesystem special instead
	// of recording or descending into it (§4.4 step 3).
	SameFS bool

	// FollowSymlinks re-stats symlinked entries following the link and
	// adopts the target's stat if it isn't itself a directory (§4.4 step 4).
	FollowSymlinks bool

	// ExcludeKernFS classifies directories on pseudo-filesystems (proc,
	// sysfs, cgroup, ...) as excluded (§4.4 step 5). Platform-gated: only
	// meaningful where statfs-style magic numbers are available.
	ExcludeKernFS bool

	// ExcludeCaches excludes directories carrying a recognized
	// CACHEDIR.TAG signature (§4.4 step 6).
	ExcludeCaches bool

	// ExcludePatterns is an ordered list of glob patterns matched against
	// the current path and each of its trailing-suffix rotations (§4.4
	// step 1).
	ExcludePatterns []string

	// Extended collects uid/gid/mode/mtime (and the xattr-count
	// enrichment of SPEC_FULL.md §B) for every entry.
	Extended bool

	// UpdateDelay is the collaborator's interval between UI progress
	// updates. The core does not read it; see ScanUI for the cadence at
	// which the walker and importer call out.
	UpdateDelay time.Duration

	// ScanUI selects the collaborator's progress display.
	ScanUI ScanUI
}

// RegisterFlags binds Config's fields onto fs, the way the teacher's
// cmd/ packages bind backend options onto a pflag.FlagSet built for
// cobra. The collaborator still owns calling fs.Parse.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&c.SameFS, "same-filesystem", c.SameFS, "don't cross filesystem boundaries")
	fs.BoolVar(&c.FollowSymlinks, "follow-symlinks", c.FollowSymlinks, "follow symbolic links")
	fs.BoolVar(&c.ExcludeKernFS, "exclude-kernfs", c.ExcludeKernFS, "exclude pseudo-filesystems (proc, sysfs, cgroup, ...)")
	fs.BoolVar(&c.ExcludeCaches, "exclude-caches", c.ExcludeCaches, "exclude directories tagged with a CACHEDIR.TAG")
	fs.StringSliceVar(&c.ExcludePatterns, "exclude", c.ExcludePatterns, "glob pattern to exclude, may be repeated")
	fs.BoolVar(&c.Extended, "extended", c.Extended, "collect uid/gid/mode/mtime for every entry")
	fs.DurationVar(&c.UpdateDelay, "update-delay", c.UpdateDelay, "interval between UI progress updates (not read by the scanning core)")
}
