// Package dump implements the versioned JSON dump format of spec.md §4.7
// and §4.8: a streaming exporter that never buffers more than one entry at
// a time, and a hand-rolled recursive-descent importer that tolerates
// non-UTF-8 path bytes and avoids buffering the whole document.
//
// Neither direction uses encoding/json: the exporter needs byte-exact
// control over string escaping (including raw bytes >= 0x80, which
// encoding/json would refuse to round-trip through a Go string assumed to
// be UTF-8), and the importer needs to tolerate the same thing on the way
// in while never holding more than a small buffered window of the input.
package dump

import "time"

// Format version. MAJOR is bumped only for a wire-incompatible change;
// MINOR tracks additive, backward-compatible key additions.
const (
	Major = 1
	Minor = 2
)

// Metadata is the dump's METADATA_OBJ (§4.7).
type Metadata struct {
	ProgName  string
	ProgVer   string
	Timestamp time.Time
}

// Object keys, named once here so the writer and reader can't drift.
const (
	keyName      = "name"
	keyASize     = "asize"
	keyDSize     = "dsize"
	keyDev       = "dev"
	keyIno       = "ino"
	keyHlnkc     = "hlnkc"
	keyNlink     = "nlink"
	keyNotreg    = "notreg"
	keyReadError = "read_error"
	keyExcluded  = "excluded"
	keyUID       = "uid"
	keyGID       = "gid"
	keyMode      = "mode"
	keyMtime     = "mtime"
	keyXattrs    = "xattrs"

	keyProgName  = "progname"
	keyProgVer   = "progver"
	keyTimestamp = "timestamp"
)

// excludedFromSymlink is the "frmlnk" spelling of the "excluded" key. Kept
// here (rather than on the entry package) since it is a dump-only wire
// spelling the in-memory model doesn't distinguish from a pattern
// exclusion: the reader maps it to entry.ExcludedPattern, and the writer,
// which spells values with entry.Excluded.String, never emits it.
const excludedFromSymlink = "frmlnk"
