//go:build openbsd || plan9

package walk

import "github.com/rclone/duscan/entry"

// extFromRaw on platforms where pkg/xattr has no implementation (matching
// xattr.go's own build constraint): uid/gid/mode/mtime are still
// collected, xattrs are not.
func extFromRaw(raw rawStat, path string) *entry.Ext {
	return &entry.Ext{UID: raw.UID, GID: raw.GID, Mode: raw.Mode, MTime: raw.MTime}
}
