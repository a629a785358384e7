//go:build !openbsd && !plan9

package walk

import (
	"sync/atomic"
	"syscall"

	"github.com/pkg/xattr"
	"github.com/rclone/duscan/entry"
	"github.com/rclone/duscan/scanlog"
)

// xattrSupported tracks, process-wide, whether this filesystem has
// already told us it doesn't support extended attributes; the same
// disable-after-first-failure pattern as the teacher's Fs.xattrSupported,
// just without a per-backend receiver to hang it off of.
var xattrSupported atomic.Bool

func init() {
	xattrSupported.Store(xattr.XATTR_SUPPORTED)
}

func xattrIsNotSupported(err error) bool {
	xerr, ok := err.(*xattr.Error)
	if !ok {
		return false
	}
	if xerr.Err == syscall.EINVAL || xerr.Err == syscall.ENOTSUP || xerr.Err == xattr.ENOATTR {
		if xattrSupported.CompareAndSwap(true, false) {
			scanlog.Warnf(xerr.Path, "xattrs not supported - disabling: %v", err)
		}
		return true
	}
	return false
}

// extFromRaw builds the extended-metadata record for path, counting its
// user extended attributes via LList (no-follow, matching the rest of
// the walker's lstat-based treatment of the node itself).
func extFromRaw(raw rawStat, path string) *entry.Ext {
	ext := &entry.Ext{UID: raw.UID, GID: raw.GID, Mode: raw.Mode, MTime: raw.MTime}
	if !xattrSupported.Load() {
		return ext
	}
	list, err := xattr.LList(path)
	if err != nil {
		if !xattrIsNotSupported(err) {
			scanlog.Debugf(path, "failed to list xattrs: %v", err)
		}
		return ext
	}
	ext.XattrCount = len(list)
	return ext
}
