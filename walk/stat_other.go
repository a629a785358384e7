//go:build !unix

package walk

import (
	"os"
	"time"
)

// rawStat mirrors stat_unix.go's shape so walk.go never has to branch on
// platform. Non-unix builds get only what os.FileInfo exposes directly:
// no inode, device or link count, so hardlink classification and
// same-filesystem detection are both unconditionally disabled.
type rawStat struct {
	Dev    uint64
	Ino    uint64
	Nlink  uint64
	Mode   uint32
	UID    uint32
	GID    uint32
	MTime  time.Time
	Size   uint64
	Blocks uint64
}

func statFromFileInfo(fi os.FileInfo) (rawStat, bool) {
	return rawStat{
		Nlink:  1,
		MTime:  fi.ModTime(),
		Size:   uint64(fi.Size()),
		Blocks: (uint64(fi.Size()) + 511) / 512,
	}, true
}
