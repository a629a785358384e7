package walk

import "os"

// DeviceOf returns the raw device id backing fi, or 0 if the platform
// doesn't expose one (see stat_other.go). It lets a caller building the
// root Entry before the first Walk call intern the same device id that
// visitDir will later compare every child against (Walk's doc comment
// explains why that seeding has to happen before the walk starts).
func DeviceOf(fi os.FileInfo) uint64 {
	raw, _ := statFromFileInfo(fi)
	return raw.Dev
}
