package walk

import "github.com/rclone/duscan/entry"

// ScanDir is the per-directory merge table of §4.6: on refresh, every
// existing child of a directory is indexed by name before the fresh walk
// of that directory begins. Each child observed again during the walk is
// taken out of the table (and reconciled in place); whatever is left once
// the directory has been fully walked has disappeared from disk and is
// pruned.
type ScanDir struct {
	byName map[string]*entry.Entry
}

// NewScanDir indexes dir's current children by name.
func NewScanDir(dir *entry.Entry) *ScanDir {
	s := &ScanDir{byName: make(map[string]*entry.Entry, dir.Items)}
	for _, c := range dir.Children() {
		s.byName[c.Name] = c
	}
	return s
}

// Take removes and returns the existing child named name, if any observed
// child of dir still had that name.
func (s *ScanDir) Take(name string) (*entry.Entry, bool) {
	e, ok := s.byName[name]
	if ok {
		delete(s.byName, name)
	}
	return e, ok
}

// Final prunes every entry that was never re-observed: each is unlinked
// from dir and its contribution subtracted from every ancestor.
func (s *ScanDir) Final() {
	for _, e := range s.byName {
		entry.DelStatsRec(e)
	}
	s.byName = nil
}

// sameIdentity reports whether existing can be mutated in place to
// reflect fresh, per §4.6: same kind, same device for dirs, same inode
// for links. Anything else must be deleted and recreated.
func sameIdentity(existing *entry.Entry, kind entry.Kind, devID int32, ino uint64) bool {
	if existing.Kind != kind {
		return false
	}
	switch kind {
	case entry.KindDir, entry.KindRoot:
		// devID is freshly interned by RefreshSubtree's own DeviceRegistry,
		// which starts empty on every refresh, so this comparison is only
		// meaningful when device ids get assigned in the same order both
		// times (true for a single-device tree, not guaranteed otherwise).
		return existing.DevID == devID
	case entry.KindLink:
		return existing.Ino == ino
	default:
		return true
	}
}
