package entry

// LinkKey identifies an inode within a single scan: the small device id
// plus the inode number reported by stat.
type LinkKey struct {
	DevID int32
	Ino   uint64
}

// LinkTable is the transient (dev_id, ino) -> observed-count mapping used
// during a single scan or import to implement the two-phase hardlink
// accounting protocol of §4.3:
//
//  1. Observe: every time a link is appended to its parent, record it here
//     instead of adding its contribution to ancestor aggregates right away.
//  2. Finalize: once, at the end of the scan/import, walk every recorded
//     occurrence and add size/nlink and blocks/nlink to its ancestor chain.
//
// A LinkTable is scoped to one scan; it is discarded once Finalize runs.
type LinkTable struct {
	occurrences map[LinkKey][]*Entry
}

// NewLinkTable returns an empty table.
func NewLinkTable() *LinkTable {
	return &LinkTable{occurrences: make(map[LinkKey][]*Entry)}
}

// Observe records that a link entry was appended to the tree. e.Ino and
// e.NLink must already be set.
func (t *LinkTable) Observe(devID int32, e *Entry) {
	key := LinkKey{DevID: devID, Ino: e.Ino}
	t.occurrences[key] = append(t.occurrences[key], e)
}

// Count returns how many times key has been observed so far in this scan.
func (t *LinkTable) Count(key LinkKey) int {
	return len(t.occurrences[key])
}

// Finalize distributes every observed link's contribution across its
// ancestor chain and empties the table. For a link observed k times with
// reported nlink n: if k == n the inode was fully observed within this
// scan's root; if k < n, occurrences outside the scanned subtree were
// never seen and the displayed shared size remains an approximation, as
// documented in spec.md's non-goals.
func (t *LinkTable) Finalize() {
	for _, occs := range t.occurrences {
		for _, e := range occs {
			if e.NLink == 0 {
				continue
			}
			AddStats(e, e.Size/e.NLink, e.Blocks/e.NLink)
		}
	}
	t.occurrences = make(map[LinkKey][]*Entry)
}
