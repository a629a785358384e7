// Package walk implements the directory walker (§4.5), the ScanDir
// refresh merger (§4.6), and the scan context (§4.2) that ties either one
// to a memory sink or a streaming dump.Writer sink.
package walk

import (
	"fmt"

	"github.com/rclone/duscan/config"
	"github.com/rclone/duscan/dump"
	"github.com/rclone/duscan/entry"
	"github.com/rclone/duscan/exclude"
	"github.com/rclone/duscan/pathbuf"
	"github.com/rclone/duscan/scanlog"
)

// Context is the scan context of §4.2: the state shared by a single live
// walk or refresh, pointed at exactly one of a memory tree or a
// dump.Writer. Imports do not use it; package dump parses on its own.
type Context struct {
	Config config.Config
	DevReg *entry.DeviceRegistry
	Links  *entry.LinkTable
	Path   *pathbuf.Buffer
	KernFS *exclude.KernFSCache

	// Memory sink: ancestor stack of dirs currently open, with a parallel
	// stack of ScanDir mergers (nil entries when this isn't a refresh).
	parents  []*entry.Entry
	scanDirs []*ScanDir
	refresh  bool

	// File sink: no ancestor entries are kept (nesting is expressed by
	// the writer's own bracket depth), but the device id of whichever
	// directory is currently open is still needed to decide whether a
	// nested dir's own "dev" key should be written.
	writer   *dump.Writer
	devStack []int32

	// Progress/error state read by the UI collaborator (§4.2, §7).
	ItemsSeen  int64
	LastError  string
	FatalError error

	// UICallback is invoked periodically; returning true requests
	// cancellation. Nil means "never interrupt".
	UICallback func() bool
}

// NewMemoryContext starts a context that builds an in-memory tree rooted
// at root. If root is already populated (a refresh), pass refresh=true so
// each directory gets a ScanDir merger instead of being overwritten.
func NewMemoryContext(cfg config.Config, root *entry.Entry, refresh bool) *Context {
	ctx := &Context{
		Config:  cfg,
		DevReg:  entry.NewDeviceRegistry(),
		Links:   entry.NewLinkTable(),
		Path:    pathbuf.New(root.Name),
		KernFS:  exclude.NewKernFSCache(),
		parents: []*entry.Entry{root},
		refresh: refresh,
	}
	if refresh {
		ctx.scanDirs = []*ScanDir{NewScanDir(root)}
	} else {
		ctx.scanDirs = []*ScanDir{nil}
	}
	return ctx
}

// NewFileContext starts a context that streams directly to w instead of
// building a tree; used by ScanRoot when a writer is supplied (§6).
// ImportDump's writer path goes through dump.ConvertToDump instead.
func NewFileContext(cfg config.Config, w *dump.Writer, rootName string) *Context {
	return &Context{
		Config: cfg,
		DevReg: entry.NewDeviceRegistry(),
		Links:  entry.NewLinkTable(),
		Path:   pathbuf.New(rootName),
		KernFS: exclude.NewKernFSCache(),
		writer: w,
	}
}

// Memory reports whether this context builds an in-memory tree.
func (c *Context) Memory() bool { return c.writer == nil }

func (c *Context) currentParent() *entry.Entry {
	return c.parents[len(c.parents)-1]
}

func (c *Context) currentScanDir() *ScanDir {
	return c.scanDirs[len(c.scanDirs)-1]
}

func (c *Context) currentDevID() int32 {
	if c.Memory() {
		return c.currentParent().DevID
	}
	if len(c.devStack) == 0 {
		return -1 // sentinel: never equal to a real interned device id
	}
	return c.devStack[len(c.devStack)-1]
}

// tick advances ItemsSeen and, every pace entries (1 for a live walk),
// invokes UICallback. It returns true if the UI asked to quit.
func (c *Context) tick(pace int64) bool {
	c.ItemsSeen++
	if c.UICallback == nil {
		return false
	}
	if pace <= 1 || c.ItemsSeen%pace == 0 {
		return c.UICallback()
	}
	return false
}

// enterDir opens dir as the new current directory: for a memory sink it
// becomes the new top of the ancestor stack (with a ScanDir merger seeded
// from its existing children if this is a refresh); for a file sink its
// metadata object is written and a new array is opened.
func (c *Context) enterDir(dir *entry.Entry) error {
	if c.Memory() {
		c.parents = append(c.parents, dir)
		if c.refresh {
			c.scanDirs = append(c.scanDirs, NewScanDir(dir))
		} else {
			c.scanDirs = append(c.scanDirs, nil)
		}
		return nil
	}
	parentDevID := int32(-1)
	if len(c.devStack) > 0 {
		parentDevID = c.devStack[len(c.devStack)-1]
	}
	if err := c.writer.EnterDir(dir, parentDevID, c.Config.Extended); err != nil {
		return err
	}
	c.devStack = append(c.devStack, dir.DevID)
	return nil
}

// leaveDir closes the directory opened by the matching enterDir. For a
// refresh, any child not re-observed during the walk is pruned here.
func (c *Context) leaveDir() error {
	if c.Memory() {
		if sd := c.currentScanDir(); sd != nil {
			sd.Final()
		}
		c.parents = c.parents[:len(c.parents)-1]
		c.scanDirs = c.scanDirs[:len(c.scanDirs)-1]
		return nil
	}
	c.devStack = c.devStack[:len(c.devStack)-1]
	return c.writer.LeaveDir()
}

// addDir constructs a freshly observed subdirectory's entry, either
// linking it into the current directory (memory sink) or leaving it for
// the caller to open (file sink). It does not itself open the
// directory as the current one: visitDir's own enterDir call is the
// single enter/leave pair for both sink kinds, matching the memory
// sink's existing balance.
func (c *Context) addDir(name string, devID int32) (*entry.Entry, error) {
	if c.Memory() {
		parent := c.currentParent()
		if sd := c.currentScanDir(); sd != nil {
			if existing, ok := sd.Take(name); ok && sameIdentity(existing, entry.KindDir, devID, 0) {
				existing.Err, existing.SubErr = false, false
				return existing, nil
			} else if ok {
				entry.DelStatsRec(existing)
			}
		}
		dir := entry.NewDir(name)
		dir.DevID = devID
		entry.AddChild(parent, dir)
		return dir, nil
	}
	dir := entry.NewDir(name)
	dir.DevID = devID
	return dir, nil
}

// addStat records a regular, non-directory observation (a plain file or a
// hardlink candidate).
func (c *Context) addStat(e *entry.Entry) error {
	if c.Memory() {
		parent := c.currentParent()
		if sd := c.currentScanDir(); sd != nil {
			if existing, ok := sd.Take(e.Name); ok && sameIdentity(existing, e.Kind, 0, e.Ino) {
				c.reconcileInPlace(existing, e)
				return nil
			} else if ok {
				entry.DelStatsRec(existing)
			}
		}
		entry.AddChild(parent, e)
		if e.Kind == entry.KindLink {
			c.Links.Observe(c.currentDevID(), e)
		} else {
			entry.AddStats(e, e.Size, e.Blocks)
		}
		return nil
	}
	return c.writer.WriteChild(e, c.currentDevID(), c.Config.Extended)
}

// addSpecial records a zero-contribution placeholder (§4.4): excluded,
// err, other_fs, or kernfs.
func (c *Context) addSpecial(e *entry.Entry) error {
	if c.Memory() {
		parent := c.currentParent()
		if sd := c.currentScanDir(); sd != nil {
			if existing, ok := sd.Take(e.Name); ok && existing.Kind == entry.KindFile {
				// §4.6's optimization: reuse the node, zero its
				// contribution, replace its flags.
				entry.DelStats(existing, existing.Size, existing.Blocks)
				*existing = entry.Entry{
					Kind: entry.KindFile, Name: existing.Name,
					Parent: existing.Parent, Next: existing.Next,
					NotReg: e.NotReg, Err: e.Err, OtherFS: e.OtherFS,
					KernFS: e.KernFS, Excluded: e.Excluded,
				}
				if existing.Err {
					entry.SetErr(existing)
				}
				return nil
			} else if ok {
				entry.DelStatsRec(existing)
			}
		}
		entry.AddChild(parent, e)
		if e.Err {
			entry.SetErr(e)
		}
		return nil
	}
	return c.writer.WriteChild(e, c.currentDevID(), c.Config.Extended)
}

// reconcileInPlace mutates existing to reflect fresh's observation,
// keeping ancestor aggregates consistent via del_stats/add_stats deltas
// and taking the maximum of old and new mtime (§4.6's monotone guard).
func (c *Context) reconcileInPlace(existing, fresh *entry.Entry) {
	if existing.Kind == entry.KindLink {
		// Links are reconciled through the link table's own finalize
		// pass rather than an immediate add_stats delta, since their
		// ancestor contribution depends on nlink, not on the raw
		// size/blocks difference. The prior contribution added by the
		// last Finalize was size/nlink, not the raw size, so that's what
		// has to come back out here or an unchanged refresh would leak
		// size − size/nlink out of every ancestor on each pass.
		if existing.NLink != 0 {
			entry.DelStats(existing, existing.Size/existing.NLink, existing.Blocks/existing.NLink)
		}
		existing.Size, existing.Blocks = fresh.Size, fresh.Blocks
		existing.Ino, existing.NLink = fresh.Ino, fresh.NLink
		c.Links.Observe(c.currentDevID(), existing)
	} else {
		entry.DelStats(existing, existing.Size, existing.Blocks)
		existing.Size, existing.Blocks = fresh.Size, fresh.Blocks
		entry.AddStats(existing, existing.Size, existing.Blocks)
	}
	existing.NotReg = fresh.NotReg
	existing.OtherFS = fresh.OtherFS
	existing.KernFS = fresh.KernFS
	existing.Excluded = fresh.Excluded
	existing.Err = fresh.Err
	if fresh.Err {
		entry.SetErr(existing)
	}
	if fresh.Ext != nil {
		if existing.Ext == nil {
			existing.Ext = fresh.Ext
		} else {
			if fresh.Ext.MTime.After(existing.Ext.MTime) {
				existing.Ext.MTime = fresh.Ext.MTime
			}
			existing.Ext.UID, existing.Ext.GID, existing.Ext.Mode = fresh.Ext.UID, fresh.Ext.GID, fresh.Ext.Mode
			existing.Ext.XattrCount = fresh.Ext.XattrCount
		}
	}
}

// FinalizeRoot closes the outermost directory's ScanDir merger, pruning
// any child not re-observed during the walk. Every directory entered via
// enterDir gets this from the matching leaveDir automatically; the
// context's starting directory (the root of a scan, or the subtree root
// of a refresh) never goes through enterDir, so RefreshSubtree calls this
// once by hand after the walk returns. ScanRoot does not call it: a fresh
// scan's starting directory has no merger. A no-op for a file sink, which
// has no ScanDir mergers.
func (c *Context) FinalizeRoot() {
	if !c.Memory() {
		return
	}
	if sd := c.scanDirs[0]; sd != nil {
		sd.Final()
	}
}

// fail records a fatal condition on the context (§7's "fatal scan
// errors"): the caller's walk should stop and no partial tree should be
// treated as complete.
func (c *Context) fail(format string, args ...any) error {
	c.FatalError = fmt.Errorf(format, args...)
	scanlog.Warnf(c.Path.String(), "%v", c.FatalError)
	return c.FatalError
}

// BeginRoot opens root as the context's outermost directory. For a memory
// sink root is already the current directory (seeded by
// NewMemoryContext), so this is a no-op; for a file sink it writes the
// dump's header and the root's own array-opening object.
func (c *Context) BeginRoot(meta dump.Metadata, root *entry.Entry) error {
	if c.Memory() {
		return nil
	}
	if err := c.writer.Begin(meta); err != nil {
		return err
	}
	return c.enterDir(root)
}

// EndRoot closes whatever BeginRoot opened: a no-op for a memory sink, or
// the matching LeaveDir plus a final Finish/flush for a file sink.
func (c *Context) EndRoot() error {
	if c.Memory() {
		return nil
	}
	if err := c.leaveDir(); err != nil {
		return err
	}
	return c.writer.Finish()
}
