// Package duscan implements the scanning/indexing core of spec.md §6: the
// four external entry points a UI or CLI collaborator drives — scan_root,
// refresh_subtree, import_dump and export_dump (export is implicit in
// scan_root/import_dump's writer argument; there is no standalone entry
// point for re-exporting an already in-memory tree, since ScanRoot and
// ImportDump cover every case spec.md §6 names).
package duscan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rclone/duscan/config"
	"github.com/rclone/duscan/dump"
	"github.com/rclone/duscan/entry"
	"github.com/rclone/duscan/walk"
)

// Sentinel errors for the conditions a collaborator may want to
// distinguish with errors.Is, mirroring errLinksAndCopyLinks /
// errLinksNeedsSuffix in backend/local/local.go.
var (
	// ErrNotDirectory is returned by ScanRoot when path does not resolve
	// to a directory (§6: "rejects if not a directory").
	ErrNotDirectory = errors.New("duscan: scan root is not a directory")
	// ErrFatalScan wraps a fatal scan error (§7.2): the root directory
	// itself could not be opened, so no partial tree was committed.
	ErrFatalScan = errors.New("duscan: fatal scan error")
)

// rawDev is a thin wrapper kept local to this file so every call site
// reads the same way; it just forwards to walk.DeviceOf.
func rawDev(fi os.FileInfo) uint64 { return walk.DeviceOf(fi) }

// ScanRoot walks the directory tree at path and either returns the
// resulting in-memory Entry tree (w == nil) or streams the dump format
// directly to w without ever materializing the tree (w != nil), per
// §4.9's "no intermediate representation" requirement for the export
// path. uiCallback, if non-nil, is invoked once per walked entry
// (cfg.ScanUI and cfg.UpdateDelay are not consulted); returning true from
// it requests cooperative cancellation.
func ScanRoot(path string, cfg config.Config, w io.Writer, uiCallback func() bool) (*entry.Entry, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root %q: %w", path, err)
	}
	fi, err := os.Lstat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat scan root %q: %w", absPath, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrNotDirectory, absPath)
	}

	rootName := filepath.Base(absPath)
	var ctx *walk.Context
	var root *entry.Entry
	if w == nil {
		root = entry.NewRoot(rootName)
		ctx = walk.NewMemoryContext(cfg, root, false)
	} else {
		ctx = walk.NewFileContext(cfg, dump.NewWriter(w), rootName)
		root = entry.NewRoot(rootName)
	}
	root.DevID = ctx.DevReg.ID(rawDev(fi))
	ctx.UICallback = uiCallback

	meta := dump.Metadata{ProgName: progName, ProgVer: progVersion, Timestamp: nowFunc()}
	if err := ctx.BeginRoot(meta, root); err != nil {
		return nil, fmt.Errorf("begin scan of %q: %w", absPath, err)
	}
	err = walk.Walk(ctx, absPath, root, true)
	if ctx.FatalError != nil {
		return nil, fmt.Errorf("%w: %w", ErrFatalScan, ctx.FatalError)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.EndRoot(); err != nil {
		return nil, fmt.Errorf("finish scan of %q: %w", absPath, err)
	}
	if ctx.Memory() {
		ctx.Links.Finalize()
		return root, nil
	}
	return nil, nil
}

// RefreshSubtree re-walks the directory underlying dirEntry (the last
// element of parents, an ancestor chain from the tree's root down to the
// directory to refresh) and reconciles its children in place (§4.6):
// entries no longer present are pruned, entries still present keep their
// identity, and new entries are added. rootPath is the filesystem path
// that was originally passed to ScanRoot to build this tree; it is
// rejoined with every parents[1:] name to reconstruct the directory's
// real path, since Entry itself only stores a relative Name.
func RefreshSubtree(rootPath string, parents []*entry.Entry, cfg config.Config, uiCallback func() bool) error {
	if len(parents) == 0 {
		return fmt.Errorf("refresh: empty ancestor chain")
	}
	dirPath := rootPath
	for _, p := range parents[1:] {
		dirPath = filepath.Join(dirPath, p.Name)
	}
	dirEntry := parents[len(parents)-1]

	ctx := walk.NewMemoryContext(cfg, dirEntry, true)
	fi, err := os.Lstat(dirPath)
	if err != nil {
		return fmt.Errorf("refresh: stat %q: %w", dirPath, err)
	}
	dirEntry.DevID = ctx.DevReg.ID(rawDev(fi))
	ctx.UICallback = uiCallback

	err = walk.Walk(ctx, dirPath, dirEntry, true)
	if ctx.FatalError != nil {
		return fmt.Errorf("%w: %w", ErrFatalScan, ctx.FatalError)
	}
	if err != nil {
		return err
	}
	// dirEntry's own ScanDir merger, seeded by NewMemoryContext, is never
	// closed by a leaveDir call the way every directory found during the
	// walk is (those get matched enterDir/leaveDir pairs from visitDir);
	// dirEntry is the walk's starting frame, so its merger has to be
	// finalized by hand here.
	ctx.FinalizeRoot()
	ctx.Links.Finalize()
	return nil
}

// ImportDump reads the dump-format document at pathOrDash ("-" means
// stdin). If w is nil, it builds and returns the in-memory tree
// (dump_import's in-memory mode); if w is non-nil, it streams a
// re-exported copy to w without ever building the tree (dump_import's
// convert-only mode, e.g. the CLI's own import|export round trip or a
// format-version upgrade).
func ImportDump(pathOrDash string, w io.Writer, cfg config.Config, uiCallback func() bool) (*entry.Entry, error) {
	r, err := openDumpSource(pathOrDash)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if w == nil {
		root, err := dump.ParseDocumentWithProgress(r, uiCallback)
		if err != nil {
			return nil, fmt.Errorf("import %q: %w", pathOrDash, err)
		}
		return root, nil
	}

	meta := dump.Metadata{ProgName: progName, ProgVer: progVersion, Timestamp: nowFunc()}
	writer := dump.NewWriter(w)
	if err := dump.ConvertToDumpWithProgress(r, writer, meta, cfg.Extended, uiCallback); err != nil {
		return nil, fmt.Errorf("import %q: %w", pathOrDash, err)
	}
	return nil, nil
}

func openDumpSource(pathOrDash string) (io.ReadCloser, error) {
	if pathOrDash == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(pathOrDash)
	if err != nil {
		return nil, fmt.Errorf("open dump %q: %w", pathOrDash, err)
	}
	return f, nil
}
