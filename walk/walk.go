package walk

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rclone/duscan/entry"
	"github.com/rclone/duscan/exclude"
	"github.com/rclone/duscan/scanlog"
)

// readdirBatch mirrors the teacher's own Readdirnames(1024) batching in
// backend/local's List(): large directories are read in chunks rather
// than materializing every name (and certainly every os.FileInfo) at
// once.
const readdirBatch = 1024

// Walk lists dirPath's children and, for each, applies the exclusion
// engine (§4.4) before recording it through ctx and recursing into
// subdirectories. dirEntry must already be the context's current
// directory (the caller is expected to have called ctx.enterDir before
// Walk and will call ctx.leaveDir after it returns), and its DevID must
// already be the interned id of dirPath's own device — the top-level
// caller stats the root once to seed this before the first Walk call;
// every subdirectory found thereafter gets it from visitDir. fatalOnOpenFail
// controls whether a failure to open dirPath itself aborts the whole scan
// (true only for the root) or merely marks dirEntry.Err and returns nil
// (false for every other directory, per §4.5's "abort iteration of that
// directory only").
func Walk(ctx *Context, dirPath string, dirEntry *entry.Entry, fatalOnOpenFail bool) error {
	fd, err := os.Open(dirPath)
	if err != nil {
		if fatalOnOpenFail {
			return ctx.fail("failed to open root directory %q: %w", dirPath, err)
		}
		entry.SetErr(dirEntry)
		ctx.LastError = dirPath
		scanlog.Debugf(dirPath, "failed to open directory: %v", err)
		return nil
	}
	defer fd.Close()

	for {
		names, err := fd.Readdirnames(readdirBatch)
		if err == io.EOF && len(names) == 0 {
			break
		}
		if err != nil && err != io.EOF {
			entry.SetErr(dirEntry)
			ctx.LastError = dirPath
			scanlog.Debugf(dirPath, "failed to read directory entries: %v", err)
			break
		}

		for _, name := range names {
			if quit := ctx.tick(1); quit {
				return nil
			}
			if err := ctx.visit(dirPath, dirEntry, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// visit runs one child of dirPath through the exclusion engine (§4.4) and
// records it, recursing into Walk if it turns out to be a real
// subdirectory.
func (c *Context) visit(dirPath string, dirEntry *entry.Entry, name string) error {
	childPath := filepath.Join(dirPath, name)
	c.Path.Push(name)
	defer c.Path.Pop()

	// Step 1: pattern exclusion, checked against the path and its
	// trailing-suffix rotations, before any syscall.
	if exclude.MatchesPattern(c.Path.String(), c.Config.ExcludePatterns) {
		return c.addSpecial(specialExcluded(name, entry.ExcludedPattern))
	}

	// Step 2: stat failure.
	fi, err := os.Lstat(childPath)
	if err != nil {
		c.LastError = c.Path.String()
		scanlog.Debugf(c.Path.String(), "stat failed: %v", err)
		return c.addSpecial(specialErr(name))
	}
	raw, _ := statFromFileInfo(fi)
	isSymlink := fi.Mode()&os.ModeSymlink != 0
	notReg := false
	disableHardlink := false

	// Step 4 (symlinks; checked here since it can swap in the target's
	// stat before the same-filesystem and directory checks run).
	if isSymlink {
		if c.Config.FollowSymlinks {
			target, terr := os.Stat(childPath)
			if terr != nil {
				c.LastError = c.Path.String()
				scanlog.Debugf(c.Path.String(), "broken symlink: %v", terr)
				return c.addSpecial(specialErr(name))
			}
			if target.IsDir() {
				// Symlinks to directories are never followed into, to
				// avoid cycles; keep the symlink's own stat.
				notReg = true
			} else {
				targetRaw, _ := statFromFileInfo(target)
				if targetRaw.Dev != raw.Dev {
					disableHardlink = true
				}
				raw, fi = targetRaw, target
			}
		} else {
			notReg = true
		}
	} else if !fi.IsDir() && !fi.Mode().IsRegular() {
		notReg = true
	}

	effectiveIsDir := !notReg && fi.IsDir()

	// Step 3: same-filesystem, applies to every kind of child.
	if c.Config.SameFS && raw.Dev != 0 && raw.Dev != parentDev(c, dirEntry) {
		return c.addSpecial(specialExcluded(name, entry.ExcludedOtherFS))
	}

	if effectiveIsDir {
		return c.visitDir(childPath, dirEntry, name, raw)
	}

	return c.visitFile(childPath, name, raw, notReg, disableHardlink)
}

// parentDev resolves dirEntry's device id back to a dev_t for comparison
// against a freshly stat'd child, since dir entries only carry the small
// interned id.
func parentDev(c *Context, dirEntry *entry.Entry) uint64 {
	dev, _ := c.DevReg.Dev(dirEntry.DevID)
	return dev
}

func (c *Context) visitDir(childPath string, parent *entry.Entry, name string, raw rawStat) error {
	devID := c.DevReg.ID(raw.Dev)

	if c.Config.ExcludeKernFS {
		isKern, err := c.KernFS.IsKernFS(devID, childPath)
		if err != nil {
			scanlog.Debugf(childPath, "statfs failed: %v", err)
		} else if isKern {
			return c.addSpecial(specialExcluded(name, entry.ExcludedKernFS))
		}
	}
	if c.Config.ExcludeCaches {
		tagged, err := exclude.HasCacheDirTag(childPath)
		if err != nil {
			scanlog.Debugf(childPath, "CACHEDIR.TAG check failed: %v", err)
		} else if tagged {
			return c.addSpecial(specialExcluded(name, entry.ExcludedPattern))
		}
	}

	dir, err := c.addDir(name, devID)
	if err != nil {
		return err
	}
	if c.Config.Extended {
		dir.Ext = extFromRaw(raw, childPath)
	}
	if err := c.enterDir(dir); err != nil {
		return err
	}
	if err := Walk(c, childPath, dir, false); err != nil {
		return err
	}
	return c.leaveDir()
}

func (c *Context) visitFile(path, name string, raw rawStat, notReg, disableHardlink bool) error {
	var e *entry.Entry
	if raw.Nlink > 1 && !disableHardlink {
		e = entry.NewLink(name, raw.Size, raw.Blocks, raw.Ino, raw.Nlink)
	} else {
		e = entry.NewFile(name, raw.Size, raw.Blocks)
	}
	e.NotReg = notReg
	if c.Config.Extended {
		e.Ext = extFromRaw(raw, path)
	}
	return c.addStat(e)
}

func specialExcluded(name string, x entry.Excluded) *entry.Entry {
	e := entry.NewSpecial(name)
	e.Excluded = x
	return e
}

func specialErr(name string) *entry.Entry {
	e := entry.NewSpecial(name)
	e.Err = true
	return e
}
