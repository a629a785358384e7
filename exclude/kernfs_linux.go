//go:build linux

package exclude

import (
	"sync"

	"golang.org/x/sys/unix"
)

// kernfsMagics is the fixed allow-list of pseudo-filesystem statfs magic
// numbers named in §4.4 step 5: proc, sys, cgroup, cgroup2, debugfs,
// devpts, binfmt, bpf, pstore, securityfs, selinux, sysfs, tracefs.
var kernfsMagics = map[int64]bool{
	int64(unix.PROC_SUPER_MAGIC):     true,
	int64(unix.SYSFS_MAGIC):          true,
	int64(unix.CGROUP_SUPER_MAGIC):   true,
	int64(unix.CGROUP2_SUPER_MAGIC):  true,
	int64(unix.DEBUGFS_MAGIC):        true,
	int64(unix.DEVPTS_SUPER_MAGIC):   true,
	int64(unix.BINFMTFS_MAGIC):       true,
	int64(unix.BPF_FS_MAGIC):         true,
	int64(unix.PSTOREFS_MAGIC):       true,
	int64(unix.SECURITYFS_MAGIC):     true,
	int64(unix.SELINUX_MAGIC):        true,
	int64(unix.TRACEFS_MAGIC):        true,
}

// KernFSCache memoizes the kernfs decision per device id, as §4.4 step 5
// requires ("cache decisions per device id").
type KernFSCache struct {
	mu    sync.Mutex
	cache map[int32]bool
}

// NewKernFSCache returns an empty cache.
func NewKernFSCache() *KernFSCache {
	return &KernFSCache{cache: make(map[int32]bool)}
}

// IsKernFS reports whether the filesystem backing dirPath is one of the
// recognized pseudo-filesystems, consulting (and populating) the cache
// under devID.
func (k *KernFSCache) IsKernFS(devID int32, dirPath string) (bool, error) {
	k.mu.Lock()
	if v, ok := k.cache[devID]; ok {
		k.mu.Unlock()
		return v, nil
	}
	k.mu.Unlock()

	var st unix.Statfs_t
	if err := unix.Statfs(dirPath, &st); err != nil {
		return false, err
	}
	isKernFS := kernfsMagics[int64(st.Type)]

	k.mu.Lock()
	k.cache[devID] = isKernFS
	k.mu.Unlock()
	return isKernFS, nil
}
