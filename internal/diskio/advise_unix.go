//go:build linux

package diskio

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseWritebackDone hints to the kernel that the just-written range can be
// flushed from cache, the same advisory role FiloDB's platform-specific mmap
// file (filodb_mmap_darwin.go) gives to unix syscalls around its page store.
func adviseWritebackDone(f *os.File, off, length int64) error {
	return unix.Fadvise(int(f.Fd()), off, length, unix.FADV_DONTNEED)
}

// adviseSequentialGrowth hints at the access pattern of a freshly grown
// region: it's about to be written page-by-page from the start.
func adviseSequentialGrowth(f *os.File, newSize int64) error {
	return unix.Fadvise(int(f.Fd()), 0, newSize, unix.FADV_SEQUENTIAL)
}

// adviseHolePunch advises the kernel (FADV_DONTNEED) that a deallocated
// page's range is no longer needed in the page cache. It does not free the
// file's disk blocks; any error is returned to the caller.
func adviseHolePunch(f *os.File, off, length int64) error {
	return unix.Fadvise(int(f.Fd()), off, length, unix.FADV_DONTNEED)
}
