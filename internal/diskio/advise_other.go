//go:build !linux

package diskio

import "os"

// adviseWritebackDone is a no-op on platforms without posix_fadvise
// (matching FiloDB's own per-GOOS split for its page store's mmap advice).
func adviseWritebackDone(f *os.File, off, length int64) error { return nil }

func adviseSequentialGrowth(f *os.File, newSize int64) error { return nil }

func adviseHolePunch(f *os.File, off, length int64) error { return nil }
