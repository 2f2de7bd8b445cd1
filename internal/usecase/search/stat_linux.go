//go:build linux

package search

import (
	"os"
	"syscall"
)

type fileMeta struct {
	size  uint64
	atime uint64
	mtime uint64
	ctime uint64
}

// statFile reads file metadata from the filesystem. ok=false when the
// file cannot be statted.
func statFile(path string) (fileMeta, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fileMeta{}, false
	}
	meta := fileMeta{
		size:  uint64(info.Size()),
		mtime: clampSec(info.ModTime().Unix()),
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		meta.atime = clampSec(st.Atim.Sec)
		meta.ctime = clampSec(st.Ctim.Sec)
	}
	return meta, true
}

func clampSec(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
