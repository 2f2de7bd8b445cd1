//go:build !linux

package search

import "os"

type fileMeta struct {
	size  uint64
	atime uint64
	mtime uint64
	ctime uint64
}

// statFile reads file metadata from the filesystem. Access and change
// times are unavailable portably, so those predicates pass when the
// index carries no value.
func statFile(path string) (fileMeta, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fileMeta{}, false
	}
	mtime := info.ModTime().Unix()
	meta := fileMeta{size: uint64(info.Size())}
	if mtime > 0 {
		meta.mtime = uint64(mtime)
	}
	return meta, true
}
