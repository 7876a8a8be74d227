package storage

import (
	"os"
	"path/filepath"
)

// Copies oldPath to newPath. Used when a rename fails, typically because the
// destination is on another volume. The destination is removed again if the
// copy doesn't complete, so a failed copy can't leave a partial file behind.
func copyFile(oldPath, newPath string) (err error) {
	src, err := os.Open(oldPath)
	if err != nil {
		return
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return
	}
	err = os.MkdirAll(filepath.Dir(newPath), dirPerm)
	if err != nil {
		return
	}
	dst, err := os.OpenFile(newPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0o200)
	if err != nil {
		return
	}
	err = copyFileContents(src, dst, info.Size())
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(newPath)
	}
	return
}
