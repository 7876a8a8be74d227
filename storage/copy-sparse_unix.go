//go:build unix

package storage

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Copies only the data runs of src, recreating holes at dst by truncation,
// so sparse files stay sparse across volumes. Filesystems without SEEK_HOLE
// support report the whole file as a single data run.
func copyFileContents(src, dst *os.File, size int64) error {
	if err := dst.Truncate(size); err != nil {
		return err
	}
	fd := int(src.Fd())
	var off int64
	for off < size {
		dataStart, err := unix.Seek(fd, off, unix.SEEK_DATA)
		if err == unix.ENXIO {
			// No data past off, the rest of the file is hole.
			break
		}
		if err != nil {
			return err
		}
		holeStart, err := unix.Seek(fd, dataStart, unix.SEEK_HOLE)
		if err != nil {
			return err
		}
		if _, err = dst.Seek(dataStart, io.SeekStart); err != nil {
			return err
		}
		if _, err = io.Copy(dst, io.NewSectionReader(src, dataStart, holeStart-dataStart)); err != nil {
			return err
		}
		off = holeStart
	}
	return nil
}
