//go:build !unix

package storage

import (
	"io"
	"os"
)

func copyFileContents(src, dst *os.File, size int64) error {
	_, err := io.Copy(dst, io.NewSectionReader(src, 0, size))
	return err
}
