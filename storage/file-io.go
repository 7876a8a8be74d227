package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Permissions for OS files and directories created by this package.
const (
	filePerm os.FileMode = 0o644
	dirPerm  os.FileMode = 0o755
)

type fileReader interface {
	io.ReaderAt
	io.Closer
}

type fileWriter interface {
	io.WriterAt
	io.Closer
}

// fileIo abstracts how the concrete file operations obtain file handles. The
// classic implementation uses plain OS files, the mmap one maps files into
// memory and keeps them mapped.
type fileIo interface {
	openForRead(name string) (fileReader, error)
	openForWrite(name string, size int64) (fileWriter, error)
	// Drop state cached against file paths, such as after the files have
	// moved. Outstanding handles stay usable.
	invalidate()
}

type classicFileIo struct{}

func (classicFileIo) openForRead(name string) (fileReader, error) {
	return sharedFiles.open(name)
}

func (classicFileIo) openForWrite(name string, size int64) (fileWriter, error) {
	return openForWriteExtra(name)
}

// The shared pool only holds files with open handles, and drops them when the
// last handle closes. No path-keyed state outlives an operation.
func (classicFileIo) invalidate() {}

// Opens for write, creating missing parent directories and fixing permissions
// as necessary.
func openForWriteExtra(p string) (f *os.File, err error) {
	const flag = os.O_WRONLY | os.O_CREATE
	f, err = os.OpenFile(p, flag, filePerm)
	if err == nil {
		return
	}
	if errors.Is(err, fs.ErrNotExist) {
		err = os.MkdirAll(filepath.Dir(p), dirPerm)
		if err != nil {
			return
		}
	} else if errors.Is(err, fs.ErrPermission) {
		err = os.Chmod(p, filePerm)
		if err != nil {
			return
		}
	} else {
		return
	}
	f, err = os.OpenFile(p, flag, filePerm)
	return
}
