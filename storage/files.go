package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/anacrolix/filespan"
)

// Files binds a layout to a base directory and a file-handle strategy,
// exposing piece-addressed scatter-gather reads and writes over the layout's
// concatenated byte space.
type Files struct {
	layout *filespan.Layout
	dir    string
	io     fileIo
	logger *slog.Logger
}

type NewFilesOpts struct {
	Layout *filespan.Layout
	// Base directory for the layout's relative files.
	Dir string
	// Map files into memory instead of using plain file handles.
	Mmap   bool
	Logger *slog.Logger
}

func NewFiles(opts NewFilesOpts) (*Files, error) {
	me := &Files{
		layout: opts.Layout,
		dir:    opts.Dir,
		io:     classicFileIo{},
		logger: opts.Logger,
	}
	if opts.Mmap {
		me.io = &mmapFileIo{}
	}
	if me.logger == nil {
		me.logger = slog.Default()
	}
	// Zero-length files have no bytes addressed by any piece, so nothing
	// would ever create them. Do it eagerly.
	for i := 0; i < me.layout.EndFile(); i++ {
		if me.layout.FileSize(i) != 0 || me.layout.FileAbsolutePath(i) {
			continue
		}
		err := createZeroLengthFile(me.layout.FileOsPath(i, me.dir))
		if err != nil {
			return nil, fmt.Errorf("creating zero length file: %w", err)
		}
	}
	return me, nil
}

// Dir returns the current base directory, which Move updates.
func (me *Files) Dir() string { return me.dir }

func createZeroLengthFile(name string) error {
	if err := os.MkdirAll(filepath.Dir(name), dirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(name, os.O_RDONLY|os.O_CREATE, filePerm)
	if err != nil {
		return err
	}
	return f.Close()
}

// ReadvPiece reads from the given piece at offset, scattering into bufs.
// Files that are missing or shorter on disk than the layout declares produce
// short transfers, not errors.
func (me *Files) ReadvPiece(bufs [][]byte, piece int, offset int64) (int, error) {
	return ReadWritev(me.layout, bufs, piece, offset, FileOpFunc(me.readFileOp))
}

// WritevPiece writes to the given piece at offset, gathering from bufs.
func (me *Files) WritevPiece(bufs [][]byte, piece int, offset int64) (int, error) {
	return ReadWritev(me.layout, bufs, piece, offset, FileOpFunc(me.writeFileOp))
}

func (me *Files) readFileOp(fileIndex int, off int64, bufs [][]byte) (n int, err error) {
	f, err := me.io.openForRead(me.layout.FileOsPath(fileIndex, me.dir))
	if errors.Is(err, fs.ErrNotExist) {
		// A missing file reads as end-of-file. Whether the resulting short
		// transfer matters is for the layer above to decide.
		return 0, nil
	}
	if err != nil {
		return
	}
	defer f.Close()
	for _, b := range bufs {
		var n1 int
		n1, err = f.ReadAt(b, off)
		n += n1
		off += int64(n1)
		if err == io.EOF {
			err = nil
			return
		}
		if err != nil {
			return
		}
	}
	return
}

func (me *Files) writeFileOp(fileIndex int, off int64, bufs [][]byte) (n int, err error) {
	f, err := me.io.openForWrite(
		me.layout.FileOsPath(fileIndex, me.dir),
		me.layout.FileSize(fileIndex))
	if err != nil {
		return
	}
	for _, b := range bufs {
		var n1 int
		n1, err = f.WriteAt(b, off)
		n += n1
		off += int64(n1)
		if err != nil {
			break
		}
		if n1 < len(b) {
			err = io.ErrShortWrite
			break
		}
	}
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	return
}

// ReadAt implements io.ReaderAt over the layout's whole byte space. Only
// returns EOF at the end of the layout; a file on disk shorter than the
// layout declares is ErrUnexpectedEOF.
func (me *Files) ReadAt(b []byte, off int64) (n int, err error) {
	total := me.layout.TotalLength()
	if off < 0 {
		return 0, fs.ErrInvalid
	}
	if off >= total {
		return 0, io.EOF
	}
	atEnd := false
	if int64(len(b)) > total-off {
		b = b[:total-off]
		atEnd = true
	}
	if len(b) == 0 {
		return
	}
	n, err = me.ReadvPiece([][]byte{b}, 0, off)
	if err == nil && n < len(b) {
		err = io.ErrUnexpectedEOF
	}
	if err == nil && atEnd {
		err = io.EOF
	}
	return
}

// WriteAt implements io.WriterAt over the layout's whole byte space. Writes
// must lie within the layout.
func (me *Files) WriteAt(b []byte, off int64) (n int, err error) {
	if off < 0 || off+int64(len(b)) > me.layout.TotalLength() {
		return 0, fs.ErrInvalid
	}
	if len(b) == 0 {
		return
	}
	n, err = me.WritevPiece([][]byte{b}, 0, off)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	return
}

// Move relocates the storage to destPath. The receiver's base directory is
// updated to the returned authoritative path: the new base on success, the
// old one on failure.
func (me *Files) Move(destPath string, pf PartFileMover, mode MoveMode) (MoveStatus, error) {
	status, newPath, err := MoveStorage(MoveOpts{
		Layout:   me.layout,
		SavePath: me.dir,
		DestPath: destPath,
		PartFile: pf,
		Mode:     mode,
		Logger:   me.logger,
	})
	me.dir = newPath
	// Files were renamed or copied around even on failure, so anything cached
	// against the old paths is stale.
	me.io.invalidate()
	return status, err
}
