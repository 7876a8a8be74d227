package storage

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"syscall"

	"github.com/anacrolix/filespan"
)

// MoveMode selects how MoveStorage treats destination files that already
// exist.
type MoveMode int

const (
	// Existing destination files are overwritten.
	AlwaysReplace MoveMode = iota
	// Abort before touching anything if any destination file already exists.
	FailIfExist
	// Leave existing destination files in place. The result downgrades to
	// StatusNeedFullCheck so the caller knows to re-verify them.
	DontReplace
)

type MoveStatus int

const (
	StatusNoError MoveStatus = iota
	StatusFileExists
	StatusNeedFullCheck
	StatusFatalDiskError
)

func (s MoveStatus) String() string {
	switch s {
	case StatusNoError:
		return "no error"
	case StatusFileExists:
		return "file exists"
	case StatusNeedFullCheck:
		return "need full check"
	case StatusFatalDiskError:
		return "fatal disk error"
	default:
		return "unknown"
	}
}

// PartFileMover relocates the auxiliary part file holding data for pieces
// that span unallocated regions of the layout. Optional collaborator of
// MoveStorage.
type PartFileMover interface {
	MovePartFile(newBase string) error
}

// Low-level filesystem primitives consumed by MoveStorage. Swapped out in
// tests to simulate and observe failures.
type moveFs interface {
	stat(name string) (os.FileInfo, error)
	rename(oldPath, newPath string) error
	copyFile(oldPath, newPath string) error
	mkdirAll(name string) error
	remove(name string) error
}

type osFs struct{}

func (osFs) stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (osFs) rename(o, n string) error              { return os.Rename(o, n) }
func (osFs) copyFile(o, n string) error            { return copyFile(o, n) }
func (osFs) mkdirAll(name string) error            { return os.MkdirAll(name, dirPerm) }
func (osFs) remove(name string) error              { return os.Remove(name) }

func fsPathExists(fsys moveFs, name string) bool {
	_, err := fsys.stat(name)
	return err == nil
}

type MoveOpts struct {
	Layout *filespan.Layout
	// Base directory the layout currently lives under.
	SavePath string
	// Base directory to relocate to. Resolved to an absolute path first.
	DestPath string
	// Optional part file to relocate along with the layout's files.
	PartFile PartFileMover
	Mode     MoveMode
	Logger   *slog.Logger

	// Test hook. Defaults to the real filesystem.
	fs moveFs
}

// MoveStorage relocates every relative-path file of the layout from SavePath
// to DestPath, copying when a rename can't cross volumes, and rolling back
// already-moved files if any file ultimately fails. Files declared with
// absolute paths never participate. The returned path is authoritative: the
// new base on success (even when downgraded to StatusNeedFullCheck), the
// original base on failure.
func MoveStorage(opts MoveOpts) (MoveStatus, string, error) {
	l := opts.Layout
	savePath := opts.SavePath
	fsys := opts.fs
	if fsys == nil {
		fsys = osFs{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	newSavePath, err := filepath.Abs(opts.DestPath)
	if err != nil {
		return StatusFatalDiskError, savePath, &Error{Op: OpStat, FileIndex: NoFileIndex, Err: err}
	}

	ret := StatusNoError

	if opts.Mode == FailIfExist {
		_, statErr := fsys.stat(newSavePath)
		if !errors.Is(statErr, fs.ErrNotExist) {
			// The directory exists, check all the files.
			for i := 0; i < l.EndFile(); i++ {
				// Files moved out to absolute paths are ignored.
				if l.FileAbsolutePath(i) {
					continue
				}
				_, statErr = fsys.stat(l.FileOsPath(i, newSavePath))
				if !errors.Is(statErr, fs.ErrNotExist) {
					if statErr == nil {
						statErr = fs.ErrExist
					}
					err := &Error{Op: OpStat, FileIndex: i, Err: statErr}
					return StatusFileExists, savePath, err
				}
			}
		}
	}

	if _, statErr := fsys.stat(newSavePath); errors.Is(statErr, fs.ErrNotExist) {
		if mkErr := fsys.mkdirAll(newSavePath); mkErr != nil {
			err := &Error{Op: OpMkdir, FileIndex: NoFileIndex, Err: mkErr}
			return StatusFatalDiskError, savePath, err
		}
	} else if statErr != nil {
		err := &Error{Op: OpStat, FileIndex: NoFileIndex, Err: statErr}
		return StatusFatalDiskError, savePath, err
	}

	// Files we ended up copying rather than renaming. Their sources are still
	// intact, so they need no rollback, and need deleting on success.
	copied := make([]bool, l.NumFiles())

	var moveErr *Error
	var i int
	for i = 0; i < l.EndFile(); i++ {
		if l.FileAbsolutePath(i) {
			continue
		}
		oldPath := l.FileOsPath(i, savePath)
		newPath := l.FileOsPath(i, newSavePath)

		if opts.Mode == DontReplace && fsPathExists(fsys, newPath) {
			if ret == StatusNoError {
				ret = StatusNeedFullCheck
			}
			continue
		}

		e := fsys.rename(oldPath, newPath)
		if errors.Is(e, fs.ErrNotExist) {
			// A missing source file is not a problem, there's just nothing to
			// move.
			e = nil
		} else if e != nil && !errors.Is(e, fs.ErrPermission) && !errors.Is(e, syscall.EINVAL) {
			// Renaming across volumes fails with EXDEV. Fall back to copying.
			logger.Debug("rename failed, falling back to copy",
				"oldPath", oldPath, "newPath", newPath, "err", e)
			e = fsys.copyFile(oldPath, newPath)
			if e == nil {
				copied[i] = true
			}
		}

		if e != nil {
			moveErr = &Error{Op: OpRename, FileIndex: i, Err: e}
			break
		}
	}

	if moveErr == nil && opts.PartFile != nil {
		if e := opts.PartFile.MovePartFile(newSavePath); e != nil {
			moveErr = &Error{Op: OpPartFileMove, FileIndex: NoFileIndex, Err: e}
		}
	}

	if moveErr != nil {
		// Roll back the files moved so far, in reverse, best effort. Copied
		// files left their source intact and are skipped.
		for i--; i >= 0; i-- {
			if l.FileAbsolutePath(i) || copied[i] {
				continue
			}
			// Errors rolling back are ignored.
			_ = fsys.rename(l.FileOsPath(i, newSavePath), l.FileOsPath(i, savePath))
		}
		return StatusFatalDiskError, savePath, moveErr
	}

	// The move has committed. Delete sources of copied files and prune the
	// now-empty subdirectories they leave behind. None of this can fail the
	// move any more.
	subdirs := make(map[string]struct{})
	for i := 0; i < l.EndFile(); i++ {
		if l.FileAbsolutePath(i) {
			continue
		}
		if d := path.Dir(l.FilePath(i)); d != "." {
			subdirs[d] = struct{}{}
		}
		if !copied[i] {
			continue
		}
		_ = fsys.remove(l.FileOsPath(i, savePath))
	}
	stop := filepath.Clean(savePath)
	for d := range subdirs {
		subdir := filepath.Join(savePath, filepath.FromSlash(d))
		// Walk back up towards the base, stopping at the first directory that
		// won't go, such as one still holding files we don't own.
		for subdir != stop && fsys.remove(subdir) == nil {
			subdir = filepath.Dir(subdir)
		}
	}

	return ret, newSavePath, nil
}
