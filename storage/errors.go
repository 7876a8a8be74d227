package storage

import "fmt"

// Op identifies the category of storage operation that failed.
type Op int

const (
	OpReadWrite Op = iota
	OpStat
	OpMkdir
	OpRename
	OpPartFileMove
)

func (op Op) String() string {
	switch op {
	case OpReadWrite:
		return "read/write"
	case OpStat:
		return "stat"
	case OpMkdir:
		return "mkdir"
	case OpRename:
		return "rename"
	case OpPartFileMove:
		return "part-file move"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// NoFileIndex marks an Error as not specific to any file, such as a
// directory-level failure.
const NoFileIndex = -1

// Error tags an underlying OS error with the operation that failed and the
// offending file index, if any.
type Error struct {
	Op        Op
	FileIndex int
	Err       error
}

func (e *Error) Error() string {
	if e.FileIndex == NoFileIndex {
		return fmt.Sprintf("storage: %v: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %v, file %v: %v", e.Op, e.FileIndex, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
