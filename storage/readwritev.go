package storage

import (
	"github.com/anacrolix/missinggo/v2/panicif"

	"github.com/anacrolix/filespan"
	"github.com/anacrolix/filespan/iov"
)

// FileOp performs a read or write of a byte range within a single file,
// scattered over bufs. It reports the number of bytes transferred; zero with
// a nil error means end of file. The mapping engine only ever passes ranges
// that lie entirely within the file's declared length, at a correct in-file
// offset.
type FileOp interface {
	FileOp(fileIndex int, fileOffset int64, bufs [][]byte) (int, error)
}

// FileOpFunc adapts a plain function to the FileOp interface.
type FileOpFunc func(fileIndex int, fileOffset int64, bufs [][]byte) (int, error)

func (f FileOpFunc) FileOp(fileIndex int, fileOffset int64, bufs [][]byte) (int, error) {
	return f(fileIndex, fileOffset, bufs)
}

// Bytes left in the file at fileIndex from fileOffset, clamped to bytesLeft.
func fileBytesLeft(l *filespan.Layout, fileIndex int, fileOffset int64, bytesLeft int) int {
	return int(min(int64(bytesLeft), max(l.FileSize(fileIndex)-fileOffset, 0)))
}

// ReadWritev maps a piece-addressed scatter-gather request onto a sequence of
// single-file operations. Much of what needs doing when reading and writing
// is buffer management and piece-to-file mapping, and it's the same for both,
// so op decides what actually happens to the file and the buffers. Returns
// the number of bytes transferred: less than the request size with a nil
// error is a short transfer, meaning op hit end-of-file. The first error from
// op aborts the transfer.
//
// Requests must lie entirely within the layout's total length: exceeding it
// is a caller logic error and panics rather than truncating silently.
func ReadWritev(
	l *filespan.Layout,
	bufs [][]byte,
	piece int,
	offset int64,
	op FileOp,
) (int, error) {
	panicif.LessThan(piece, 0)
	panicif.True(piece >= l.EndPiece())
	panicif.LessThan(offset, 0)
	panicif.Eq(len(bufs), 0)

	size := iov.Size(bufs)
	panicif.LessThanOrEqual(size, 0)

	torrentOffset := l.TorrentOffset(piece, offset)
	panicif.GreaterThan(torrentOffset+int64(size), l.TotalLength())

	fileIndex := l.FileIndexAtOffset(torrentOffset)
	fileOffset := torrentOffset - l.FileOffset(fileIndex)

	// Bytes left before this read or write is completely satisfied.
	bytesLeft := size

	// Working copy of the buffer list, maintained to always cover exactly the
	// next bytesLeft bytes. Only the descriptors are copied, the bytes are
	// shared with the caller's list. Trailing zero-length descriptors in the
	// caller's list don't contribute bytes and aren't carried over.
	current := make([][]byte, iov.Count(bufs, size))
	iov.Copy(current, bufs, size)

	tmp := make([][]byte, len(current))

	for bytesLeft > 0 {
		left := fileBytesLeft(l, fileIndex, fileOffset, bytesLeft)

		// No bytes left in this file, move to the next one. This also skips
		// over zero-length files.
		for left == 0 {
			fileIndex++
			fileOffset = 0
			// bytesLeft is clamped by the layout's total length, so we can't
			// run off the end of the file list.
			panicif.True(fileIndex >= l.EndFile())
			left = fileBytesLeft(l, fileIndex, fileOffset, bytesLeft)
		}

		// Slice out descriptors covering just this one operation.
		tmpUsed := iov.Copy(tmp, current, left)

		n, err := op.FileOp(fileIndex, fileOffset, tmp[:tmpUsed])
		if err != nil {
			return size - bytesLeft, &Error{Op: OpReadWrite, FileIndex: fileIndex, Err: err}
		}

		current = iov.Advance(current, n)
		bytesLeft -= n
		fileOffset += int64(n)

		// Zero bytes transferred means op hit end-of-file. The transfer so
		// far is a legitimate short transfer, not an error: the file on disk
		// can be shorter than the layout declares.
		if n == 0 {
			return size - bytesLeft, nil
		}
	}
	return size, nil
}
