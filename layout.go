// Package filespan models the file layout of piece-addressed content: an
// ordered list of files whose concatenation forms a virtual byte space
// addressed by piece index and intra-piece offset.
package filespan

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/anacrolix/missinggo/v2/panicif"
)

// A single file in a layout. Path is slash-separated and relative to the
// layout's base directory, unless Absolute is set, in which case the file
// lives outside any base directory and is skipped by relocation.
type FileEntry struct {
	Path     string
	Length   int64
	Absolute bool
}

// Layout is an immutable view over an ordered file list and a piece length.
// The zero value is not usable, construct with New.
type Layout struct {
	files []FileEntry
	// Start offset of each file, with a final element holding the total
	// length. Zero-length files have empty extents.
	offsets     []int64
	pieceLength int64
}

func New(files []FileEntry, pieceLength int64) (*Layout, error) {
	if pieceLength <= 0 {
		return nil, fmt.Errorf("piece length must be positive, got %v", pieceLength)
	}
	l := &Layout{
		files:       files,
		offsets:     make([]int64, len(files)+1),
		pieceLength: pieceLength,
	}
	for i, f := range files {
		if f.Length < 0 {
			return nil, fmt.Errorf("file %v has negative length %v", i, f.Length)
		}
		l.offsets[i+1] = l.offsets[i] + f.Length
	}
	return l, nil
}

func (l *Layout) NumFiles() int { return len(l.files) }

// EndFile returns the sentinel index one past the last file.
func (l *Layout) EndFile() int { return len(l.files) }

// FileOffset returns the offset of file i in the concatenated byte space.
func (l *Layout) FileOffset(i int) int64 { return l.offsets[i] }

func (l *Layout) FileSize(i int) int64 { return l.files[i].Length }

func (l *Layout) FilePath(i int) string { return l.files[i].Path }

func (l *Layout) FileAbsolutePath(i int) bool { return l.files[i].Absolute }

// FileOsPath returns the on-disk path for file i under base. Files declared
// with an absolute path ignore base.
func (l *Layout) FileOsPath(i int, base string) string {
	if l.files[i].Absolute {
		return filepath.FromSlash(l.files[i].Path)
	}
	return filepath.Join(base, filepath.FromSlash(l.files[i].Path))
}

func (l *Layout) TotalLength() int64 { return l.offsets[len(l.files)] }

func (l *Layout) PieceLength() int64 { return l.pieceLength }

func (l *Layout) NumPieces() int {
	return int((l.TotalLength() + l.pieceLength - 1) / l.pieceLength)
}

// EndPiece returns the sentinel piece index one past the last piece.
func (l *Layout) EndPiece() int { return l.NumPieces() }

// TorrentOffset converts piece-space addressing to an absolute offset in the
// concatenated byte space.
func (l *Layout) TorrentOffset(piece int, offset int64) int64 {
	return int64(piece)*l.pieceLength + offset
}

// FileIndexAtOffset returns the index of the file whose extent contains off.
// Zero-length files have empty extents and are never returned.
func (l *Layout) FileIndexAtOffset(off int64) int {
	panicif.LessThan(off, 0)
	panicif.True(off >= l.TotalLength())
	// The first file whose extent ends beyond off.
	i := sort.Search(len(l.files), func(i int) bool {
		return l.offsets[i+1] > off
	})
	panicif.Eq(i, len(l.files))
	return i
}
