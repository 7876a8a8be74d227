package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-quicktest/qt"
)

func makeContent(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func testFilesRoundTrip(t *testing.T, useMmap bool) {
	dir := t.TempDir()
	l := mustLayout(t, 100, 0, 100, 0, 50)
	files, err := NewFiles(NewFilesOpts{Layout: l, Dir: dir, Mmap: useMmap})
	qt.Assert(t, qt.IsNil(err))

	// Zero-length files exist eagerly, nothing else addresses them.
	qt.Check(t, qt.IsTrue(pathExists(filepath.Join(dir, "a"))))
	qt.Check(t, qt.IsTrue(pathExists(filepath.Join(dir, "c"))))

	content := makeContent(150)
	n, err := files.WritevPiece([][]byte{content[:30], content[30:100]}, 0, 0)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(n, 100))
	n, err = files.WritevPiece([][]byte{content[100:]}, 1, 0)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(n, 50))

	// Scattered read straddling the piece and file boundary.
	got := [][]byte{make([]byte, 25), make([]byte, 50)}
	n, err = files.ReadvPiece(got, 0, 75)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(n, 75))
	qt.Check(t, qt.Equals(string(got[0]), string(content[75:100])))
	qt.Check(t, qt.Equals(string(got[1]), string(content[100:150])))

	// Flat read of everything.
	whole := make([]byte, 150)
	n, err = files.ReadAt(whole, 0)
	qt.Assert(t, qt.Equals(n, 150))
	qt.Assert(t, qt.Equals(err, io.EOF))
	qt.Check(t, qt.Equals(string(whole), string(content)))
}

func TestFilesRoundTripClassic(t *testing.T) {
	testFilesRoundTrip(t, false)
}

func TestFilesRoundTripMmap(t *testing.T) {
	testFilesRoundTrip(t, true)
}

func TestFilesMissingFileReadsShort(t *testing.T) {
	dir := t.TempDir()
	l := mustLayout(t, 100, 0, 100, 0, 50)
	files, err := NewFiles(NewFilesOpts{Layout: l, Dir: dir})
	qt.Assert(t, qt.IsNil(err))
	content := makeContent(150)
	_, err = files.WriteAt(content, 0)
	qt.Assert(t, qt.IsNil(err))

	// Without the file holding piece 1, the read comes back short, not
	// failed.
	qt.Assert(t, qt.IsNil(os.Remove(filepath.Join(dir, "d"))))
	n, err := files.ReadvPiece([][]byte{make([]byte, 50)}, 1, 0)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(n, 0))

	// The flat ReaderAt can't return short without error, so there it's a
	// premature EOF.
	n, err = files.ReadAt(make([]byte, 150), 0)
	qt.Assert(t, qt.Equals(n, 100))
	qt.Check(t, qt.Equals(err, io.ErrUnexpectedEOF))
}

func TestFilesTruncatedFileReadsShort(t *testing.T) {
	dir := t.TempDir()
	l := mustLayout(t, 100, 100)
	files, err := NewFiles(NewFilesOpts{Layout: l, Dir: dir})
	qt.Assert(t, qt.IsNil(err))
	content := makeContent(100)
	_, err = files.WriteAt(content, 0)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsNil(os.Truncate(filepath.Join(dir, "a"), 60)))

	n, err := files.ReadvPiece([][]byte{make([]byte, 100)}, 0, 0)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(n, 60))
}

func TestFilesMove(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	l := mustLayout(t, 100, 0, 100, 0, 50)
	files, err := NewFiles(NewFilesOpts{Layout: l, Dir: a})
	qt.Assert(t, qt.IsNil(err))
	content := makeContent(150)
	_, err = files.WriteAt(content, 0)
	qt.Assert(t, qt.IsNil(err))

	status, err := files.Move(b, nil, AlwaysReplace)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(status, StatusNoError))
	qt.Assert(t, qt.Equals(files.Dir(), b))

	whole := make([]byte, 150)
	n, err := files.ReadAt(whole, 0)
	qt.Assert(t, qt.Equals(n, 150))
	qt.Assert(t, qt.Equals(err, io.EOF))
	qt.Check(t, qt.Equals(string(whole), string(content)))
	qt.Check(t, qt.IsFalse(pathExists(filepath.Join(a, "b"))))
}

func TestFilesMoveDropsMmapCache(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	l := mustLayout(t, 100, 0, 100, 0, 50)
	files, err := NewFiles(NewFilesOpts{Layout: l, Dir: a, Mmap: true})
	qt.Assert(t, qt.IsNil(err))
	content := makeContent(150)
	_, err = files.WriteAt(content, 0)
	qt.Assert(t, qt.IsNil(err))

	// The store holds mappings keyed by the old base's paths.
	mio := files.io.(*mmapFileIo)
	qt.Assert(t, qt.HasLen(mio.paths, 2))

	status, err := files.Move(b, nil, AlwaysReplace)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(status, StatusNoError))

	// Stale mappings are gone, and reads remap under the new base.
	qt.Assert(t, qt.HasLen(mio.paths, 0))
	whole := make([]byte, 150)
	n, err := files.ReadAt(whole, 0)
	qt.Assert(t, qt.Equals(n, 150))
	qt.Assert(t, qt.Equals(err, io.EOF))
	qt.Check(t, qt.Equals(string(whole), string(content)))
	qt.Assert(t, qt.HasLen(mio.paths, 2))
}
