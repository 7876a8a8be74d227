package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/edsrzf/mmap-go"
)

// fileIo that maps files into memory and keeps the mappings alive for reuse
// across operations on the same path.
type mmapFileIo struct {
	mu    sync.Mutex
	paths map[string]*fileMmap
}

type fileMmap struct {
	m        mmap.MMap
	writable bool
	refs     int
}

func (me *mmapFileIo) openForRead(name string) (fileReader, error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	v, ok := me.paths[name]
	if ok {
		v.refs++
		return &mmapHandle{io: me, name: name, f: v}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		// Can't map empty files. A zero-length mapping reads as instant EOF.
		return emptyFileHandle{}, nil
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mapping file: %w", err)
	}
	return &mmapHandle{io: me, name: name, f: me.addNewMmap(name, mm, false)}, nil
}

func (me *mmapFileIo) openForWrite(name string, size int64) (fileWriter, error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	v, ok := me.paths[name]
	if ok {
		if int64(len(v.m)) == size && v.writable {
			v.refs++
			return &mmapHandle{io: me, name: name, f: v}, nil
		}
		// Stale mapping, start over. Anyone still holding it keeps it alive.
		g.MustDelete(me.paths, name)
		me.decRef(name, v)
	}
	f, err := openForWriteExtra(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err = f.Truncate(size); err != nil {
		return nil, fmt.Errorf("truncating file: %w", err)
	}
	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return nil, err
	}
	// Filesystem changes outside our control can make this untrue.
	if int64(len(mm)) != size {
		mm.Unmap()
		return nil, fmt.Errorf("new mmap has wrong size %v, expected %v", len(mm), size)
	}
	return &mmapHandle{io: me, name: name, f: me.addNewMmap(name, mm, true)}, nil
}

// Adds the mapping with one reference for the store and one for the caller.
func (me *mmapFileIo) addNewMmap(name string, mm mmap.MMap, writable bool) *fileMmap {
	v := &fileMmap{m: mm, writable: writable, refs: 2}
	g.MakeMapIfNil(&me.paths)
	g.MapMustAssignNew(me.paths, name, v)
	return v
}

// Drops the store's reference to every cached mapping. Mappings with no other
// holders unmap immediately, the rest when their last handle closes.
func (me *mmapFileIo) invalidate() {
	me.mu.Lock()
	defer me.mu.Unlock()
	for name, v := range me.paths {
		g.MustDelete(me.paths, name)
		me.decRef(name, v)
	}
}

func (me *mmapFileIo) decRef(name string, f *fileMmap) error {
	f.refs--
	panicif.LessThan(f.refs, 0)
	if f.refs > 0 {
		return nil
	}
	if me.paths[name] == f {
		delete(me.paths, name)
	}
	return f.m.Unmap()
}

type mmapHandle struct {
	io    *mmapFileIo
	name  string
	f     *fileMmap
	close sync.Once
}

func (me *mmapHandle) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off > int64(len(me.f.m)) {
		return 0, fs.ErrInvalid
	}
	n = copy(p, me.f.m[off:])
	if n < len(p) {
		err = io.EOF
	}
	return
}

func (me *mmapHandle) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off > int64(len(me.f.m)) {
		return 0, fs.ErrInvalid
	}
	n = copy(me.f.m[off:], p)
	if n < len(p) {
		err = io.ErrShortWrite
	}
	return
}

func (me *mmapHandle) Close() (err error) {
	me.close.Do(func() {
		me.io.mu.Lock()
		err = me.io.decRef(me.name, me.f)
		me.io.mu.Unlock()
	})
	return
}

// Read handle for a zero-length file, which mmap can't represent.
type emptyFileHandle struct{}

func (emptyFileHandle) ReadAt(p []byte, off int64) (int, error) { return 0, io.EOF }

func (emptyFileHandle) Close() error { return nil }
