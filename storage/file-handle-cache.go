package storage

import (
	"expvar"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Pool of open read handles shared between concurrent read file-ops on the
// same path. Handles are closed when the last reference goes away.
var sharedFiles = sharedFilePool{m: make(map[string]*sharedFile)}

// How many opens wouldn't have been needed with singleflight.
var sharedFilesWastedOpens = expvar.NewInt("filespanSharedFilesWastedOpens")

type sharedFilePool struct {
	mu sync.Mutex
	m  map[string]*sharedFile
}

func (me *sharedFilePool) open(name string) (ret *sharedFileRef, err error) {
	me.mu.Lock()
	sf, ok := me.m[name]
	if !ok {
		me.mu.Unlock()
		// Could singleflight here.
		var f *os.File
		f, err = os.Open(name)
		if err != nil {
			return
		}
		me.mu.Lock()
		sf, ok = me.m[name]
		if ok {
			sharedFilesWastedOpens.Add(1)
			f.Close()
		} else {
			sf = &sharedFile{pool: me, name: name, f: f}
			me.m[name] = sf
		}
	}
	sf.refs++
	ret = &sharedFileRef{sf: sf, inherit: sf.f}
	me.mu.Unlock()
	return
}

type sharedFile struct {
	pool *sharedFilePool
	name string
	f    *os.File
	refs int
}

// Only ReaderAt is safe for concurrent use on the underlying file.
type inherit interface {
	io.ReaderAt
}

type sharedFileRef struct {
	inherit
	sf     *sharedFile
	closed atomic.Bool
}

func (me *sharedFileRef) Close() (err error) {
	if !me.closed.CompareAndSwap(false, true) {
		return
	}
	me.inherit = nil
	pool := me.sf.pool
	pool.mu.Lock()
	me.sf.refs--
	if me.sf.refs == 0 {
		delete(pool.m, me.sf.name)
		err = me.sf.f.Close()
	}
	pool.mu.Unlock()
	me.sf = nil
	return
}
