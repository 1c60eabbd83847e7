package store

import (
	"io"
	"sort"
	"sync"
)

// Memory implements a simple in-memory version of a store. It is intended
// mainly for testing, and for running lambdas on requests which carry their
// files with them.
type Memory struct {
	m     sync.RWMutex
	store map[string]*buf
}

var (
	// ensure Memory satisfies the Store interface
	_ Store = &Memory{}
)

// NewMemory returns a new, empty memory store.
func NewMemory() *Memory {
	return &Memory{store: make(map[string]*buf)}
}

// Keys returns the sorted keys of every item in the store.
func (ms *Memory) Keys() []string {
	var result []string
	ms.m.RLock()
	for k := range ms.store {
		result = append(result, k)
	}
	ms.m.RUnlock()
	sort.Strings(result)
	return result
}

// Open returns a ReadAtCloser and the size of the given blob. An item
// being written may not be opened until it is closed.
func (ms *Memory) Open(key string) (ReadAtCloser, int64, error) {
	ms.m.RLock()
	v, ok := ms.store[key]
	ms.m.RUnlock()
	if !ok {
		return nil, 0, ErrNotExist
	}
	v.m.RLock()
	return &bufReader{b: v}, int64(len(v.b)), nil
}

// Need to support a RWMutex instead of a Mutex, since an archive and the
// files unpacked from it may both be open for reading at the same time.
type buf struct {
	m sync.RWMutex
	b []byte
}

// bufReader holds a read lock on its buf until closed.
type bufReader struct {
	b    *buf
	once sync.Once
}

func (r *bufReader) Close() error {
	r.once.Do(r.b.m.RUnlock)
	return nil
}

func (r *bufReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r.b.b)) {
		return 0, io.EOF
	}
	n := copy(p, r.b.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// bufWriter holds the write lock on its buf until closed.
type bufWriter struct {
	b    *buf
	once sync.Once
}

func (w *bufWriter) Write(p []byte) (int, error) {
	w.b.b = append(w.b.b, p...)
	return len(p), nil
}

func (w *bufWriter) Close() error {
	w.once.Do(w.b.m.Unlock)
	return nil
}

// Create makes a new entry in the store, and returns a writer to save data
// into it.
func (ms *Memory) Create(key string) (io.WriteCloser, error) {
	if err := isKeyValid(key); err != nil {
		return nil, err
	}
	r := &buf{}
	r.m.Lock()
	ms.m.Lock()
	defer ms.m.Unlock()
	if _, ok := ms.store[key]; ok {
		r.m.Unlock()
		return nil, ErrKeyExists
	}
	ms.store[key] = r
	return &bufWriter{b: r}, nil
}

// Put is a shortcut for creating an item with the given content.
func (ms *Memory) Put(key string, content []byte) error {
	w, err := ms.Create(key)
	if err != nil {
		return err
	}
	w.Write(content)
	return w.Close()
}

// Delete the given key from the store. It is not an error if the item does
// not exist in the store.
func (ms *Memory) Delete(key string) error {
	ms.m.Lock()
	delete(ms.store, key)
	ms.m.Unlock()
	return nil
}
