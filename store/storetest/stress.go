// Package storetest exercises a store.Store the way the lambdas use one:
// many jobs unpacking files into it at once while other jobs read them back
// through ReadAt, as the archive readers do.
package storetest

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/onedata/automation-examples/checksum"
	"github.com/onedata/automation-examples/store"
	"github.com/onedata/automation-examples/util"
)

// number of files handled at the same time
const parallel = 8

// Stress writes, verifies and deletes files in s until files totalling
// totalsize bytes have been handled, with several files in flight at once.
// It is a good test to run with the -race flag. Zero means 20 MB.
//
// Half of the keys are plain file ids and half have the form
// "<file id>/data/<name>", so stores must make parent directories as needed.
func Stress(t *testing.T, s store.Store, totalsize int64) {
	if totalsize == 0 {
		totalsize = 20 * 1000 * 1000
	}
	rng := rand.New(rand.NewSource(1))
	gate := util.NewGate(parallel)
	var wg sync.WaitGroup
	for i := 0; totalsize > 0; i++ {
		size := randomSize(rng)
		totalsize -= size
		key := fmt.Sprintf("file%d", i)
		if i%2 == 0 {
			key = fmt.Sprintf("dst%d/data/part%d.bin", i%5, i)
		}
		seed := rng.Int63()
		gate.Enter()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer gate.Leave()
			roundtrip(t, s, key, size, seed)
		}()
	}
	wg.Wait()
}

// randomSize picks sizes over a wide range by choosing the exponent
// uniformly, so most files are small and a few are around a megabyte.
func randomSize(rng *rand.Rand) int64 {
	return int64(math.Trunc(math.Exp(14 * rng.Float64())))
}

var algorithms = []checksum.Algorithm{checksum.MD5, checksum.Adler32}

func roundtrip(t *testing.T, s store.Store, key string, size, seed int64) {
	content := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(content)

	sums, err := write(s, key, content)
	if err != nil {
		t.Error(key, err)
		return
	}
	if _, err := s.Create(key); err != store.ErrKeyExists {
		t.Errorf("%s: second Create returned %v, expected ErrKeyExists", key, err)
	}

	rac, n, err := s.Open(key)
	if err != nil {
		t.Error(key, err)
		return
	}
	if n != size {
		t.Errorf("%s: Open returned size %d, expected %d", key, n, size)
	}
	engine := &checksum.Engine{ChunkSize: 1000}
	got, err := engine.ComputeAll(store.NewReader(rac), algorithms...)
	if err != nil {
		t.Error(key, err)
	}
	for _, alg := range algorithms {
		if got[alg] != sums[alg] {
			t.Errorf("%s: %s is %s, expected %s", key, alg, got[alg], sums[alg])
		}
	}
	readWindows(t, key, rac, content, seed)
	if err := rac.Close(); err != nil {
		t.Error(key, err)
	}

	if err := s.Delete(key); err != nil {
		t.Error(key, err)
	}
	if _, _, err := s.Open(key); err != store.ErrNotExist {
		t.Errorf("%s: Open after Delete returned %v, expected ErrNotExist", key, err)
	}
}

// write stores content under key and returns its checksums as computed
// while writing.
func write(s store.Store, key string, content []byte) (map[checksum.Algorithm]string, error) {
	w, err := s.Create(key)
	if err != nil {
		return nil, err
	}
	mh, err := checksum.NewMultiHasher(w, algorithms...)
	if err != nil {
		w.Close()
		return nil, err
	}
	// odd sized writes, to not line up with any page size
	r := bytes.NewReader(content)
	_, err = io.CopyBuffer(struct{ io.Writer }{mh}, struct{ io.Reader }{r}, make([]byte, 7777))
	if err2 := w.Close(); err == nil {
		err = err2
	}
	return mh.Sums(), err
}

// readWindows reads random parts of rac from several goroutines at once and
// compares them with content.
func readWindows(t *testing.T, key string, rac io.ReaderAt, content []byte, seed int64) {
	if len(content) == 0 {
		return
	}
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		rng := rand.New(rand.NewSource(seed + int64(g)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				off := rng.Int63n(int64(len(content)))
				p := make([]byte, 1+rng.Intn(4096))
				n, err := rac.ReadAt(p, off)
				if err != nil && err != io.EOF {
					t.Errorf("%s: ReadAt(%d): %v", key, off, err)
					return
				}
				if !bytes.Equal(p[:n], content[off:off+int64(n)]) {
					t.Errorf("%s: ReadAt(%d) returned wrong bytes", key, off)
					return
				}
				if n < len(p) && off+int64(n) != int64(len(content)) {
					t.Errorf("%s: short read at %d without reaching the end", key, off)
					return
				}
			}
		}()
	}
	wg.Wait()
}
