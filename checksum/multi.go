package checksum

import (
	"io"
	"strings"
)

// A MultiHasher wraps an io.Writer and also calculates checksums of the
// bytes written, for any number of algorithms at once.
type MultiHasher struct {
	io.Writer // our io.MultiWriter
	algs      []Algorithm
	accs      map[Algorithm]accumulator
}

// NewMultiHasher returns a MultiHasher wrapping w and computing the
// checksums for the given algorithms. If w is nil, the MultiHasher does not
// wrap an output stream and just computes the checksums of what is written
// to it.
func NewMultiHasher(w io.Writer, algs ...Algorithm) (*MultiHasher, error) {
	return newMultiHasher(w, false, algs)
}

func newMultiHasher(w io.Writer, padAdler bool, algs []Algorithm) (*MultiHasher, error) {
	mh := &MultiHasher{
		accs: make(map[Algorithm]accumulator, len(algs)),
	}
	var writers []io.Writer
	if w != nil {
		writers = append(writers, w)
	}
	for _, a := range algs {
		if _, ok := mh.accs[a]; ok {
			continue
		}
		acc, err := newAccumulator(a, padAdler)
		if err != nil {
			return nil, err
		}
		mh.algs = append(mh.algs, a)
		mh.accs[a] = acc
		writers = append(writers, acc)
	}
	mh.Writer = io.MultiWriter(writers...)
	return mh, nil
}

// Sum returns the checksum of everything written so far for the given
// algorithm. The second result is false if the MultiHasher does not compute
// that algorithm.
func (mh *MultiHasher) Sum(a Algorithm) (string, bool) {
	acc, ok := mh.accs[a]
	if !ok {
		return "", false
	}
	return acc.hex(), true
}

// Sums returns the checksum for every algorithm this MultiHasher computes.
func (mh *MultiHasher) Sums() map[Algorithm]string {
	result := make(map[Algorithm]string, len(mh.accs))
	for a, acc := range mh.accs {
		result[a] = acc.hex()
	}
	return result
}

// Check returns the checksum for a and compares it with the goal checksum.
// The comparison ignores case. Returns true if goal matches, false
// otherwise. An empty goal is treated as matching.
func (mh *MultiHasher) Check(a Algorithm, goal string) (string, bool) {
	computed, ok := mh.Sum(a)
	if !ok {
		return "", goal == ""
	}
	return computed, goal == "" || strings.EqualFold(goal, computed)
}

// VerifyStream checksums r and compares the results with the expected
// checksums. It returns true if everything matches, and false otherwise.
// An empty map verifies nothing and returns true. The reader is not closed.
func VerifyStream(r io.Reader, expected map[Algorithm]string) (bool, error) {
	if len(expected) == 0 {
		return true, nil
	}
	var algs []Algorithm
	for a := range expected {
		algs = append(algs, a)
	}
	mh, err := NewMultiHasher(nil, algs...)
	if err != nil {
		return false, err
	}
	_, err = io.Copy(mh, r)
	var result = true
	for a, goal := range expected {
		_, ok := mh.Check(a, goal)
		result = result && ok
	}
	return result, err
}
