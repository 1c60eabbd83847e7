// Package checksum computes checksums of byte streams without holding more
// than one chunk of the stream in memory.
//
// The set of algorithms is closed; see Algorithm. Adler-32 is handled as a
// running numeric value seeded with 1, and is formatted as a hexadecimal
// number. All the other algorithms are digests and are formatted as the hex
// encoding of the digest bytes.
package checksum

import (
	"io"

	"github.com/pkg/errors"
)

// DefaultChunkSize is the number of bytes read from a stream at a time.
const DefaultChunkSize = 10 * 1024 * 1024

// An Engine computes checksums. The zero value is ready to use.
type Engine struct {
	// ChunkSize is the read size. Zero means DefaultChunkSize.
	ChunkSize int

	// PadAdler32 formats Adler-32 values as exactly 8 hex digits. Otherwise
	// leading zeros are dropped.
	PadAdler32 bool

	// Observer, if not nil, is called after every chunk with the number
	// of bytes in it. It is called from the goroutine doing the
	// computation.
	Observer func(a Algorithm, n int)
}

func (e *Engine) chunkSize() int {
	if e == nil || e.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return e.ChunkSize
}

// Compute reads r until EOF and returns its checksum as a lowercase hex
// string. The reader is not closed.
func (e *Engine) Compute(r io.Reader, a Algorithm) (string, error) {
	var pad bool
	if e != nil {
		pad = e.PadAdler32
	}
	acc, err := newAccumulator(a, pad)
	if err != nil {
		return "", err
	}
	err = e.feed(r, func(p []byte) {
		acc.Write(p)
	}, a)
	if err != nil {
		return "", err
	}
	return acc.hex(), nil
}

// ComputeAll computes several checksums in a single pass over r.
func (e *Engine) ComputeAll(r io.Reader, algs ...Algorithm) (map[Algorithm]string, error) {
	var pad bool
	if e != nil {
		pad = e.PadAdler32
	}
	mh, err := newMultiHasher(nil, pad, algs)
	if err != nil {
		return nil, err
	}
	// report progress under the first algorithm only, so bytes are not
	// counted once per algorithm
	var first Algorithm
	if len(algs) > 0 {
		first = algs[0]
	}
	err = e.feed(r, func(p []byte) {
		mh.Write(p)
	}, first)
	if err != nil {
		return nil, err
	}
	return mh.Sums(), nil
}

// feed reads r chunk by chunk, handing every chunk to update.
func (e *Engine) feed(r io.Reader, update func([]byte), a Algorithm) error {
	buf := make([]byte, e.chunkSize())
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			update(buf[:n])
			if e != nil && e.Observer != nil {
				e.Observer(a, n)
			}
		}
		switch err {
		case nil:
			continue
		case io.EOF, io.ErrUnexpectedEOF:
			return nil
		default:
			return errors.Wrap(err, "reading stream")
		}
	}
}
