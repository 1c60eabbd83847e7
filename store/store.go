// Package store provides the byte sources the lambdas read files from. A
// file is named by a key, which is the Onedata file id, optionally followed
// by a slash and a path relative to that file (for a directory). Instead of
// returning values as an array of bytes, a source returns a ReaderAt. This
// lets archives be read in place, which zip needs.
//
// The most important implementation is Mounted, which reads through a
// mounted Oneclient. The others read over the Oneprovider REST interface, an
// S3 gateway, or memory, which is intended mainly for testing.
package store

import (
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ReadAtCloser combines the io.ReaderAt and io.Closer interfaces.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Source is something files can be read from. Open returns the content of
// the given key and its size.
type Source interface {
	Open(key string) (ReadAtCloser, int64, error)
}

// Store is a Source which can also be written to. Items are immutable once
// stored, but they may be deleted and then replaced with a new value.
type Store interface {
	Source
	Create(key string) (io.WriteCloser, error)
	Delete(key string) error
}

var (
	// ErrKeyExists indicates an attempt to create a key which already exists
	ErrKeyExists = errors.New("Key already exists")

	// ErrNotExist means the key is not in the store
	ErrNotExist = errors.New("Key does not exist")

	// ErrKeyInvalid means the key is empty, is not valid unicode or it
	// escapes the file it names
	ErrKeyInvalid = errors.New("Key is invalid")

	// ErrKeyContainsWhiteSpace means the file id part of a key contains
	// white space
	ErrKeyContainsWhiteSpace = errors.New("Key contains White Space")

	// ErrKeyContainsControlChar means the key contains control characters
	ErrKeyContainsControlChar = errors.New("Key contains Control Characters")
)

// SplitKey separates a key into the file id and the relative path, which is
// empty if the key names the file itself.
func SplitKey(key string) (fileID, rel string, err error) {
	if err = isKeyValid(key); err != nil {
		return
	}
	fileID = key
	if i := strings.IndexByte(key, '/'); i != -1 {
		fileID, rel = key[:i], key[i+1:]
	}
	return
}

// Some simple key validations. File ids are opaque, but they never contain
// white space. The relative path may not contain "." or ".." elements.
func isKeyValid(key string) error {
	if key == "" || !utf8.ValidString(key) {
		return ErrKeyInvalid
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return ErrKeyContainsControlChar
		}
	}
	parts := strings.Split(key, "/")
	for _, r := range parts[0] {
		if unicode.IsSpace(r) {
			return ErrKeyContainsWhiteSpace
		}
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return ErrKeyInvalid
		}
	}
	return nil
}

// NewReader converts a ReaderAt into a io.Reader. It is here as a utility to
// help work with the ReadAtCloser returned by Open.
func NewReader(r io.ReaderAt) io.Reader {
	return &reader{r: r}
}

type reader struct {
	r   io.ReaderAt
	off int64
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		// reading less than a full buffer is not an error for
		// an io.Reader
		err = nil
	}
	return
}
