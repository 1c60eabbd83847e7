package store

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// Mounted reads and writes files through a mounted Oneclient. Oneclient
// exposes every file by its id as a hidden entry of the mount point, so a
// key "<file id>/a/b" is the file "a/b" inside the directory with that id.
//
// If Mmap is set, files are mapped into memory instead of issuing a read for
// every access. This helps zip archives, where the central directory and
// every member header would otherwise cost a network round trip.
type Mounted struct {
	Root string
	Mmap bool
}

// FileIDPrefix is the name prefix Oneclient uses for its by-id entries.
const FileIDPrefix = ".__onedata__file_id__"

var (
	// make sure it implements the Store interface
	_ Store = &Mounted{}
)

// NewMounted creates a new Mounted store for the Oneclient mounted at root.
func NewMounted(root string) *Mounted {
	return &Mounted{Root: root}
}

// Path returns the local path of the given key.
func (s *Mounted) Path(key string) (string, error) {
	fileID, rel, err := SplitKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, FileIDPrefix+fileID, filepath.FromSlash(rel)), nil
}

// Open returns a reader for the given file along with its size.
func (s *Mounted) Open(key string) (ReadAtCloser, int64, error) {
	fname, err := s.Path(key)
	if err != nil {
		return nil, 0, err
	}
	return OpenFile(fname, s.Mmap)
}

// OpenFile opens a local file, possibly mapping it into memory. Empty files
// cannot be mapped and are always opened normally.
func OpenFile(fname string, mapped bool) (ReadAtCloser, int64, error) {
	f, err := os.Open(fname)
	if os.IsNotExist(err) {
		return nil, 0, ErrNotExist
	} else if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if !mapped || fi.Size() == 0 || !fi.Mode().IsRegular() {
		return f, fi.Size(), nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	// the mapping stays valid after the file is closed
	f.Close()
	if err != nil {
		return nil, 0, errors.Wrap(err, fname)
	}
	return &mappedFile{Reader: bytes.NewReader(m), m: m}, int64(len(m)), nil
}

type mappedFile struct {
	*bytes.Reader
	m mmap.MMap
}

func (mf *mappedFile) Close() error {
	return mf.m.Unmap()
}

// Create creates a new file with the given key, and a writer to allow for
// saving data into it. Any missing parent directories are made. The data is
// written to a temporary file next to the target, which is renamed into
// place on Close.
func (s *Mounted) Create(key string) (io.WriteCloser, error) {
	target, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	_, err = os.Stat(target)
	if !os.IsNotExist(err) {
		return nil, ErrKeyExists
	}
	dir, name := filepath.Split(target)
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, err
	}
	temp := filepath.Join(dir, ".tmp."+name)
	// pass the O_EXCL flag explicitly to prevent overwriting
	// already existing files
	w, err := os.OpenFile(temp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return nil, err
	}
	return &moveCloser{w, temp, target}, nil
}

// track the file so when it is closed, we can move it into the correct place
type moveCloser struct {
	io.WriteCloser
	source string
	target string
}

func (w *moveCloser) Close() error {
	err := w.WriteCloser.Close()
	if err != nil {
		os.Remove(w.source)
		return err
	}
	_, err = os.Stat(w.target)
	if !os.IsNotExist(err) {
		os.Remove(w.source)
		return ErrKeyExists
	}
	return os.Rename(w.source, w.target)
}

// Delete the given key from the store. It is not an error if the key doesn't
// exist. Directories are not removed.
func (s *Mounted) Delete(key string) error {
	fname, err := s.Path(key)
	if err != nil {
		return err
	}
	err = os.Remove(fname)
	// don't report a missing file as an error
	if err != nil && os.IsNotExist(err) {
		err = nil
	}
	return err
}
