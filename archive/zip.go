package archive

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/pkg/errors"
)

type zipArchive struct {
	z      *zip.Reader
	closer io.Closer // may be nil
	names  []string
	files  map[string]*zip.File
}

func newZip(r io.ReaderAt, size int64, closer io.Closer) (*zipArchive, error) {
	z, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrap(err, "reading zip directory")
	}
	result := &zipArchive{
		z:      z,
		closer: closer,
		names:  make([]string, 0, len(z.File)),
		files:  make(map[string]*zip.File, len(z.File)),
	}
	for _, f := range z.File {
		name := normalize(f.Name, f.FileInfo().IsDir())
		if name == "" {
			continue
		}
		if _, ok := result.files[name]; ok {
			// duplicate member. the first one wins, as it does in
			// the listing
			continue
		}
		result.names = append(result.names, name)
		result.files[name] = f
	}
	return result, nil
}

func (za *zipArchive) Format() Format     { return Zip }
func (za *zipArchive) Entries() []string { return za.names }

func (za *zipArchive) Open(name string) (io.ReadCloser, error) {
	f, ok := za.files[name]
	if !ok {
		return nil, &EntryNotFoundError{Name: name}
	}
	if za.IsDir(name) {
		return nil, ErrIsDir
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", name)
	}
	return rc, nil
}

func (za *zipArchive) Stat(name string) (Entry, error) {
	f, ok := za.files[name]
	if !ok {
		return Entry{}, &EntryNotFoundError{Name: name}
	}
	return Entry{
		Name: name,
		Size: int64(f.UncompressedSize64),
		Dir:  za.IsDir(name),
	}, nil
}

func (za *zipArchive) IsDir(name string) bool {
	if strings.HasSuffix(name, "/") {
		return true
	}
	_, ok := za.files[name+"/"]
	return ok
}

func (za *zipArchive) Close() error {
	if za.closer == nil {
		return nil
	}
	return za.closer.Close()
}
