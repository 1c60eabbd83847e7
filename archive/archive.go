// Package archive provides a uniform, read-only view over the bundle formats
// the lambdas receive: zip files, plain tar files and compressed tar files
// (gzip, zstd and lz4).
//
// Every format is exposed through the same small capability set, the Archive
// interface. Callers never need to know which concrete type they hold. The
// format is picked from the file name with FormatFromName.
//
// An Archive is not safe for concurrent use. A job that needs to read an
// archive should open its own Archive and close it when it is done. The
// streams returned by Open are independent of each other, but they all read
// from the same underlying io.ReaderAt.
package archive

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Format identifies the container format of an archive.
type Format int

// The supported archive formats.
const (
	Unknown Format = iota
	Zip
	Tar
	TarGzip
	TarZstd
	TarLz4
)

func (f Format) String() string {
	switch f {
	case Zip:
		return "zip"
	case Tar:
		return "tar"
	case TarGzip:
		return "tgz"
	case TarZstd:
		return "tzst"
	case TarLz4:
		return "tlz4"
	}
	return "unknown"
}

// FormatFromName returns the archive format implied by the extension of
// name. Only the last extension is looked at, so "bag.tar.gz" is a TarGzip
// archive. An *UnsupportedFormatError is returned for anything else.
func FormatFromName(name string) (Format, error) {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".zip":
		return Zip, nil
	case ".tar":
		return Tar, nil
	case ".tgz", ".gz":
		return TarGzip, nil
	case ".tzst", ".zst":
		return TarZstd, nil
	case ".tlz4", ".lz4":
		return TarLz4, nil
	}
	return Unknown, &UnsupportedFormatError{Ext: ext}
}

// Entry describes a single member of an archive.
type Entry struct {
	Name string // full path inside the archive. Directories end with "/"
	Size int64  // uncompressed size in bytes
	Dir  bool
}

// Archive is the capability set shared by every archive format.
type Archive interface {
	// Format returns the container format of this archive.
	Format() Format

	// Entries lists the path of every member, in archive order. The list
	// is computed when the archive is opened and the same slice is
	// returned on every call. Do not modify it.
	Entries() []string

	// Open returns a stream with the content of the named member.
	Open(name string) (io.ReadCloser, error)

	// Stat returns the entry information for the named member.
	Stat(name string) (Entry, error)

	// IsDir reports whether name is a directory, either by the path
	// convention (a trailing slash) or because the archive has an
	// explicit directory entry for it.
	IsDir(name string) bool

	// Close releases the underlying byte source, if the archive owns it.
	Close() error
}

// ReadAtCloser is a random access byte source which can be closed.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// UnsupportedFormatError means the archive type could not be recognized
// from its name.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return "Unsupported archive type: no extension"
	}
	return fmt.Sprintf("Unsupported archive type: %s", e.Ext)
}

// Expected marks this as an error caused by the input, not by the system.
func (e *UnsupportedFormatError) Expected() bool { return true }

// EntryNotFoundError means a member with the given name is not in the
// archive.
type EntryNotFoundError struct {
	Name string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("%s not found in archive", e.Name)
}

// Expected marks this as an error caused by the input, not by the system.
func (e *EntryNotFoundError) Expected() bool { return true }

var (
	// ErrIsDir is returned when trying to open a directory entry as a
	// stream.
	ErrIsDir = errors.New("entry is a directory")
)

// New returns an Archive reading from r, which holds size bytes in the given
// format. Closing the returned Archive does not close r.
func New(r io.ReaderAt, size int64, f Format) (Archive, error) {
	switch f {
	case Zip:
		return newZip(r, size, nil)
	case Tar, TarGzip, TarZstd, TarLz4:
		return newTar(r, size, f, nil)
	}
	return nil, &UnsupportedFormatError{Ext: f.String()}
}

// Open is like New, but the returned Archive takes ownership of rc and will
// close it when the Archive is closed. If an error is returned, rc has
// already been closed.
func Open(rc ReadAtCloser, size int64, f Format) (Archive, error) {
	var a Archive
	var err error
	switch f {
	case Zip:
		a, err = newZip(rc, size, rc)
	case Tar, TarGzip, TarZstd, TarLz4:
		a, err = newTar(rc, size, f, rc)
	default:
		err = &UnsupportedFormatError{Ext: f.String()}
	}
	if err != nil {
		rc.Close()
		return nil, err
	}
	return a, nil
}

// OpenFile opens the archive stored in the file at path.
func OpenFile(path string, f Format) (Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening archive")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, "opening archive")
	}
	return Open(file, info.Size(), f)
}

// normalize cleans a member name so equivalent zip and tar archives give the
// same listing: a leading "./" is removed and directories end in a slash.
func normalize(name string, dir bool) string {
	for strings.HasPrefix(name, "./") {
		name = name[2:]
	}
	if dir && name != "" && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}

// parentReadCloser closes both the member stream and whatever it was
// decoded from.
type parentReadCloser struct {
	parent io.Closer
	io.Reader
}

func (r *parentReadCloser) Close() error {
	return r.parent.Close()
}
