package archive

import (
	"archive/tar"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// tarArchive serves plain and compressed tar files. The member list is read
// once when the archive is opened.
//
// For a plain tar file the data offset of each member is remembered, and
// Open hands out a section reader over it. A compressed stream cannot be
// seeked, so Open starts a new decompressor from the beginning of the file
// and skips forward to the member. Every stream returned by Open owns its own
// decompressor.
type tarArchive struct {
	format  Format
	r       io.ReaderAt
	size    int64
	closer  io.Closer // may be nil
	names   []string
	entries map[string]*tarEntry
}

type tarEntry struct {
	Entry
	ordinal  int   // position in the tar stream, counting every header
	offset   int64 // start of the data, only valid for plain tar files
	typeflag byte
	linkname string
}

// how many links to follow before giving up
const maxLinkDepth = 8

func newTar(r io.ReaderAt, size int64, f Format, closer io.Closer) (*tarArchive, error) {
	result := &tarArchive{
		format:  f,
		r:       r,
		size:    size,
		closer:  closer,
		entries: make(map[string]*tarEntry),
	}
	stream, err := result.stream()
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	// a plain tar stream is a SectionReader, and tar.Reader will seek past
	// member data instead of reading it.
	seeker, _ := stream.(io.Seeker)

	tr := tar.NewReader(stream)
	for ordinal := 0; ; ordinal++ {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading tar header")
		}
		if h.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		dir := h.Typeflag == tar.TypeDir
		name := normalize(h.Name, dir)
		if name == "" || name == "./" {
			continue
		}
		e := &tarEntry{
			Entry: Entry{
				Name: name,
				Size: h.Size,
				Dir:  dir,
			},
			ordinal:  ordinal,
			typeflag: h.Typeflag,
			linkname: h.Linkname,
		}
		if seeker != nil {
			e.offset, err = seeker.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, errors.Wrap(err, "reading tar header")
			}
		}
		if _, ok := result.entries[name]; !ok {
			result.names = append(result.names, name)
		}
		// later members replace earlier ones, as tar extraction would
		result.entries[name] = e
	}
	return result, nil
}

// stream returns the uncompressed tar stream, starting at the beginning.
func (ta *tarArchive) stream() (io.ReadCloser, error) {
	raw := io.NewSectionReader(ta.r, 0, ta.size)
	switch ta.format {
	case Tar:
		return &sectionCloser{raw}, nil
	case TarGzip:
		zr, err := gzip.NewReader(raw)
		if err != nil {
			return nil, errors.Wrap(err, "reading gzip stream")
		}
		return zr, nil
	case TarZstd:
		zr, err := zstd.NewReader(raw, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, errors.Wrap(err, "reading zstd stream")
		}
		return zr.IOReadCloser(), nil
	case TarLz4:
		return io.NopCloser(lz4.NewReader(raw)), nil
	}
	return nil, &UnsupportedFormatError{Ext: ta.format.String()}
}

func (ta *tarArchive) Format() Format     { return ta.format }
func (ta *tarArchive) Entries() []string { return ta.names }

func (ta *tarArchive) Open(name string) (io.ReadCloser, error) {
	e, err := ta.resolve(name)
	if err != nil {
		return nil, err
	}
	if e.Dir {
		return nil, ErrIsDir
	}
	if ta.format == Tar {
		return io.NopCloser(io.NewSectionReader(ta.r, e.offset, e.Size)), nil
	}

	stream, err := ta.stream()
	if err != nil {
		return nil, err
	}
	tr := tar.NewReader(stream)
	for ordinal := 0; ; ordinal++ {
		_, err := tr.Next()
		if err != nil {
			stream.Close()
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, errors.Wrapf(err, "opening %s", name)
		}
		if ordinal == e.ordinal {
			break
		}
	}
	return &parentReadCloser{parent: stream, Reader: tr}, nil
}

// resolve looks up name, following hard and symbolic links to the member
// holding the data.
func (ta *tarArchive) resolve(name string) (*tarEntry, error) {
	e, ok := ta.entries[name]
	if !ok {
		return nil, &EntryNotFoundError{Name: name}
	}
	for i := 0; i < maxLinkDepth; i++ {
		var target string
		switch e.typeflag {
		case tar.TypeLink:
			target = normalize(e.linkname, false)
		case tar.TypeSymlink:
			target = e.linkname
			if !path.IsAbs(target) {
				target = path.Join(path.Dir(strings.TrimSuffix(e.Name, "/")), target)
			}
			target = normalize(strings.TrimPrefix(target, "/"), false)
		default:
			return e, nil
		}
		next, ok := ta.entries[target]
		if !ok {
			next, ok = ta.entries[target+"/"]
		}
		if !ok {
			return nil, &EntryNotFoundError{Name: target}
		}
		e = next
	}
	return nil, errors.Errorf("too many links resolving %s", name)
}

func (ta *tarArchive) Stat(name string) (Entry, error) {
	e, ok := ta.entries[name]
	if !ok {
		return Entry{}, &EntryNotFoundError{Name: name}
	}
	return e.Entry, nil
}

func (ta *tarArchive) IsDir(name string) bool {
	if strings.HasSuffix(name, "/") {
		return true
	}
	_, ok := ta.entries[name+"/"]
	return ok
}

func (ta *tarArchive) Close() error {
	if ta.closer == nil {
		return nil
	}
	return ta.closer.Close()
}

type sectionCloser struct {
	*io.SectionReader
}

func (sectionCloser) Close() error { return nil }
