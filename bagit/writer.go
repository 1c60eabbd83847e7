package bagit

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/onedata/automation-examples/archive"
	"github.com/onedata/automation-examples/checksum"
)

// Writer allows for writing a new bag into a zip file or a tar file, which
// may be compressed.
// When it is closed, all the relevant tag files and manifests will be
// written out.
//
// Payload manifests are written for MD5 and SHA256, and a tag manifest for
// MD5.
type Writer struct {
	out     entryWriter
	dirname string                                   // includes trailing slash
	tags    map[string]string                        // contents of bag-info.txt
	sums    map[string]map[checksum.Algorithm]string // by bag relative name
	mh      *checksum.MultiHasher                    // hasher of the current file
	current string                                   // bag relative name of current file
	ns      int                                      // number of payload files
	sz      int64                                    // size of the payload files, in bytes
}

var writerAlgorithms = []checksum.Algorithm{checksum.MD5, checksum.SHA256}

// NewWriter creates a new bag writer which will serialize itself to w in
// the given archive format. Use name to set the directory name the bag will
// unserialize into.
func NewWriter(w io.Writer, name string, f archive.Format) (*Writer, error) {
	var out entryWriter
	switch f {
	case archive.Zip:
		out = &zipEntryWriter{z: zip.NewWriter(w)}
	case archive.Tar:
		out = &tarEntryWriter{t: tar.NewWriter(w)}
	case archive.TarGzip:
		gz := gzip.NewWriter(w)
		out = &tarEntryWriter{t: tar.NewWriter(gz), outer: gz}
	case archive.TarZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, err
		}
		out = &tarEntryWriter{t: tar.NewWriter(zw), outer: zw}
	case archive.TarLz4:
		lw := lz4.NewWriter(w)
		out = &tarEntryWriter{t: tar.NewWriter(lw), outer: lw}
	default:
		return nil, &archive.UnsupportedFormatError{Ext: f.String()}
	}
	return &Writer{
		out:     out,
		dirname: name + "/",
		tags:    make(map[string]string),
		sums:    make(map[string]map[checksum.Algorithm]string),
	}, nil
}

// Close this Writer and serialize all necessary bookkeeping files. It does
// not close the original io.Writer provided to NewWriter().
func (w *Writer) Close() error {
	w.tags["Payload-Oxum"] = fmt.Sprintf("%d.%d", w.sz, w.ns)
	w.tags["Bagging-Date"] = time.Now().Format("2006-01-02")
	w.tags["Bag-Size"] = humansize(w.sz)

	err := w.writeTags()
	if err == nil {
		err = w.writeManifests()
	}
	if err == nil {
		err = w.finish()
	}
	if err != nil {
		return err
	}
	return w.out.Close()
}

// SetTag adds the given tag to this bag, and sets it to be equal to content.
// The bag writer will add the tags "Payload-Oxum", "Bagging-Date", and
// "Bag-Size" itself.
func (w *Writer) SetTag(tag, content string) {
	w.tags[tag] = content
}

// Create a new file inside this bag. The file will be put inside the "data/"
// directory. The returned writer is valid until the next call to Create or
// Close.
func (w *Writer) Create(name string) (io.Writer, error) {
	w.ns++
	out, err := w.create("data/" + name)
	if err != nil {
		return nil, err
	}
	return &countWriter{
		w:     out,
		count: &w.sz,
	}, nil
}

// create is for internal use. It allows non-payload files to be written.
func (w *Writer) create(name string) (io.Writer, error) {
	if err := w.finish(); err != nil {
		return nil, err
	}
	out, err := w.out.Create(w.dirname + name)
	if err != nil {
		return nil, err
	}
	w.mh, err = checksum.NewMultiHasher(out, writerAlgorithms...)
	w.current = name
	return w.mh, err
}

// finish saves the checksums of the file being written, if any.
func (w *Writer) finish() error {
	if w.mh == nil {
		return nil
	}
	w.sums[w.current] = w.mh.Sums()
	w.mh = nil
	return w.out.Flush()
}

// Checksum returns the checksums of what has been written so far to the
// last io.Writer returned by Create().
func (w *Writer) Checksum() map[checksum.Algorithm]string {
	if w.mh == nil {
		return nil
	}
	return w.mh.Sums()
}

func (w *Writer) writeTags() error {
	// first write bag-it marker file
	out, err := w.create("bagit.txt")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "BagIt-Version: %s\n", Version)
	fmt.Fprintf(out, "Tag-File-Character-Encoding: UTF-8\n")

	// now write tags file
	out, err = w.create("bag-info.txt")
	if err != nil {
		return err
	}
	for _, k := range sortedKeys(w.tags) {
		fmt.Fprintf(out, "%s: %s\n", k, w.tags[k])
	}
	return nil
}

func (w *Writer) writeManifests() error {
	// ensure any pending checksum is saved
	if err := w.finish(); err != nil {
		return err
	}
	for _, alg := range writerAlgorithms {
		if err := w.manifest(false, alg); err != nil {
			return err
		}
	}
	// the payload manifests have to be finished before the tag manifest
	// can list them
	if err := w.finish(); err != nil {
		return err
	}
	return w.manifest(true, checksum.MD5)
}

func (w *Writer) manifest(istag bool, alg checksum.Algorithm) error {
	var names []string
	for fname := range w.sums {
		// tag manifests only include files NOT having the prefix "data/"
		if istag == strings.HasPrefix(fname, "data/") {
			continue
		}
		names = append(names, fname)
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	var mname = manifestName(alg)
	if istag {
		mname = tagManifestName(alg)
	}
	out, err := w.create(mname)
	if err != nil {
		return err
	}
	for _, fname := range names {
		// The 2 spaces is to be identical to the GNU md5sum output.
		fmt.Fprintf(out, "%s  %s\n", w.sums[fname][alg], fname)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// entryWriter hides the differences between the zip and tar writers.
type entryWriter interface {
	Create(name string) (io.Writer, error)
	// Flush finishes the current entry.
	Flush() error
	Close() error
}

type zipEntryWriter struct {
	z *zip.Writer
}

func (z *zipEntryWriter) Create(name string) (io.Writer, error) {
	header := zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	}
	header.SetModTime(time.Now())
	return z.z.CreateHeader(&header)
}

func (z *zipEntryWriter) Flush() error { return nil }
func (z *zipEntryWriter) Close() error { return z.z.Close() }

// tarEntryWriter buffers each file in memory, since a tar header needs the
// size of the file before its content.
type tarEntryWriter struct {
	t     *tar.Writer
	outer io.WriteCloser // compressor, if any
	name  string
	buf   *bytes.Buffer
}

func (t *tarEntryWriter) Create(name string) (io.Writer, error) {
	if err := t.Flush(); err != nil {
		return nil, err
	}
	t.name = name
	t.buf = new(bytes.Buffer)
	return t.buf, nil
}

func (t *tarEntryWriter) Flush() error {
	if t.buf == nil {
		return nil
	}
	err := t.t.WriteHeader(&tar.Header{
		Name:     t.name,
		Typeflag: tar.TypeReg,
		Mode:     0644,
		Size:     int64(t.buf.Len()),
		ModTime:  time.Now(),
	})
	if err == nil {
		_, err = t.t.Write(t.buf.Bytes())
	}
	t.buf = nil
	return err
}

func (t *tarEntryWriter) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	err := t.t.Close()
	if t.outer != nil {
		err2 := t.outer.Close()
		if err == nil {
			err = err2
		}
	}
	return err
}

// countWriter is an io.Writer that counts the number of bytes written to it.
type countWriter struct {
	w     io.Writer
	count *int64
}

func (w *countWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	*w.count += int64(n)
	return n, err
}

// Metric constants for humansize. Lowercased so as to be unexported.
const (
	kb int64 = 1000
	mb       = 1000 * kb
	gb       = 1000 * mb
	tb       = 1000 * gb
)

func humansize(size int64) string {
	var units string
	switch {
	case size < kb:
		units = "Bytes"
	case size < mb:
		size /= kb
		units = "KB"
	case size < gb:
		size /= mb
		units = "MB"
	case size < tb:
		size /= gb
		units = "GB"
	default:
		size /= tb
		units = "TB"
	}
	return fmt.Sprintf("%d %s", size, units)
}
