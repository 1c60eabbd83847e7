package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// a fixture member. Content is ignored for directories.
type member struct {
	name    string
	content string
}

var fixture = []member{
	{"bag/", ""},
	{"bag/bagit.txt", "BagIt-Version: 1.0\nTag-File-Character-Encoding: UTF-8\n"},
	{"bag/data/", ""},
	{"bag/data/hello1", "hello"},
	{"bag/data/empty", ""},
	{"bag/data/sub/", ""},
	{"bag/data/sub/big", strings.Repeat("0123456789", 10000)},
	{"bag/manifest-md5.txt", "5d41402abc4b2a76b9719d911017c592 data/hello1\n"},
}

func makeArchive(t *testing.T, f Format, members []member) []byte {
	buf := new(bytes.Buffer)
	switch f {
	case Zip:
		z := zip.NewWriter(buf)
		for _, m := range members {
			header := zip.FileHeader{
				Name:   m.name,
				Method: zip.Deflate,
			}
			header.SetModTime(time.Now())
			out, err := z.CreateHeader(&header)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasSuffix(m.name, "/") {
				out.Write([]byte(m.content))
			}
		}
		if err := z.Close(); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	case Tar:
		writeTar(t, buf, members)
	case TarGzip:
		w := gzip.NewWriter(buf)
		writeTar(t, w, members)
		w.Close()
	case TarZstd:
		w, err := zstd.NewWriter(buf)
		if err != nil {
			t.Fatal(err)
		}
		writeTar(t, w, members)
		w.Close()
	case TarLz4:
		w := lz4.NewWriter(buf)
		writeTar(t, w, members)
		w.Close()
	default:
		t.Fatalf("no writer for %s", f)
	}
	return buf.Bytes()
}

// writeTar writes directory names without the trailing slash and with a
// leading "./", the way many tar tools do.
func writeTar(t *testing.T, w io.Writer, members []member) {
	tw := tar.NewWriter(w)
	for _, m := range members {
		h := &tar.Header{
			Name:    "./" + m.name,
			Mode:    0644,
			ModTime: time.Now(),
		}
		if strings.HasSuffix(m.name, "/") {
			h.Name = "./" + strings.TrimSuffix(m.name, "/")
			h.Typeflag = tar.TypeDir
			h.Mode = 0755
		} else {
			h.Typeflag = tar.TypeReg
			h.Size = int64(len(m.content))
		}
		if err := tw.WriteHeader(h); err != nil {
			t.Fatal(err)
		}
		if h.Typeflag == tar.TypeReg {
			tw.Write([]byte(m.content))
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
}

var allFormats = []Format{Zip, Tar, TarGzip, TarZstd, TarLz4}

func TestFormatFromName(t *testing.T) {
	var table = []struct {
		name   string
		format Format
		ok     bool
	}{
		{"bag.zip", Zip, true},
		{"bag.ZIP", Zip, true},
		{"bag.tar", Tar, true},
		{"bag.tgz", TarGzip, true},
		{"bag.tar.gz", TarGzip, true},
		{"bag.tar.zst", TarZstd, true},
		{"bag.tar.lz4", TarLz4, true},
		{"bag.rar", Unknown, false},
		{"bag", Unknown, false},
	}
	for _, tab := range table {
		f, err := FormatFromName(tab.name)
		if tab.ok && (err != nil || f != tab.format) {
			t.Errorf("%s: received (%s, %v), expected %s", tab.name, f, err, tab.format)
		} else if !tab.ok {
			if _, ok := err.(*UnsupportedFormatError); !ok {
				t.Errorf("%s: received %v, expected UnsupportedFormatError", tab.name, err)
			}
		}
	}
}

func TestFormatsAreEquivalent(t *testing.T) {
	var goal []string
	for _, m := range fixture {
		goal = append(goal, m.name)
	}
	for _, f := range allFormats {
		t.Logf("Doing %s", f)
		b := makeArchive(t, f, fixture)
		a, err := New(bytes.NewReader(b), int64(len(b)), f)
		if err != nil {
			t.Fatalf("%s: %s", f, err)
		}
		if a.Format() != f {
			t.Errorf("%s: format is %s", f, a.Format())
		}
		if !reflect.DeepEqual(a.Entries(), goal) {
			t.Errorf("%s: entries %v, expected %v", f, a.Entries(), goal)
		}
		for _, m := range fixture {
			if strings.HasSuffix(m.name, "/") {
				if !a.IsDir(m.name) || !a.IsDir(strings.TrimSuffix(m.name, "/")) {
					t.Errorf("%s: %s is not a directory", f, m.name)
				}
				continue
			}
			if a.IsDir(m.name) {
				t.Errorf("%s: %s is a directory", f, m.name)
			}
			checkContent(t, a, m.name, m.content)
			e, err := a.Stat(m.name)
			if err != nil || e.Size != int64(len(m.content)) {
				t.Errorf("%s: stat %s gave (%v, %v)", f, m.name, e, err)
			}
		}
		a.Close()
	}
}

func checkContent(t *testing.T, a Archive, name, goal string) {
	rc, err := a.Open(name)
	if err != nil {
		t.Errorf("%s: open %s: %s", a.Format(), name, err)
		return
	}
	defer rc.Close()
	data, err := ioutil.ReadAll(rc)
	if err != nil {
		t.Errorf("%s: read %s: %s", a.Format(), name, err)
	}
	if string(data) != goal {
		t.Errorf("%s: %s has %d bytes, expected %d", a.Format(), name, len(data), len(goal))
	}
}

func TestOpenMissing(t *testing.T) {
	for _, f := range allFormats {
		b := makeArchive(t, f, fixture)
		a, err := New(bytes.NewReader(b), int64(len(b)), f)
		if err != nil {
			t.Fatal(err)
		}
		_, err = a.Open("bag/nothere")
		if _, ok := err.(*EntryNotFoundError); !ok {
			t.Errorf("%s: received %v, expected EntryNotFoundError", f, err)
		}
		_, err = a.Open("bag/data/")
		if err != ErrIsDir {
			t.Errorf("%s: received %v, expected ErrIsDir", f, err)
		}
	}
}

func TestIndependentStreams(t *testing.T) {
	// two streams of a compressed archive must not share a decompressor
	b := makeArchive(t, TarGzip, fixture)
	a, err := New(bytes.NewReader(b), int64(len(b)), TarGzip)
	if err != nil {
		t.Fatal(err)
	}
	r1, _ := a.Open("bag/data/sub/big")
	r2, _ := a.Open("bag/data/hello1")
	p := make([]byte, 5)
	io.ReadFull(r1, p)
	if string(p) != "01234" {
		t.Errorf("Received %q from first stream", p)
	}
	io.ReadFull(r2, p)
	if string(p) != "hello" {
		t.Errorf("Received %q from second stream", p)
	}
	io.ReadFull(r1, p)
	if string(p) != "56789" {
		t.Errorf("Received %q from first stream", p)
	}
	r1.Close()
	r2.Close()
}

func TestTarLinks(t *testing.T) {
	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)
	tw.WriteHeader(&tar.Header{Name: "bag/data/a", Typeflag: tar.TypeReg, Size: 3, Mode: 0644})
	tw.Write([]byte("abc"))
	tw.WriteHeader(&tar.Header{Name: "bag/data/b", Typeflag: tar.TypeSymlink, Linkname: "a"})
	tw.WriteHeader(&tar.Header{Name: "bag/data/c", Typeflag: tar.TypeLink, Linkname: "bag/data/a"})
	tw.Close()

	a, err := New(bytes.NewReader(buf.Bytes()), int64(buf.Len()), Tar)
	if err != nil {
		t.Fatal(err)
	}
	checkContent(t, a, "bag/data/b", "abc")
	checkContent(t, a, "bag/data/c", "abc")
}

func TestOpenFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "archive")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	for _, f := range []Format{Zip, Tar} {
		fname := filepath.Join(dir, "bag."+f.String())
		if err := ioutil.WriteFile(fname, makeArchive(t, f, fixture), 0644); err != nil {
			t.Fatal(err)
		}
		a, err := OpenFile(fname, f)
		if err != nil {
			t.Fatalf("%s: %s", fname, err)
		}
		checkContent(t, a, "bag/data/hello1", "hello")
		if err := a.Close(); err != nil {
			t.Error(err)
		}
	}

	_, err = OpenFile(filepath.Join(dir, "missing.zip"), Zip)
	if err == nil {
		t.Error("Expected error opening missing file")
	}
}
