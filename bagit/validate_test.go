package bagit

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/onedata/automation-examples/archive"
	"github.com/onedata/automation-examples/checksum"
)

type zdata map[string]string

const testDecl = "BagIt-Version: 1.0\nTag-File-Character-Encoding: UTF-8\n"

var testFormats = []archive.Format{archive.Zip, archive.Tar, archive.TarGzip}

// withDecl returns a copy of contents having a bagit.txt file.
func withDecl(contents zdata) zdata {
	result := zdata{"bagit.txt": testDecl}
	for k, v := range contents {
		result[k] = v
	}
	return result
}

func TestVerify(t *testing.T) {
	var table = []struct {
		name     string
		contents zdata
		strict   bool // outcome with StrictPolicy
		lenient  bool // outcome with LenientPolicy
	}{
		// payload files split between two manifests
		{"ok-1", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "49ce66cef8d32ec33eca290c2c731185 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, true, true},
		// extra payload file
		{"extra-1", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"tagmanifest-md5.txt": "49ce66cef8d32ec33eca290c2c731185 manifest-md5.txt\n",
		}, false, true},
		// missing payload file
		{"extra-2", zdata{
			"data/hello1":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "49ce66cef8d32ec33eca290c2c731185 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, false, true},
		// missing tag file
		{"extra-3", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "49ce66cef8d32ec33eca290c2c731185 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\nabcdef missing.txt\n",
		}, false, false},
		// mismatch payload file
		{"checksum-1", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "00000000000000000000000000000000 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "d0d355c1ef01ef6a24b68112d62b1700 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, false, true},
		// mismatch tag file
		{"checksum-2", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "00000000000000000000000000000000 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, false, false},
		// extra tag file
		{"checksum-3", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"tagfile.txt":         "extra tag file",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "49ce66cef8d32ec33eca290c2c731185 manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, true, true},
		// manifest not hex
		{"manifest-1", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"tagfile.txt":         "extra tag file",
			"manifest-md5.txt":    "thisisnothexdata0000000000000000 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "f6c4e3fa0e551b551b1fc171f01c1bdf manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, false, true},
		// malformed manifest -- missing final newline
		{"manifest-2", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824 data/hello2\n",
			"tagmanifest-md5.txt": "2afc9fa64386fe74f0500bc6f83b9d9c manifest-md5.txt\nbd41f3fc8aa771760265275d3576a30a manifest-sha256.txt\n",
		}, true, true},
		// manifest line only has hash
		{"manifest-3", zdata{
			"data/hello1":         "hello",
			"data/hello2":         "hello",
			"manifest-md5.txt":    "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
			"manifest-sha256.txt": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824\n",
			"tagmanifest-md5.txt": "49ce66cef8d32ec33eca290c2c731185 manifest-md5.txt\n7f99901f307a7264f7be8560035dc166 manifest-sha256.txt\n",
		}, false, true},
		// payload outside of data directory
		{"manifest-4", zdata{
			"data/hello1":      "hello",
			"hello1":           "hello",
			"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592 hello1\n",
		}, false, true},
	}

	strict := &Validator{Policy: StrictPolicy}
	lenient := &Validator{Policy: LenientPolicy}
	for _, f := range testFormats {
		for _, tab := range table {
			t.Logf("Doing %s %s", f, tab.name)
			a := makeBag(t, f, withDecl(tab.contents))
			err := strict.Validate(a)
			if tab.strict && err != nil {
				t.Errorf("Error, strict valid returned %s", err.Error())
			} else if !tab.strict && err == nil {
				t.Errorf("Error, strict valid returned nil")
			}
			err = lenient.Validate(a)
			if tab.lenient && err != nil {
				t.Errorf("Error, lenient valid returned %s", err.Error())
			} else if !tab.lenient && err == nil {
				t.Errorf("Error, lenient valid returned nil")
			}
			a.Close()
		}
	}
}

func TestMinimalBag(t *testing.T) {
	minimal := zdata{
		"bagit.txt":        testDecl,
		"data/hello1":      "hello",
		"data/empty":       "",
		"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592  data/hello1\nd41d8cd98f00b204e9800998ecf8427e  data/empty\n",
	}
	v := &Validator{Policy: StrictPolicy}
	for _, f := range testFormats {
		t.Logf("Doing %s", f)
		err := v.Validate(makeBag(t, f, minimal))
		if err != nil {
			t.Errorf("%s: received %s", f, err)
		}

		// corrupt one byte of the payload
		corrupt := withDecl(minimal)
		corrupt["data/hello1"] = "hellp"
		err = v.Validate(makeBag(t, f, corrupt))
		cerr, ok := err.(*ChecksumMismatchError)
		if !ok {
			t.Errorf("%s: received %v, expected ChecksumMismatchError", f, err)
		} else if cerr.Algorithm != "md5" || cerr.Path != "test/data/hello1" ||
			cerr.Computed != "c983190483df167d2a3841463c2a9341" {
			t.Errorf("%s: received %#v", f, cerr)
		}

		// no bagit.txt
		nodecl := withDecl(minimal)
		delete(nodecl, "bagit.txt")
		err = v.Validate(makeBag(t, f, nodecl))
		if _, ok := err.(*StructureError); !ok {
			t.Errorf("%s: received %v, expected StructureError", f, err)
		}
	}
}

func TestPolicy(t *testing.T) {
	var table = []struct {
		name     string
		contents zdata
		policy   Policy
		ok       bool
	}{
		{"no-manifest-lenient", zdata{"data/a": "a"}, LenientPolicy, true},
		{"no-manifest-required", zdata{"data/a": "a"}, Policy{RequireManifest: true}, false},
		{"no-data", zdata{}, LenientPolicy, false},
		{"fetch-only", zdata{
			"fetch.txt":        "http://example.com/a 5 data/a\n",
			"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592 data/a\n",
		}, Policy{RequireCompleteness: true}, true},
		{"fetch-and-data", zdata{
			"data/b":           "hello",
			"fetch.txt":        "http://example.com/a 5 data/a\n",
			"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592 data/a\n5d41402abc4b2a76b9719d911017c592 data/b\n",
		}, StrictPolicy, false}, // data/a can not be verified
		{"fetch-unreferenced", zdata{
			"data/b":           "hello",
			"fetch.txt":        "http://example.com/a 5 data/a\n",
			"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592 data/b\n",
		}, Policy{RequireCompleteness: true}, false},
		{"adler32-padded", zdata{
			"data/hello1":          "hello",
			"manifest-adler32.txt": "062c0215 data/hello1\n",
		}, StrictPolicy, true},
		{"adler32-unpadded", zdata{
			"data/hello1":          "hello",
			"manifest-adler32.txt": "62c0215 data/hello1\n",
		}, StrictPolicy, true},
		{"sha3", zdata{
			"data/empty":            "",
			"manifest-sha3_256.txt": "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a data/empty\n",
		}, StrictPolicy, true},
		{"bad-fetch", zdata{
			"fetch.txt": "http://example.com/a 5 a\n",
		}, Policy{RequireCompleteness: true}, false},
	}
	for _, tab := range table {
		t.Logf("Doing %s", tab.name)
		v := &Validator{Policy: tab.policy}
		err := v.Validate(makeBag(t, archive.Zip, withDecl(tab.contents)))
		if tab.ok && err != nil {
			t.Errorf("%s: received %s", tab.name, err)
		} else if !tab.ok && err == nil {
			t.Errorf("%s: received nil", tab.name)
		}
	}
}

func TestCompletenessReport(t *testing.T) {
	v := &Validator{Policy: StrictPolicy}
	err := v.Validate(makeBag(t, archive.Tar, withDecl(zdata{
		"data/hello1":      "hello",
		"data/extra":       "hello",
		"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592 data/hello1\n5d41402abc4b2a76b9719d911017c592 data/gone\n",
	})))
	serr, ok := err.(*StructureError)
	if !ok {
		t.Fatalf("Received %v, expected StructureError", err)
	}
	if len(serr.Unreferenced) != 1 || serr.Unreferenced[0] != "data/extra" {
		t.Errorf("Unreferenced is %v", serr.Unreferenced)
	}
	if len(serr.Missing) != 1 || serr.Missing[0] != "data/gone" {
		t.Errorf("Missing is %v", serr.Missing)
	}
}

func TestObserverDuringValidation(t *testing.T) {
	var total int
	v := &Validator{
		Engine: &checksum.Engine{
			ChunkSize: 2,
			Observer:  func(a checksum.Algorithm, n int) { total += n },
		},
		Policy: StrictPolicy,
	}
	err := v.Validate(makeBag(t, archive.TarGzip, withDecl(zdata{
		"data/hello1":      "hello",
		"manifest-md5.txt": "5d41402abc4b2a76b9719d911017c592 data/hello1\n",
	})))
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("Observed %d bytes, expected 5", total)
	}
}

func TestCheckDeclaration(t *testing.T) {
	var table = []struct {
		input string
		ok    bool
	}{
		{testDecl, true},
		{"BagIt-Version: 0.97\nTag-File-Character-Encoding: UTF-8", true},
		{"  BagIt-Version: 1.0  \r\nTag-File-Character-Encoding: UTF-8\r\n", true},
		{"BagIt-Version: 1\nTag-File-Character-Encoding: UTF-8\n", false},
		{"BagIt-Version: 1.0\nTag-File-Character-Encoding: \n", false},
		{"BagIt-Version: 1.0\n", false},
		{"BagIt-Version: 1.0\nTag-File-Character-Encoding: UTF-8\nExtra: line\n", false},
		{"Tag-File-Character-Encoding: UTF-8\nBagIt-Version: 1.0\n", false},
		{"", false},
	}
	for _, tab := range table {
		err := CheckDeclaration(bytes.NewReader([]byte(tab.input)))
		if tab.ok && err != nil {
			t.Errorf("%q: received %s", tab.input, err)
		} else if !tab.ok {
			if _, ok := err.(*StructureError); !ok {
				t.Errorf("%q: received %v, expected StructureError", tab.input, err)
			}
		}
	}
}

func makeBag(t *testing.T, f archive.Format, contents zdata) archive.Archive {
	buf := new(bytes.Buffer)
	switch f {
	case archive.Zip:
		makezipfile(buf, contents)
	case archive.Tar:
		maketarfile(buf, contents)
	case archive.TarGzip:
		gz := gzip.NewWriter(buf)
		maketarfile(gz, contents)
		gz.Close()
	default:
		t.Fatalf("no fixture writer for %s", f)
	}
	a, err := archive.New(bytes.NewReader(buf.Bytes()), int64(buf.Len()), f)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

const dirname = "test/"

func sortedNames(contents zdata) []string {
	var names []string
	for k := range contents {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func makezipfile(w io.Writer, contents zdata) {
	z := zip.NewWriter(w)
	for _, k := range sortedNames(contents) {
		header := zip.FileHeader{
			Name:   dirname + k,
			Method: zip.Store,
		}
		header.SetModTime(time.Now())
		out, _ := z.CreateHeader(&header)
		out.Write([]byte(contents[k]))
	}
	z.Close()
}

// maketarfile also writes directory entries, the way tar does.
func maketarfile(w io.Writer, contents zdata) {
	tw := tar.NewWriter(w)
	tw.WriteHeader(&tar.Header{Name: dirname, Typeflag: tar.TypeDir, Mode: 0755})
	var dataDir bool
	for _, k := range sortedNames(contents) {
		if !dataDir && len(k) > 5 && k[:5] == "data/" {
			tw.WriteHeader(&tar.Header{Name: dirname + "data", Typeflag: tar.TypeDir, Mode: 0755})
			dataDir = true
		}
		v := contents[k]
		tw.WriteHeader(&tar.Header{
			Name:     dirname + k,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(v)),
			ModTime:  time.Now(),
		})
		tw.Write([]byte(v))
	}
	tw.Close()
}
