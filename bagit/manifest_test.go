package bagit

import (
	"reflect"
	"strings"
	"testing"

	"github.com/onedata/automation-examples/archive"
	"github.com/onedata/automation-examples/checksum"
)

func TestParseManifest(t *testing.T) {
	var table = []struct {
		input string
		paths []string
		line  int // line of the error, -1 for no error
	}{
		{"5d41402abc4b2a76b9719d911017c592 data/hello1\n", []string{"data/hello1"}, -1},
		{"5D41402ABC4B2A76B9719D911017C592\tdata/hello1", []string{"data/hello1"}, -1},
		{"abc  data/with space.txt\r\n\nabc data/b\n", []string{"data/with space.txt", "data/b"}, -1},
		{"abc data/line%0Abreak%25\n", []string{"data/line\nbreak%"}, -1},
		{"abc data/./x/../y\n", []string{"data/y"}, -1},
		{"abc data/a\nabc\n", nil, 2},
		{"xyz data/a\n", nil, 1},
		{"abc ../outside\n", nil, 1},
		{"abc /etc/passwd\n", nil, 1},
		{"", nil, -1},
	}
	for _, tab := range table {
		entries, err := ParseManifest(strings.NewReader(tab.input), checksum.MD5, "manifest-md5.txt")
		if tab.line == -1 {
			if err != nil {
				t.Errorf("%q: received %s", tab.input, err)
				continue
			}
			var paths []string
			for _, e := range entries {
				paths = append(paths, e.Path)
				if e.Algorithm != checksum.MD5 || e.Checksum != strings.ToLower(e.Checksum) {
					t.Errorf("%q: bad entry %#v", tab.input, e)
				}
			}
			if !reflect.DeepEqual(paths, tab.paths) {
				t.Errorf("%q: received %v, expected %v", tab.input, paths, tab.paths)
			}
			continue
		}
		serr, ok := err.(*StructureError)
		if !ok {
			t.Errorf("%q: received %v, expected StructureError", tab.input, err)
			continue
		}
		if serr.Line != tab.line || serr.File != "manifest-md5.txt" {
			t.Errorf("%q: error at %s line %d, expected line %d", tab.input, serr.File, serr.Line, tab.line)
		}
	}
}

func TestParseFetch(t *testing.T) {
	var table = []struct {
		input string
		goal  []FetchEntry
		line  int // line of the error, -1 for no error
	}{
		{"http://example.com/a 10 data/a\n",
			[]FetchEntry{{URL: "http://example.com/a", Size: 10, Path: "data/a", Line: 1}}, -1},
		{"\nhttp://example.com/a - data/dir/a b.txt\n",
			[]FetchEntry{{URL: "http://example.com/a", Size: -1, Path: "data/dir/a b.txt", Line: 2}}, -1},
		{"http://example.com/a 10\n", nil, 1},
		{"http://example.com/a 10 data/a\nhttp://example.com/b ten data/b\n", nil, 2},
		{"http://example.com/a 10 tagfile.txt\n", nil, 1},
		{"http://example.com/a 10 data/../../x\n", nil, 1},
	}
	for _, tab := range table {
		entries, err := ParseFetch(strings.NewReader(tab.input))
		if tab.line == -1 {
			if err != nil {
				t.Errorf("%q: received %s", tab.input, err)
			} else if !reflect.DeepEqual(entries, tab.goal) {
				t.Errorf("%q: received %v, expected %v", tab.input, entries, tab.goal)
			}
			continue
		}
		serr, ok := err.(*StructureError)
		if !ok || serr.Line != tab.line {
			t.Errorf("%q: received %v, expected error on line %d", tab.input, err, tab.line)
		}
	}
}

func TestTagParser(t *testing.T) {
	var table = []struct {
		name     string
		contents zdata
		tags     map[string]string
	}{
		// Parse normal tag file
		{"ok-1",
			zdata{
				"bag-info.txt": "a-tag: some text\nanother-tag: more text\n  extended line",
			},
			map[string]string{
				"BagIt-Version":               "1.0",
				"Tag-File-Character-Encoding": "UTF-8",
				"a-tag":                       "some text",
				"another-tag":                 "more text extended line",
			}},
		{"ok-2",
			zdata{
				"bag-info.txt": "first tag:important\nthis line is skipped\n\n this line continues the first\n",
			},
			map[string]string{
				"BagIt-Version":               "1.0",
				"Tag-File-Character-Encoding": "UTF-8",
				"first tag":                   "important this line continues the first",
			}},
		{"no-bag-info",
			zdata{},
			map[string]string{
				"BagIt-Version":               "1.0",
				"Tag-File-Character-Encoding": "UTF-8",
			}},
	}

	for _, tab := range table {
		t.Logf("Doing %s", tab.name)
		l, err := Resolve(makeBag(t, archive.Zip, withDecl(tab.contents)))
		if err != nil {
			t.Fatal(err)
		}
		tags, err := l.Tags()
		if err != nil {
			t.Error(err)
		}
		if !reflect.DeepEqual(tags, tab.tags) {
			t.Errorf("tags unequal received %#v, expected %#v",
				tags,
				tab.tags)
		}
	}
}

func TestResolve(t *testing.T) {
	for _, f := range testFormats {
		t.Logf("Doing %s", f)
		a := makeBag(t, f, withDecl(zdata{
			"data/hello1":          "hello",
			"data/sub/hello2":      "hello",
			"fetch.txt":            "",
			"manifest-sha512.txt":  "",
			"tagmanifest-sha1.txt": "",
			"manifest-crc32.txt":   "",
		}))
		l, err := Resolve(a)
		if err != nil {
			t.Fatal(err)
		}
		if l.Root != "test" {
			t.Errorf("Root is %q", l.Root)
		}
		if l.Path("data/hello1") != "test/data/hello1" || l.DirPath("data") != "test/data/" {
			t.Errorf("Path gave %s and %s", l.Path("data/hello1"), l.DirPath("data"))
		}
		if rel, ok := l.Rel("test/data/hello1"); !ok || rel != "data/hello1" {
			t.Errorf("Rel gave (%s, %v)", rel, ok)
		}
		if _, ok := l.Rel("other/data/hello1"); ok {
			t.Errorf("Rel accepted a path outside the bag")
		}
		if !l.HasBagitTxt() || !l.HasData() || !l.HasFetch() {
			t.Errorf("Missing control files")
		}
		if !reflect.DeepEqual(l.Manifests(), []checksum.Algorithm{checksum.SHA512}) {
			t.Errorf("Manifests are %v", l.Manifests())
		}
		if !reflect.DeepEqual(l.TagManifests(), []checksum.Algorithm{checksum.SHA1}) {
			t.Errorf("Tag manifests are %v", l.TagManifests())
		}
		if l.HasManifest(checksum.MD5) || !l.HasTagManifest(checksum.SHA1) {
			t.Errorf("Wrong manifest presence")
		}
		goal := []string{"data/hello1", "data/sub/hello2"}
		if !reflect.DeepEqual(l.Payload(), goal) {
			t.Errorf("Payload is %v, expected %v", l.Payload(), goal)
		}
	}
}

func TestResolveNested(t *testing.T) {
	// bagit.txt files deeper in the tree do not count
	a := makeBag(t, archive.Zip, zdata{
		"data/inner/bagit.txt": testDecl,
	})
	_, err := Resolve(a)
	if _, ok := err.(*StructureError); !ok {
		t.Errorf("Received %v, expected StructureError", err)
	}
}
