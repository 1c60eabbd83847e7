package store

import (
	"bytes"
	"errors"
	"io"
	"io/ioutil"
	"strings"
	"testing"
	"time"

	"github.com/facebookgo/clock"
)

func TestSplitKey(t *testing.T) {
	var table = []struct {
		key     string
		fileID  string
		rel     string
		invalid error
	}{
		{"abc", "abc", "", nil},
		{"abc/data/x.txt", "abc", "data/x.txt", nil},
		{"abc/a b", "abc", "a b", nil},
		{"", "", "", ErrKeyInvalid},
		{"abc/", "", "", ErrKeyInvalid},
		{"abc//x", "", "", ErrKeyInvalid},
		{"abc/../x", "", "", ErrKeyInvalid},
		{"abc/./x", "", "", ErrKeyInvalid},
		{"/abc", "", "", ErrKeyInvalid},
		{"a c", "", "", ErrKeyContainsWhiteSpace},
		{"ab\x00c", "", "", ErrKeyContainsControlChar},
		{"ab\xffc", "", "", ErrKeyInvalid},
	}
	for _, tab := range table {
		t.Logf("Doing %q", tab.key)
		fileID, rel, err := SplitKey(tab.key)
		if err != tab.invalid {
			t.Errorf("Got error %v, expected %v", err, tab.invalid)
			continue
		}
		if fileID != tab.fileID || rel != tab.rel {
			t.Errorf("Got (%q, %q), expected (%q, %q)", fileID, rel, tab.fileID, tab.rel)
		}
	}
}

func TestNewReader(t *testing.T) {
	const content = "hello world"
	r := NewReader(strings.NewReader(content))
	data, err := ioutil.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Errorf("Got %q, expected %q", data, content)
	}
}

func TestPagedReader(t *testing.T) {
	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	var fetches int
	fetch := func(start, end int64) (io.ReadCloser, error) {
		fetches++
		if start >= int64(len(content)) {
			return nil, io.EOF
		}
		return ioutil.NopCloser(bytes.NewReader(content[start:end])), nil
	}
	rac := newPagedReader("test", int64(len(content)), fetch)
	rac.pageSize = 64

	data, err := ioutil.ReadAll(NewReader(rac))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("content differs")
	}
	// 1000 bytes in 64 byte pages
	if fetches != 16 {
		t.Errorf("Got %d fetches, expected 16", fetches)
	}

	// reading the last page again hits the cache
	p := make([]byte, 10)
	n, err := rac.ReadAt(p, 990)
	if n != 10 || (err != nil && err != io.EOF) {
		t.Errorf("Got (%d, %v), expected (10, nil or EOF)", n, err)
	}
	if fetches != 16 {
		t.Errorf("Got %d fetches, expected cache hit", fetches)
	}

	// a read across the end is short
	n, err = rac.ReadAt(make([]byte, 20), 990)
	if n != 10 || err != io.EOF {
		t.Errorf("Got (%d, %v), expected (10, EOF)", n, err)
	}
	n, err = rac.ReadAt(p, 1000)
	if n != 0 || err != io.EOF {
		t.Errorf("Got (%d, %v), expected (0, EOF)", n, err)
	}
	rac.Close()
}

func TestPagedReaderError(t *testing.T) {
	bad := errors.New("bad request")
	fetch := func(start, end int64) (io.ReadCloser, error) {
		if start > 0 {
			return nil, bad
		}
		return ioutil.NopCloser(bytes.NewReader(make([]byte, end-start))), nil
	}
	rac := newPagedReader("test", 100, fetch)
	rac.pageSize = 50
	n, err := rac.ReadAt(make([]byte, 80), 0)
	if n != 50 || err != bad {
		t.Errorf("Got (%d, %v), expected (50, %v)", n, err, bad)
	}
}

func TestSizeCache(t *testing.T) {
	clk := clock.NewMock()
	c := newSizeCache(clk)
	var calls int
	stat := func(key string) (int64, error) {
		calls++
		switch key {
		case "big":
			return 100, nil
		case "gone":
			return 0, ErrNotExist
		}
		return 0, errors.New("network")
	}
	var table = []struct {
		key     string
		advance time.Duration
		size    int64
		err     error
		calls   int
	}{
		{"big", 0, 100, nil, 1},
		{"big", 0, 100, nil, 1},
		{"gone", 0, 0, ErrNotExist, 2},
		{"gone", 0, 0, ErrNotExist, 2},
		{"flaky", 0, 0, errFlaky, 3},
		{"flaky", 0, 0, errFlaky, 4},
		{"gone", defaultMissTTL + time.Second, 0, ErrNotExist, 5},
		{"big", 0, 100, nil, 5},
		{"big", defaultHitTTL, 100, nil, 6},
	}
	for _, tab := range table {
		t.Logf("Doing %s +%v", tab.key, tab.advance)
		clk.Add(tab.advance)
		size, err := c.lookup(tab.key, stat)
		if size != tab.size {
			t.Errorf("Got size %d, expected %d", size, tab.size)
		}
		switch {
		case tab.err == errFlaky && err == nil:
			t.Errorf("Expected an error")
		case tab.err != errFlaky && err != tab.err:
			t.Errorf("Got error %v, expected %v", err, tab.err)
		}
		if calls != tab.calls {
			t.Errorf("Got %d calls, expected %d", calls, tab.calls)
		}
	}

	c.missing("big")
	if _, err := c.lookup("big", stat); err != ErrNotExist {
		t.Errorf("Got %v, expected ErrNotExist", err)
	}
	c.forget("big")
	if size, _ := c.lookup("big", stat); size != 100 {
		t.Errorf("Got size %d after forget, expected 100", size)
	}

	// a sweep drops everything once the entries are stale
	clk.Add(2 * defaultHitTTL)
	c.lookup("big", stat)
	if n := c.len(); n != 1 {
		t.Errorf("Got %d entries after sweep, expected 1", n)
	}
}

var errFlaky = errors.New("flaky")
