package bagit

import (
	"bufio"
	"io"
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/onedata/automation-examples/checksum"
)

// ManifestEntry is one line of a manifest or tag manifest.
type ManifestEntry struct {
	Algorithm checksum.Algorithm
	Checksum  string // lowercase hex
	Path      string // relative to the bag directory
	Line      int
}

// maximum length of a control file line. Paths can be long.
const maxLine = 64 * 1024

// ParseManifest reads a manifest in the format "<checksum> <path>", one file
// per line. Blank lines are skipped. The name of the manifest file is only
// used in error messages. Paths are cleaned and must stay inside the bag.
func ParseManifest(r io.Reader, alg checksum.Algorithm, name string) ([]ManifestEntry, error) {
	var result []ManifestEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxLine)
	var lineno int
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sum, rest := splitField(line)
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if sum == "" || rest == "" {
			return nil, &StructureError{File: name, Line: lineno, Msg: "expected a checksum and a path"}
		}
		if !isHex(sum) {
			return nil, &StructureError{File: name, Line: lineno, Msg: "checksum is not hexadecimal"}
		}
		p, err := cleanPath(decodePath(rest))
		if err != nil {
			return nil, &StructureError{File: name, Line: lineno, Msg: err.Error()}
		}
		result = append(result, ManifestEntry{
			Algorithm: alg,
			Checksum:  strings.ToLower(sum),
			Path:      p,
			Line:      lineno,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &StructureError{File: name, Msg: err.Error()}
	}
	return result, nil
}

// FetchEntry is one line of a fetch.txt file.
type FetchEntry struct {
	URL  string
	Size int64 // -1 if not given
	Path string
	Line int
}

// ParseFetch reads a fetch.txt file, which has lines of the form
// "<url> <size> <path>". The size may be "-" if it is not known. Every path
// must be inside the data directory.
func ParseFetch(r io.Reader) ([]FetchEntry, error) {
	var result []FetchEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxLine)
	var lineno int
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		url, rest := splitField(line)
		size, rest := splitField(strings.TrimLeftFunc(rest, unicode.IsSpace))
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if url == "" || size == "" || rest == "" {
			return nil, &StructureError{File: "fetch.txt", Line: lineno, Msg: "failed to extract url, size and path"}
		}
		n := int64(-1)
		if size != "-" {
			var err error
			n, err = strconv.ParseInt(size, 10, 64)
			if err != nil || n < 0 {
				return nil, &StructureError{File: "fetch.txt", Line: lineno, Msg: "invalid size " + size}
			}
		}
		p, err := cleanPath(decodePath(rest))
		if err == nil && !strings.HasPrefix(p, "data/") {
			err = errNotInData
		}
		if err != nil {
			return nil, &StructureError{File: "fetch.txt", Line: lineno, Msg: err.Error()}
		}
		result = append(result, FetchEntry{
			URL:  url,
			Size: n,
			Path: p,
			Line: lineno,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &StructureError{File: "fetch.txt", Msg: err.Error()}
	}
	return result, nil
}

// isHex is true if s only has hexadecimal digits. The length is not checked
// since Adler-32 values are not always padded.
func isHex(s string) bool {
	for _, c := range s {
		switch {
		case '0' <= c && c <= '9', 'a' <= c && c <= 'f', 'A' <= c && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// splitField returns the first whitespace delimited field of s and the
// remainder of s after it.
func splitField(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i == -1 {
		return s, ""
	}
	return s[:i], s[i:]
}

// decodePath undoes the percent encoding BagIt uses for line breaks in
// file names.
func decodePath(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	s = strings.Replace(s, "%0D", "\r", -1)
	s = strings.Replace(s, "%0A", "\n", -1)
	return strings.Replace(s, "%25", "%", -1)
}

type pathError string

func (e pathError) Error() string { return string(e) }

const (
	errPathEscapes = pathError("path is outside of the bag")
	errNotInData   = pathError("file path not within data/ directory")
)

func cleanPath(p string) (string, error) {
	p = strings.TrimRightFunc(p, unicode.IsSpace)
	if strings.HasPrefix(p, "/") {
		return "", errPathEscapes
	}
	c := path.Clean(p)
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", errPathEscapes
	}
	return c, nil
}
