package bagit

import (
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/onedata/automation-examples/archive"
	"github.com/onedata/automation-examples/checksum"
)

// Layout is a read only view of where the parts of a bag are inside an
// archive. It does not read any file content.
type Layout struct {
	// Root is the name of the bag directory, without a trailing slash.
	Root string

	a archive.Archive

	once      sync.Once
	index     map[string]bool // full entry names
	manifests map[checksum.Algorithm]bool
	tags      map[checksum.Algorithm]bool
}

// Resolve finds the bag inside a and returns its layout. The bag directory is
// the first entry, in archive order, having the form "<dir>/bagit.txt".
func Resolve(a archive.Archive) (*Layout, error) {
	for _, name := range a.Entries() {
		parts := strings.Split(name, "/")
		if len(parts) == 2 && parts[1] == "bagit.txt" && parts[0] != "" {
			return &Layout{Root: parts[0], a: a}, nil
		}
	}
	return nil, &StructureError{Msg: "Bagit directory not found"}
}

// Path returns the full archive path of the bag relative path rel, e.g.
// "data/a.txt" becomes "ex-bag/data/a.txt".
func (l *Layout) Path(rel string) string {
	return l.Root + "/" + rel
}

// DirPath is like Path but returns a directory name, with a trailing slash.
func (l *Layout) DirPath(rel string) string {
	return l.Root + "/" + strings.TrimSuffix(rel, "/") + "/"
}

// Rel is the inverse of Path. The second result is false if name is not
// inside the bag.
func (l *Layout) Rel(name string) (string, bool) {
	prefix := l.Root + "/"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	return name[len(prefix):], true
}

func (l *Layout) load() {
	l.once.Do(func() {
		entries := l.a.Entries()
		l.index = make(map[string]bool, len(entries))
		for _, name := range entries {
			l.index[name] = true
		}
		l.manifests = make(map[checksum.Algorithm]bool)
		l.tags = make(map[checksum.Algorithm]bool)
		for _, alg := range checksum.All() {
			if l.index[l.Path(manifestName(alg))] {
				l.manifests[alg] = true
			}
			if l.index[l.Path(tagManifestName(alg))] {
				l.tags[alg] = true
			}
		}
	})
}

// Exists returns true if the bag relative file rel is in the archive.
func (l *Layout) Exists(rel string) bool {
	l.load()
	return l.index[l.Path(rel)]
}

// HasBagitTxt is always true for a layout returned by Resolve.
func (l *Layout) HasBagitTxt() bool { return l.Exists("bagit.txt") }

// HasFetch returns true if the bag has a fetch.txt file.
func (l *Layout) HasFetch() bool { return l.Exists("fetch.txt") }

// HasData returns true if the bag has a data directory. Zip writers do not
// always add entries for directories, so any entry under data/ also counts.
func (l *Layout) HasData() bool {
	l.load()
	dir := l.DirPath("data")
	if l.index[dir] || l.a.IsDir(dir) {
		return true
	}
	for name := range l.index {
		if strings.HasPrefix(name, dir) {
			return true
		}
	}
	return false
}

// HasManifest returns true if the bag has the payload manifest for alg.
func (l *Layout) HasManifest(alg checksum.Algorithm) bool {
	l.load()
	return l.manifests[alg]
}

// HasTagManifest returns true if the bag has the tag manifest for alg.
func (l *Layout) HasTagManifest(alg checksum.Algorithm) bool {
	l.load()
	return l.tags[alg]
}

// Manifests returns the algorithms having a payload manifest, in the order
// of checksum.All().
func (l *Layout) Manifests() []checksum.Algorithm {
	l.load()
	return present(l.manifests)
}

// TagManifests returns the algorithms having a tag manifest, in the order of
// checksum.All().
func (l *Layout) TagManifests() []checksum.Algorithm {
	l.load()
	return present(l.tags)
}

func present(m map[checksum.Algorithm]bool) []checksum.Algorithm {
	var result []checksum.Algorithm
	for _, alg := range checksum.All() {
		if m[alg] {
			result = append(result, alg)
		}
	}
	return result
}

// Payload returns the bag relative path of every file under data/, sorted.
func (l *Layout) Payload() []string {
	l.load()
	dir := l.DirPath("data")
	var result []string
	for name := range l.index {
		if !strings.HasPrefix(name, dir) || l.a.IsDir(name) {
			continue
		}
		rel, _ := l.Rel(name)
		result = append(result, rel)
	}
	sort.Strings(result)
	return result
}

// Open returns the content of the bag relative file rel.
func (l *Layout) Open(rel string) (io.ReadCloser, error) {
	return l.a.Open(l.Path(rel))
}

// Archive returns the archive this layout describes.
func (l *Layout) Archive() archive.Archive {
	return l.a
}

func manifestName(alg checksum.Algorithm) string {
	return "manifest-" + alg.String() + ".txt"
}

func tagManifestName(alg checksum.Algorithm) string {
	return "tagmanifest-" + alg.String() + ".txt"
}
