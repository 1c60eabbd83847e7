// Package metadata reads and writes the extended attributes Onedata keeps
// for files. Through a mounted Oneclient these are ordinary xattrs. Values
// are stored JSON encoded, so a checksum "abc" is stored as the five bytes
// "abc" with the quotes.
//
// Checksums use the attribute names checksum.<algorithm>.expected, for the
// value taken from a bag manifest, and checksum.<algorithm>.calculated, for
// the value computed from the file content.
package metadata

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/onedata/automation-examples/checksum"
)

// Attributes reads and writes the extended attributes of files named by
// path.
type Attributes interface {
	Get(path, name string) ([]byte, error)
	Set(path, name string, value []byte) error
	List(path string) ([]string, error)
}

var (
	// ErrNoAttribute means the file does not have the requested attribute.
	ErrNoAttribute = errors.New("attribute not set")

	// ErrUnsupported means extended attributes are not available on this
	// platform.
	ErrUnsupported = errors.New("extended attributes not supported")
)

// SetError is returned when an attribute could not be written.
type SetError struct {
	Path  string
	Name  string
	Value string
	Err   error
}

func (e *SetError) Error() string {
	return fmt.Sprintf("Failed to set xattr %s:%s on file %s due to: %s", e.Name, e.Value, e.Path, e.Err)
}

// Expected marks this as an error to report without a stack trace.
func (e *SetError) Expected() bool { return true }

// ExpectedName is the attribute holding the checksum a file should have.
func ExpectedName(alg checksum.Algorithm) string {
	return "checksum." + alg.String() + ".expected"
}

// CalculatedName is the attribute holding the checksum computed for a file.
func CalculatedName(alg checksum.Algorithm) string {
	return "checksum." + alg.String() + ".calculated"
}

// SetString stores value as a JSON string in the attribute name. Failures
// are logged and returned as a *SetError.
func SetString(a Attributes, path, name, value string) error {
	data, err := json.Marshal(value)
	if err == nil {
		err = a.Set(path, name, data)
	}
	if err != nil {
		log.Printf("metadata %s %s: %s", path, name, err)
		return &SetError{Path: path, Name: name, Value: value, Err: err}
	}
	return nil
}

// GetString returns the string stored in the attribute name. A value which
// is not a JSON string is returned as is.
func GetString(a Attributes, path, name string) (string, error) {
	data, err := a.Get(path, name)
	if err != nil {
		return "", err
	}
	var s string
	if json.Unmarshal(data, &s) == nil {
		return s, nil
	}
	return string(data), nil
}

// ExpectedChecksums returns every checksum.<algorithm>.expected attribute of
// the file. Attributes naming an unknown algorithm are skipped.
func ExpectedChecksums(a Attributes, path string) (map[checksum.Algorithm]string, error) {
	names, err := a.List(path)
	if err != nil {
		return nil, err
	}
	result := make(map[checksum.Algorithm]string)
	for _, name := range names {
		if !strings.HasPrefix(name, "checksum.") || !strings.HasSuffix(name, ".expected") {
			continue
		}
		algname := strings.TrimSuffix(strings.TrimPrefix(name, "checksum."), ".expected")
		alg, err := checksum.ParseAlgorithm(algname)
		if err != nil {
			log.Printf("metadata %s: skipping %s", path, name)
			continue
		}
		v, err := GetString(a, path, name)
		if err != nil {
			return nil, err
		}
		result[alg] = v
	}
	return result, nil
}

// Memory keeps attributes in memory. It is intended for testing and for
// stores without extended attributes.
type Memory struct {
	m     sync.RWMutex
	attrs map[string]map[string][]byte // by path, then name
}

var _ Attributes = &Memory{}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{attrs: make(map[string]map[string][]byte)}
}

// Get returns the value of an attribute.
func (m *Memory) Get(path, name string) ([]byte, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	v, ok := m.attrs[path][name]
	if !ok {
		return nil, ErrNoAttribute
	}
	return append([]byte(nil), v...), nil
}

// Set replaces the value of an attribute.
func (m *Memory) Set(path, name string, value []byte) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.attrs[path] == nil {
		m.attrs[path] = make(map[string][]byte)
	}
	m.attrs[path][name] = append([]byte(nil), value...)
	return nil
}

// List returns the sorted names of the attributes of path.
func (m *Memory) List(path string) ([]string, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	var result []string
	for k := range m.attrs[path] {
		result = append(result, k)
	}
	sort.Strings(result)
	return result, nil
}
