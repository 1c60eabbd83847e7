package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"hash/adler32"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

// Algorithm is one of the closed set of supported checksum algorithms.
type Algorithm int

// The supported algorithms. Adler32 is a running numeric value, all the
// others are cryptographic digests.
const (
	Invalid Algorithm = iota
	MD5
	SHA1
	SHA224
	SHA256
	SHA384
	SHA512
	SHA3_224
	SHA3_256
	SHA3_384
	SHA3_512
	BLAKE2b
	BLAKE2s
	BLAKE3
	Adler32
)

// the names match the ones used in manifest file names and in the
// "algorithm" job argument.
var names = [...]string{
	Invalid:  "invalid",
	MD5:      "md5",
	SHA1:     "sha1",
	SHA224:   "sha224",
	SHA256:   "sha256",
	SHA384:   "sha384",
	SHA512:   "sha512",
	SHA3_224: "sha3_224",
	SHA3_256: "sha3_256",
	SHA3_384: "sha3_384",
	SHA3_512: "sha3_512",
	BLAKE2b:  "blake2b",
	BLAKE2s:  "blake2s",
	BLAKE3:   "blake3",
	Adler32:  "adler32",
}

func (a Algorithm) String() string {
	if a < 0 || int(a) >= len(names) {
		return names[Invalid]
	}
	return names[a]
}

// All returns every supported algorithm, in a fixed order.
func All() []Algorithm {
	return []Algorithm{
		MD5, SHA1, SHA224, SHA256, SHA384, SHA512,
		SHA3_224, SHA3_256, SHA3_384, SHA3_512,
		BLAKE2b, BLAKE2s, BLAKE3, Adler32,
	}
}

// ParseAlgorithm returns the algorithm with the given name. Names are case
// insensitive, and "sha3-256" is accepted as well as "sha3_256".
func ParseAlgorithm(name string) (Algorithm, error) {
	s := strings.Replace(strings.ToLower(strings.TrimSpace(name)), "-", "_", -1)
	for _, a := range All() {
		if names[a] == s {
			return a, nil
		}
	}
	return Invalid, &UnsupportedAlgorithmError{Name: name}
}

// UnsupportedAlgorithmError means an algorithm name is outside the
// supported set.
type UnsupportedAlgorithmError struct {
	Name string
}

func (e *UnsupportedAlgorithmError) Error() string {
	return fmt.Sprintf("%s algorithm is unsupported. Available ones are: %s", e.Name, available())
}

// Expected marks this as an error caused by the input, not by the system.
func (e *UnsupportedAlgorithmError) Expected() bool { return true }

// Equal compares two hex checksums computed with a. Adler-32 values are
// compared as numbers since some tools pad them to 8 digits and some do not.
func Equal(a Algorithm, x, y string) bool {
	if a == Adler32 {
		u, err1 := strconv.ParseUint(x, 16, 32)
		v, err2 := strconv.ParseUint(y, 16, 32)
		return err1 == nil && err2 == nil && u == v
	}
	return strings.EqualFold(x, y)
}

func available() string {
	var s []string
	for _, a := range All() {
		s = append(s, a.String())
	}
	return strings.Join(s, ", ")
}

// accumulator is the running state of one checksum computation.
type accumulator interface {
	Write(p []byte) (int, error)
	// hex returns the checksum as lowercase hexadecimal.
	hex() string
}

// newAccumulator returns a fresh accumulator for a. Adler32 gets the numeric
// accumulator, everything else a digest.
func newAccumulator(a Algorithm, padAdler bool) (accumulator, error) {
	if a == Adler32 {
		return &adlerAccumulator{h: adler32.New(), pad: padAdler}, nil
	}
	h, err := newDigest(a)
	if err != nil {
		return nil, err
	}
	return &digestAccumulator{h: h}, nil
}

func newDigest(a Algorithm) (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA224:
		return sha256.New224(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA3_224:
		return sha3.New224(), nil
	case SHA3_256:
		return sha3.New256(), nil
	case SHA3_384:
		return sha3.New384(), nil
	case SHA3_512:
		return sha3.New512(), nil
	case BLAKE2b:
		return blake2b.New512(nil)
	case BLAKE2s:
		return blake2s.New256(nil)
	case BLAKE3:
		return blake3.New(), nil
	}
	return nil, &UnsupportedAlgorithmError{Name: a.String()}
}

type digestAccumulator struct {
	h hash.Hash
}

func (d *digestAccumulator) Write(p []byte) (int, error) { return d.h.Write(p) }
func (d *digestAccumulator) hex() string                 { return fmt.Sprintf("%x", d.h.Sum(nil)) }

// adlerAccumulator keeps the Adler-32 running value. It starts at 1.
type adlerAccumulator struct {
	h   hash.Hash32
	pad bool // format with 8 hex digits
}

func (a *adlerAccumulator) Write(p []byte) (int, error) { return a.h.Write(p) }

func (a *adlerAccumulator) hex() string {
	if a.pad {
		return fmt.Sprintf("%08x", a.h.Sum32())
	}
	return fmt.Sprintf("%x", a.h.Sum32())
}
