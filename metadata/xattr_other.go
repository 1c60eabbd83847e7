//go:build !linux && !darwin

package metadata

// Xattr is not available on this platform. Every call fails with
// ErrUnsupported.
type Xattr struct{}

var _ Attributes = Xattr{}

func (Xattr) Get(path, name string) ([]byte, error)     { return nil, ErrUnsupported }
func (Xattr) Set(path, name string, value []byte) error { return ErrUnsupported }
func (Xattr) List(path string) ([]string, error)        { return nil, ErrUnsupported }
