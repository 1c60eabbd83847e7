//go:build linux || darwin

package metadata

import (
	"bytes"

	"golang.org/x/sys/unix"
)

// Xattr reads and writes the extended attributes of local files, such as
// those under a Oneclient mount point.
type Xattr struct{}

var _ Attributes = Xattr{}

// Get returns the value of an attribute.
func (Xattr) Get(path, name string) ([]byte, error) {
	for {
		sz, err := unix.Getxattr(path, name, nil)
		if err != nil {
			return nil, xattrError(err)
		}
		buf := make([]byte, sz)
		n, err := unix.Getxattr(path, name, buf)
		if err == unix.ERANGE {
			// the value grew between the two calls
			continue
		}
		if err != nil {
			return nil, xattrError(err)
		}
		return buf[:n], nil
	}
}

// Set replaces the value of an attribute, creating it if needed.
func (Xattr) Set(path, name string, value []byte) error {
	return xattrError(unix.Setxattr(path, name, value, 0))
}

// List returns the names of the attributes of path.
func (Xattr) List(path string) ([]string, error) {
	for {
		sz, err := unix.Listxattr(path, nil)
		if err != nil {
			return nil, xattrError(err)
		}
		if sz == 0 {
			return nil, nil
		}
		buf := make([]byte, sz)
		n, err := unix.Listxattr(path, buf)
		if err == unix.ERANGE {
			continue
		}
		if err != nil {
			return nil, xattrError(err)
		}
		var result []string
		for _, name := range bytes.Split(buf[:n], []byte{0}) {
			if len(name) > 0 {
				result = append(result, string(name))
			}
		}
		return result, nil
	}
}

func xattrError(err error) error {
	switch err {
	case nil:
		return nil
	case errNoAttr:
		return ErrNoAttribute
	case unix.ENOTSUP:
		return ErrUnsupported
	}
	return err
}
