package lambdas

import (
	"github.com/pkg/errors"

	"github.com/onedata/automation-examples/archive"
	"github.com/onedata/automation-examples/store"
)

// openFile returns the content of f. A missing file is a JobError.
func (b *Batch) openFile(f AtmFile) (store.ReadAtCloser, int64, error) {
	rac, size, err := b.open(f.FileID)
	switch {
	case err == store.ErrNotExist:
		return nil, 0, jobErrorf("File %s (%s) not found", f.Name, f.FileID)
	case err == store.ErrKeyInvalid:
		return nil, 0, jobErrorf("Invalid file id %q", f.FileID)
	case err != nil:
		return nil, 0, errors.Wrapf(err, "opening %s", f.FileID)
	}
	return rac, size, nil
}

// openArchive opens the archive f. The archive type is given by the
// extension of the file name.
func (b *Batch) openArchive(f AtmFile) (archive.Archive, error) {
	if f.Type != "" && f.Type != TypeRegular {
		return nil, jobErrorf("Not an archive file")
	}
	format, err := archive.FormatFromName(f.Name)
	if err != nil {
		return nil, err
	}
	rac, size, err := b.openFile(f)
	if err != nil {
		return nil, err
	}
	return archive.Open(rac, size, format)
}
