package lambdas

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/onedata/automation-examples/archive"
	"github.com/onedata/automation-examples/bagit"
	"github.com/onedata/automation-examples/batch"
	"github.com/onedata/automation-examples/store"
)

// UnpackResult is the result of unpack-data.
type UnpackResult struct {
	UnpackedFiles []string  `json:"unpackedFiles"`
	StatusLog     StatusLog `json:"statusLog"`
}

// unpackData copies every file under the data directory of a bag into the
// destination directory, keeping the paths relative to data/.
func unpackData(ctx context.Context, b *Batch, args []byte, bus *batch.Bus) (interface{}, error) {
	var a destinationArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if b.env.Store == nil {
		return nil, errors.New("unpack-data: no store to unpack into")
	}
	arc, err := b.openArchive(a.Archive)
	if err != nil {
		return nil, err
	}
	defer arc.Close()
	l, err := bagit.Resolve(arc)
	if err != nil {
		return nil, err
	}

	result := &UnpackResult{UnpackedFiles: []string{}}
	for _, rel := range l.Payload() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dataRel, err := dataPath(rel)
		if err != nil {
			return nil, err
		}
		key := a.DestinationDir.FileID + "/" + dataRel
		if err := b.unpackFile(arc, l.Path(rel), key, bus); err != nil {
			return nil, err
		}
		p, err := b.attrPath(key)
		if err != nil {
			return nil, err
		}
		result.UnpackedFiles = append(result.UnpackedFiles, p)
	}
	result.StatusLog = StatusLog{
		Archive: a.Archive.Name,
		Status:  fmt.Sprintf("Successfully unpacked %d files.", len(result.UnpackedFiles)),
	}
	return result, nil
}

// dataPath returns the path of a payload file relative to data/. Paths
// leaving the data directory are rejected.
func dataPath(rel string) (string, error) {
	p := path.Clean(strings.TrimPrefix(rel, "data/"))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/") {
		return "", jobErrorf("File path %s not within data/ directory", rel)
	}
	return p, nil
}

// unpackFile copies the archive member name to key. An existing file is
// replaced.
func (b *Batch) unpackFile(arc archive.Archive, name, key string, bus *batch.Bus) error {
	rc, err := arc.Open(name)
	if err != nil {
		return err
	}
	defer rc.Close()
	w, err := b.env.Store.Create(key)
	if err == store.ErrKeyExists {
		if err = b.env.Store.Delete(key); err == nil {
			w, err = b.env.Store.Create(key)
		}
	}
	switch {
	case err == store.ErrKeyInvalid || err == store.ErrKeyContainsControlChar || err == store.ErrKeyContainsWhiteSpace:
		return jobErrorf("Cannot unpack %s: %s", name, err)
	case err != nil:
		return errors.Wrapf(err, "unpacking %s", name)
	}
	_, err = io.Copy(&progressWriter{w: w, bus: bus}, rc)
	if err2 := w.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return errors.Wrapf(err, "unpacking %s", name)
	}
	bus.Record(batch.FilesUnpacked, 1)
	return nil
}

// progressWriter records the bytes written through it as bytesUnpacked.
type progressWriter struct {
	w   io.Writer
	bus *batch.Bus
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.bus.Record(batch.BytesUnpacked, int64(n))
	return n, err
}
