package lambdas

import (
	"context"
	"fmt"
	"strings"

	"github.com/onedata/automation-examples/bagit"
	"github.com/onedata/automation-examples/batch"
	"github.com/onedata/automation-examples/checksum"
	"github.com/onedata/automation-examples/metadata"
)

// RegisterResult is the result of register-checksums.
type RegisterResult struct {
	Registered int       `json:"registered"`
	StatusLog  StatusLog `json:"statusLog"`
}

// registerChecksums copies the checksums in the payload manifests of a bag
// onto the unpacked files, as checksum.<alg>.expected attributes. A file
// which cannot be updated does not stop the others. Such failures are listed
// in the status log.
func registerChecksums(ctx context.Context, b *Batch, args []byte, bus *batch.Bus) (interface{}, error) {
	var a destinationArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Archive.Type != TypeRegular {
		return nil, jobErrorf("Not an archive file")
	}
	if b.env.Attrs == nil {
		return nil, jobErrorf("Extended attributes are not available")
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

	result := &RegisterResult{}
	for _, alg := range l.Manifests() {
		entries, err := b.manifest(l, alg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			err := b.register(a.DestinationDir.FileID, e)
			if err != nil {
				result.StatusLog.Failures = append(result.StatusLog.Failures, err.Error())
				continue
			}
			result.Registered++
		}
		bus.Record(batch.FilesProcessed, int64(len(entries)))
	}
	result.StatusLog.Archive = a.Archive.Name
	result.StatusLog.Severity = "info"
	result.StatusLog.Status = fmt.Sprintf("Registered %d checksums.", result.Registered)
	if n := len(result.StatusLog.Failures); n > 0 {
		result.StatusLog.Severity = "error"
		result.StatusLog.Status += fmt.Sprintf(" Failed to register %d checksums.", n)
	}
	return result, nil
}

func (b *Batch) manifest(l *bagit.Layout, alg checksum.Algorithm) ([]bagit.ManifestEntry, error) {
	name := "manifest-" + alg.String() + ".txt"
	rc, err := l.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return bagit.ParseManifest(rc, alg, name)
}

// register sets the expected checksum attribute of the unpacked copy of a
// manifest entry.
func (b *Batch) register(dstID string, e bagit.ManifestEntry) error {
	rel, err := dataPath(e.Path)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(e.Path, "data/") {
		return jobErrorf("File path %s not within data/ directory", e.Path)
	}
	p, err := b.attrPath(dstID + "/" + rel)
	if err != nil {
		return jobErrorf("Invalid path %s: %s", e.Path, err)
	}
	return metadata.SetString(b.env.Attrs, p, metadata.ExpectedName(e.Algorithm), e.Checksum)
}
