package lambdas

import (
	"context"
	"fmt"
	"strings"

	"github.com/onedata/automation-examples/bagit"
	"github.com/onedata/automation-examples/batch"
	"github.com/onedata/automation-examples/store"
)

type destinationArgs struct {
	Archive        AtmFile `json:"archive"`
	DestinationDir AtmFile `json:"destinationDir"`
}

// FileDownload is a file listed in fetch.txt. Size is nil when the bag
// does not give it.
type FileDownload struct {
	SourceURL       string `json:"sourceUrl"`
	DestinationPath string `json:"destinationPath"`
	Size            *int64 `json:"size"`
}

// StatusLog is the human readable summary attached to some results.
type StatusLog struct {
	Severity string   `json:"severity,omitempty"`
	Archive  string   `json:"archive"`
	Status   string   `json:"status"`
	Failures []string `json:"failures,omitempty"`
}

// FetchResult is the result of parse-fetch-file.
type FetchResult struct {
	FilesToDownload []FileDownload `json:"filesToDownload"`
	StatusLog       StatusLog      `json:"statusLog"`
}

// parseFetchFile lists the files a bag says should be downloaded into the
// destination directory. An archive without a bag, or a bag without a
// fetch.txt, has nothing to download.
func parseFetchFile(ctx context.Context, b *Batch, args []byte, bus *batch.Bus) (interface{}, error) {
	var a destinationArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	arc, err := b.openArchive(a.Archive)
	if err != nil {
		return nil, err
	}
	defer arc.Close()

	result := &FetchResult{FilesToDownload: []FileDownload{}}
	l, err := bagit.Resolve(arc)
	if err == nil && l.HasFetch() {
		rc, err := l.Open("fetch.txt")
		if err != nil {
			return nil, err
		}
		entries, err := bagit.ParseFetch(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		dst := store.FileIDPrefix + a.DestinationDir.FileID
		for _, e := range entries {
			f := FileDownload{
				SourceURL:       e.URL,
				DestinationPath: dst + "/" + strings.TrimPrefix(e.Path, "data/"),
			}
			if e.Size >= 0 {
				size := e.Size
				f.Size = &size
			}
			result.FilesToDownload = append(result.FilesToDownload, f)
		}
		bus.Record(batch.FilesProcessed, int64(len(entries)))
	}
	result.StatusLog = StatusLog{
		Severity: "info",
		Archive:  a.Archive.Name,
		Status:   fmt.Sprintf("Found  %d files to be downloaded.", len(result.FilesToDownload)),
	}
	return result, nil
}
