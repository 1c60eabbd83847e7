package lambdas

import (
	"context"

	"github.com/onedata/automation-examples/bagit"
	"github.com/onedata/automation-examples/batch"
)

type validateArgs struct {
	Archive AtmFile `json:"archive"`
}

// validateBagit checks the structure and the checksums of the bag in an
// archive. The result is null if the bag is valid.
func validateBagit(ctx context.Context, b *Batch, args []byte, bus *batch.Bus) (interface{}, error) {
	var a validateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Archive.Type != TypeRegular {
		return nil, jobErrorf("Not an archive file")
	}
	// start the series so the scheduler sees the job began
	bus.Record(batch.BytesProcessed, 0)

	arc, err := b.openArchive(a.Archive)
	if err != nil {
		return nil, err
	}
	defer arc.Close()
	v := &bagit.Validator{
		Engine: b.engine(bus),
		Policy: b.env.Policy,
	}
	if err := v.Validate(arc); err != nil {
		return nil, err
	}
	return nil, nil
}
