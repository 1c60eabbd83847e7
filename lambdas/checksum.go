package lambdas

import (
	"context"
	"log"

	"github.com/onedata/automation-examples/batch"
	"github.com/onedata/automation-examples/checksum"
	"github.com/onedata/automation-examples/ledger"
	"github.com/onedata/automation-examples/metadata"
	"github.com/onedata/automation-examples/store"
)

type checksumArgs struct {
	File        AtmFile `json:"file"`
	Algorithm   string  `json:"algorithm"`
	MetadataKey string  `json:"metadataKey"`
}

// ChecksumResult is the result of calculate-checksum. Checksum is nil for
// anything other than a regular file.
type ChecksumResult struct {
	FileID    string  `json:"file_id"`
	Algorithm string  `json:"algorithm"`
	Checksum  *string `json:"checksum"`
	Expected  string  `json:"expected,omitempty"`
	Status    string  `json:"status,omitempty"`
}

// calculateChecksum computes the checksum of a file. The algorithm and the
// attribute to store the checksum in come from the job arguments, or from
// the lambda configuration in the batch context.
//
// If the file has a checksum.<alg>.expected attribute, the computed value
// is compared with it and saved as checksum.<alg>.calculated.
func calculateChecksum(ctx context.Context, b *Batch, args []byte, bus *batch.Bus) (interface{}, error) {
	var a checksumArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Algorithm == "" {
		a.Algorithm = b.Ctx.configString("algorithm")
	}
	if a.MetadataKey == "" {
		a.MetadataKey = b.Ctx.configString("metadataKey")
	}
	alg, err := checksum.ParseAlgorithm(a.Algorithm)
	if err != nil {
		return nil, err
	}
	defer bus.Record(batch.FilesProcessed, 1)

	result := &ChecksumResult{
		FileID:    a.File.FileID,
		Algorithm: alg.String(),
	}
	if a.File.Type != TypeRegular {
		return result, nil
	}

	rac, _, err := b.openFile(a.File)
	if err != nil {
		return nil, err
	}
	sum, err := b.engine(bus).Compute(store.NewReader(rac), alg)
	rac.Close()
	if err != nil {
		b.record(ledger.Record{
			FileID:    a.File.FileID,
			Algorithm: alg.String(),
			Status:    ledger.StatusError,
			Notes:     err.Error(),
		})
		return nil, err
	}
	result.Checksum = &sum
	result.Status = ledger.StatusCalculated

	path, err := b.attrPath(a.File.FileID)
	if err != nil {
		return nil, err
	}
	if a.MetadataKey != "" {
		// stored as is, not as a JSON string
		if err := b.setAttr(path, a.MetadataKey, []byte(sum)); err != nil {
			return nil, err
		}
	}
	if want, ok := b.expected(path, alg); ok {
		result.Expected = want
		result.Status = ledger.StatusOK
		if !checksum.Equal(alg, want, sum) {
			result.Status = ledger.StatusMismatch
		}
		if err := metadata.SetString(b.env.Attrs, path, metadata.CalculatedName(alg), sum); err != nil {
			return nil, err
		}
	}
	b.record(ledger.Record{
		FileID:     a.File.FileID,
		Algorithm:  alg.String(),
		Expected:   result.Expected,
		Calculated: sum,
		Status:     result.Status,
	})
	return result, nil
}

// expected returns the checksum.<alg>.expected attribute of the file at
// path, if there is one.
func (b *Batch) expected(path string, alg checksum.Algorithm) (string, bool) {
	if b.env.Attrs == nil {
		return "", false
	}
	v, err := metadata.GetString(b.env.Attrs, path, metadata.ExpectedName(alg))
	switch err {
	case nil:
		return v, true
	case metadata.ErrNoAttribute, metadata.ErrUnsupported:
	default:
		log.Printf("calculate-checksum %s: %s", path, err)
	}
	return "", false
}

// setAttr stores value in the attribute name of the file at path.
func (b *Batch) setAttr(path, name string, value []byte) error {
	var err error = metadata.ErrUnsupported
	if b.env.Attrs != nil {
		err = b.env.Attrs.Set(path, name, value)
	}
	if err != nil {
		log.Printf("metadata %s %s: %s", path, name, err)
		return &metadata.SetError{Path: path, Name: name, Value: string(value), Err: err}
	}
	return nil
}

// record saves r in the ledger, if there is one. Failures are only logged.
func (b *Batch) record(r ledger.Record) {
	if b.env.Ledger == nil {
		return
	}
	if _, err := b.env.Ledger.Add(r); err != nil {
		log.Printf("ledger %s %s: %s", r.FileID, r.Algorithm, err)
	}
}
