// Package bagit implements enough of the BagIt specification to find, read,
// verify and create the BagIt bags handled by the lambdas. Bags are read
// through the archive package, so a bag may be stored in a zip file, a plain
// tar file or a compressed tar file. Bags are never unpacked to disk to be
// verified.
//
// A bag inside an archive is a single top level directory containing a
// bagit.txt file, e.g. "ex-bag/bagit.txt". Resolve finds this directory and
// returns a Layout, which knows which of the control files are present. A
// Validator checks the structure of a bag and recomputes the checksums in
// its manifests and tag manifests. How strict the validation is, is decided
// by a Policy.
//
// Specific items not implemented are holey bags (fetch.txt is parsed and
// checked, but nothing is downloaded) and the preservation of tag order in
// bag-info.txt.
//
// The BagIt spec can be found at https://tools.ietf.org/html/rfc8493.
package bagit

import (
	"fmt"
)

const (
	// Version is the version of the BagIt specification written by Writer.
	Version = "1.0"
)

// StructureError means a bag is missing a required file or one of its
// control files is malformed. File and Line are set when the problem can be
// traced to a line of a control file.
type StructureError struct {
	File string // bag relative name of the control file, if any
	Line int    // 1 based, or 0
	Msg  string

	// For payload completeness failures, the files under data/ which no
	// manifest lists and the listed files which are not in the bag.
	Unreferenced []string
	Missing      []string
}

func (e *StructureError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s line %d: %s", e.File, e.Line, e.Msg)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Msg)
	}
	return e.Msg
}

// Expected marks this as an error caused by the input, not by the system.
func (e *StructureError) Expected() bool { return true }

// ChecksumMismatchError means a file in a bag does not have the checksum its
// manifest says it should have.
type ChecksumMismatchError struct {
	Algorithm string
	Path      string // full path inside the archive
	Want      string // checksum listed in the manifest
	Computed  string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s checksum verification failed for %s.\nExpected: %s, Calculated: %s",
		e.Algorithm, e.Path, e.Want, e.Computed)
}

// Expected marks this as an error caused by the input, not by the system.
func (e *ChecksumMismatchError) Expected() bool { return true }
