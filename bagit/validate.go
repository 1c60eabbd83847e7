package bagit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/onedata/automation-examples/archive"
	"github.com/onedata/automation-examples/checksum"
)

// A Policy decides how strict a Validator is. The zero value is the most
// lenient policy.
type Policy struct {
	// VerifyPayloadManifests also checks the manifest-<alg>.txt files.
	// Tag manifests are always checked.
	VerifyPayloadManifests bool

	// RequireManifest makes a bag without any manifest or tag manifest
	// invalid.
	RequireManifest bool

	// RequireCompleteness makes the files under data/ together with the
	// files listed in fetch.txt have to be exactly the files listed in the
	// payload manifests.
	RequireCompleteness bool
}

var (
	// LenientPolicy only checks the tag manifests present.
	LenientPolicy = Policy{}

	// StrictPolicy turns every check on.
	StrictPolicy = Policy{
		VerifyPayloadManifests: true,
		RequireManifest:        true,
		RequireCompleteness:    true,
	}
)

// A Validator checks the structure of bags and the checksums of their files.
// A Validator may be used by several goroutines at once, provided each is
// validating its own archive.
type Validator struct {
	Engine *checksum.Engine // nil means a default engine
	Policy Policy
}

// Validate checks the bag in a. It returns nil if the bag is valid, a
// *StructureError if a control file is missing or malformed, and a
// *ChecksumMismatchError if a file does not match its manifest. Other errors
// come from reading the archive.
func (v *Validator) Validate(a archive.Archive) error {
	l, err := Resolve(a)
	if err != nil {
		return err
	}
	return v.ValidateLayout(l)
}

// ValidateLayout is Validate for an already resolved bag.
func (v *Validator) ValidateLayout(l *Layout) error {
	run := &validation{
		v:         v,
		l:         l,
		manifests: make(map[string][]ManifestEntry),
	}
	return run.do()
}

// validation holds the state of one call to Validate.
type validation struct {
	v         *Validator
	l         *Layout
	manifests map[string][]ManifestEntry // parsed manifests, by file name
}

func (run *validation) do() error {
	l := run.l
	err := run.checkDeclaration()
	if err != nil {
		return err
	}
	if !l.HasData() && !l.HasFetch() {
		return &StructureError{Msg: "/data directory not found"}
	}
	if run.v.Policy.RequireCompleteness {
		if err := run.checkCompleteness(); err != nil {
			return err
		}
	}
	payload := l.Manifests()
	tags := l.TagManifests()
	if len(payload) == 0 && len(tags) == 0 {
		if run.v.Policy.RequireManifest {
			return &StructureError{Msg: "no checksum manifest found"}
		}
		return nil
	}
	// tag manifests first, since they cover the payload manifests
	for _, alg := range tags {
		if err := run.verify(alg, tagManifestName(alg)); err != nil {
			return err
		}
	}
	if !run.v.Policy.VerifyPayloadManifests {
		return nil
	}
	for _, alg := range payload {
		if err := run.verify(alg, manifestName(alg)); err != nil {
			return err
		}
	}
	return nil
}

func (run *validation) checkDeclaration() error {
	rc, err := run.l.Open("bagit.txt")
	if err != nil {
		return err
	}
	defer rc.Close()
	return CheckDeclaration(rc)
}

// manifest returns the parsed content of the given manifest file.
func (run *validation) manifest(alg checksum.Algorithm, name string) ([]ManifestEntry, error) {
	if m, ok := run.manifests[name]; ok {
		return m, nil
	}
	rc, err := run.l.Open(name)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(rc, alg, name)
	rc.Close()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(name, "tag") {
		for _, entry := range m {
			if !strings.HasPrefix(entry.Path, "data/") {
				return nil, &StructureError{File: name, Line: entry.Line, Msg: string(errNotInData)}
			}
		}
	}
	run.manifests[name] = m
	return m, nil
}

func (run *validation) verify(alg checksum.Algorithm, name string) error {
	entries, err := run.manifest(alg, name)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		full := run.l.Path(entry.Path)
		if !run.l.Exists(entry.Path) {
			return &StructureError{Msg: fmt.Sprintf("%s mentioned by %s not found", full, run.l.Path(name))}
		}
		rc, err := run.l.Open(entry.Path)
		if err != nil {
			return err
		}
		computed, err := run.v.Engine.Compute(rc, alg)
		rc.Close()
		if err != nil {
			return err
		}
		if !checksum.Equal(alg, entry.Checksum, computed) {
			return &ChecksumMismatchError{
				Algorithm: alg.String(),
				Path:      full,
				Want:      entry.Checksum,
				Computed:  computed,
			}
		}
	}
	return nil
}

func (run *validation) checkCompleteness() error {
	present := make(map[string]bool)
	for _, p := range run.l.Payload() {
		present[p] = true
	}
	if run.l.HasFetch() {
		rc, err := run.l.Open("fetch.txt")
		if err != nil {
			return err
		}
		fetch, err := ParseFetch(rc)
		rc.Close()
		if err != nil {
			return err
		}
		for _, f := range fetch {
			present[f.Path] = true
		}
	}
	referenced := make(map[string]bool)
	for _, alg := range run.l.Manifests() {
		entries, err := run.manifest(alg, manifestName(alg))
		if err != nil {
			return err
		}
		for _, entry := range entries {
			referenced[entry.Path] = true
		}
	}
	unreferenced := difference(present, referenced)
	missing := difference(referenced, present)
	if len(unreferenced) == 0 && len(missing) == 0 {
		return nil
	}
	return &StructureError{
		Msg: fmt.Sprintf("payload does not match manifests: unreferenced %v, missing %v",
			unreferenced, missing),
		Unreferenced: unreferenced,
		Missing:      missing,
	}
}

// difference returns the sorted keys of a which are not in b.
func difference(a, b map[string]bool) []string {
	var result []string
	for k := range a {
		if !b[k] {
			result = append(result, k)
		}
	}
	sort.Strings(result)
	return result
}
