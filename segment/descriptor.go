package segment

import (
	"errors"
	"fmt"
	"os"

	"github.com/iamqiss/rangelog/internal/fs"
)

// Component file suffixes. A segment is the triple of these files
// sharing one base path; the completion marker is always written last.
const (
	IntervalsSuffix = "-Intervals.db"
	MetadataSuffix  = "-Metadata.db"
	MarkerSuffix    = "-Completed.db"
)

// ErrIncomplete reports a segment whose completion marker is missing:
// either a crashed flush or a misconfigured file set.
var ErrIncomplete = errors.New("segment index incomplete")

// Descriptor resolves the component paths of one segment and answers
// whether its build completed.
type Descriptor struct {
	Base string

	fsys fs.FileSystem
}

// NewDescriptor returns a descriptor for the segment at base. A nil
// filesystem means the local one.
func NewDescriptor(fsys fs.FileSystem, base string) *Descriptor {
	if fsys == nil {
		fsys = fs.Default
	}
	return &Descriptor{Base: base, fsys: fsys}
}

func (d *Descriptor) IntervalsPath() string { return d.Base + IntervalsSuffix }
func (d *Descriptor) MetadataPath() string  { return d.Base + MetadataSuffix }
func (d *Descriptor) MarkerPath() string    { return d.Base + MarkerSuffix }

// ComponentPaths returns all component paths, marker last.
func (d *Descriptor) ComponentPaths() []string {
	return []string{d.IntervalsPath(), d.MetadataPath(), d.MarkerPath()}
}

// IsComplete reports whether the completion marker exists and carries
// the expected contents.
func (d *Descriptor) IsComplete() bool {
	data, err := d.fsys.ReadFile(d.MarkerPath())
	return err == nil && string(data) == markerContents
}

// Remove deletes every component file. Missing components are not an
// error, so a half-built segment can be cleaned up.
func (d *Descriptor) Remove() error {
	var errs []error
	for _, path := range d.ComponentPaths() {
		if err := d.fsys.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
