package archive

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/iamqiss/rangelog/blobstore"
	"github.com/iamqiss/rangelog/internal/fs"
	"github.com/iamqiss/rangelog/segment"
)

// Ledger optionally records segment completion in an external system,
// e.g. the DynamoDB ledger of the S3 backend.
type Ledger interface {
	Complete(ctx context.Context, base string) error
}

// Options configures an Archiver.
type Options struct {
	// FS reads component files; nil means the local filesystem.
	FS fs.FileSystem
	// Limiter paces uploads in bytes per second; nil disables pacing.
	Limiter *rate.Limiter
	// Ledger is notified after a successful upload; may be nil.
	Ledger Ledger
	// Prefix is prepended to uploaded blob names.
	Prefix string
}

// Archiver copies a completed segment's components to a blob store.
// Data components upload concurrently; the completion marker uploads
// strictly last, mirroring the local write protocol, so a restored file
// set passes the same completeness check.
type Archiver struct {
	store blobstore.BlobStore
	opts  Options
}

// New returns an archiver targeting store.
func New(store blobstore.BlobStore, optFns ...func(o *Options)) *Archiver {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	return &Archiver{store: store, opts: opts}
}

func (a *Archiver) blobName(path string) string {
	name := filepath.Base(path)
	if a.opts.Prefix != "" {
		name = a.opts.Prefix + "/" + name
	}
	return name
}

func (a *Archiver) upload(ctx context.Context, path string) error {
	data, err := a.opts.FS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read component %s: %w", path, err)
	}
	if a.opts.Limiter != nil {
		if err := waitBytes(ctx, a.opts.Limiter, len(data)); err != nil {
			return err
		}
	}
	if err := a.store.Put(ctx, a.blobName(path), data); err != nil {
		return fmt.Errorf("archive component %s: %w", path, err)
	}
	return nil
}

// waitBytes reserves n bytes from the limiter, in burst-sized chunks so
// components larger than the burst still pass.
func waitBytes(ctx context.Context, l *rate.Limiter, n int) error {
	burst := l.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := l.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Upload archives the segment at desc. The segment must be complete
// locally. On success the ledger, if any, records the publish.
func (a *Archiver) Upload(ctx context.Context, desc *segment.Descriptor) error {
	if !desc.IsComplete() {
		return fmt.Errorf("%s: %w", desc.Base, segment.ErrIncomplete)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.upload(gctx, desc.IntervalsPath()) })
	g.Go(func() error { return a.upload(gctx, desc.MetadataPath()) })
	if err := g.Wait(); err != nil {
		return err
	}

	// Marker last: a crash mid-archive leaves a blob set that fails the
	// completeness check instead of a plausible-looking torso.
	if err := a.upload(ctx, desc.MarkerPath()); err != nil {
		return err
	}

	if a.opts.Ledger != nil {
		if err := a.opts.Ledger.Complete(ctx, filepath.Base(desc.Base)); err != nil {
			return fmt.Errorf("record completion of %s: %w", desc.Base, err)
		}
	}
	return nil
}

// Delete removes a segment's archived components, marker first so the
// remainder is never mistaken for a complete segment.
func (a *Archiver) Delete(ctx context.Context, desc *segment.Descriptor) error {
	paths := desc.ComponentPaths()
	for i := len(paths) - 1; i >= 0; i-- {
		if err := a.store.Delete(ctx, a.blobName(paths[i])); err != nil {
			return fmt.Errorf("delete archived component %s: %w", paths[i], err)
		}
	}
	return nil
}
