package rangelog

import (
	"github.com/iamqiss/rangelog/archive"
	"github.com/iamqiss/rangelog/blobstore"
	"github.com/iamqiss/rangelog/internal/fs"
	"github.com/iamqiss/rangelog/model"
	"github.com/iamqiss/rangelog/segment"
)

type options struct {
	logger   *Logger
	fsys     fs.FileSystem
	eligible model.EligibilityPredicate
	codec    segment.Codec

	archiveStore  blobstore.BlobStore
	archiveOptFns []func(o *archive.Options)
}

// Option configures a TableIndex.
type Option func(*options)

// WithLogger sets the logger. The default logs text to stderr at info
// level.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFileSystem substitutes the filesystem used for segment IO,
// primarily for fault-injection tests.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
		}
	}
}

// WithEligibility overrides which journal keys are indexed. The default
// indexes command entries only.
func WithEligibility(eligible model.EligibilityPredicate) Option {
	return func(o *options) {
		o.eligible = eligible
	}
}

// WithSegmentCodec selects the block compression for flushed segments.
func WithSegmentCodec(codec segment.Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// WithArchive enables best-effort archiving of flushed segments to the
// given blob store. An archive failure never fails the flush; the
// segment stays local-only and the failure is logged.
func WithArchive(store blobstore.BlobStore, optFns ...func(o *archive.Options)) Option {
	return func(o *options) {
		o.archiveStore = store
		o.archiveOptFns = optFns
	}
}
