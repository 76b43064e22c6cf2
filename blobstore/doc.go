// Package blobstore abstracts object storage for archived segment
// components, with local, S3 and MinIO backends.
package blobstore
