// Package minio provides the MinIO-backed blob store.
package minio
