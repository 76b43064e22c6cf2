// Package archive uploads completed segments to object storage as a
// best-effort post-flush step.
package archive
