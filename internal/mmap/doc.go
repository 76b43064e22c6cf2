// Package mmap provides read-only memory mapping of immutable segment
// components.
package mmap
