// Package fs abstracts the filesystem operations of the segment layer
// behind an interface, with a fault-injecting wrapper for tests.
package fs
