// Package journal implements the binary framing of durable log entries:
// length-prefixed, CRC-checked frames with a strict read path for known
// durable data and a lenient try-read path that tolerates a torn tail
// during startup replay.
package journal
