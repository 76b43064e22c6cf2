package segment

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the block compression applied to interval components.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

func zstdInit() {
	zstdOnce.Do(func() {
		// Stateless EncodeAll/DecodeAll use; both constructors only fail
		// on bad options.
		zstdEnc, _ = zstd.NewWriter(nil)
		zstdDec, _ = zstd.NewReader(nil)
	})
}

// compressBlock compresses raw with the requested codec and returns the
// codec actually used: incompressible blocks fall back to CodecNone so
// a block never grows.
func compressBlock(c Codec, raw []byte) (Codec, []byte) {
	switch c {
	case CodecZstd:
		zstdInit()
		out := zstdEnc.EncodeAll(raw, make([]byte, 0, len(raw)))
		if len(out) >= len(raw) {
			return CodecNone, raw
		}
		return CodecZstd, out
	case CodecLZ4:
		var comp lz4.Compressor
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := comp.CompressBlock(raw, dst)
		if err != nil || n == 0 || n >= len(raw) {
			return CodecNone, raw
		}
		return CodecLZ4, dst[:n]
	default:
		return CodecNone, raw
	}
}

// decompressBlock reverses compressBlock. rawLen is the stored
// uncompressed length.
func decompressBlock(c Codec, block []byte, rawLen int) ([]byte, error) {
	switch c {
	case CodecNone:
		if len(block) != rawLen {
			return nil, fmt.Errorf("raw block length %d, expected %d", len(block), rawLen)
		}
		return block, nil
	case CodecZstd:
		zstdInit()
		out, err := zstdDec.DecodeAll(block, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("zstd block: %w", err)
		}
		return out, nil
	case CodecLZ4:
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(block, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 block: %w", err)
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("unknown block codec %d", c)
	}
}
