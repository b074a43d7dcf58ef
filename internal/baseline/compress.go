package baseline

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// blob holds baseline content, transparently zstd-compressed when large.
type blob struct {
	data       []byte
	compressed bool
}

type compressor struct {
	minSize int
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

func newCompressor(minSize int) (*compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &compressor{minSize: minSize, enc: enc, dec: dec}, nil
}

// pack stores text, compressed when it is large enough for compression to
// pay off. Content that does not shrink stays raw.
func (c *compressor) pack(text string) blob {
	raw := []byte(text)
	if len(raw) < c.minSize {
		return blob{data: raw}
	}
	packed := c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	if len(packed) >= len(raw) {
		return blob{data: raw}
	}
	return blob{data: packed, compressed: true}
}

// unpack returns the original text.
func (c *compressor) unpack(b blob) (string, error) {
	if !b.compressed {
		return string(b.data), nil
	}
	raw, err := c.dec.DecodeAll(b.data, nil)
	if err != nil {
		return "", fmt.Errorf("decompressing baseline content: %w", err)
	}
	return string(raw), nil
}
