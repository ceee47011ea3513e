package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec for postings and ordinal blocks. The
// directory block is always zstd.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZSTD Compression = 2
)

// ParseCompression resolves the names used in configuration.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unknown segment compression %q", name)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Block layout: [rawSize uint32][storedSize uint32][data]. storedSize 0
// means the data is stored raw.
const blockHeaderSize = 8

func compressBlock(data []byte, c Compression) ([]byte, error) {
	var packed []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		packed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	out := make([]byte, blockHeaderSize, blockHeaderSize+len(data))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(data)))
	if len(packed) == 0 || len(packed) >= len(data) {
		return append(out, data...), nil
	}
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(packed)))
	return append(out, packed...), nil
}

func decompressBlock(block []byte, c Compression) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, errors.New("block too small for header")
	}
	rawSize := binary.LittleEndian.Uint32(block[0:4])
	storedSize := binary.LittleEndian.Uint32(block[4:8])
	body := block[blockHeaderSize:]
	if storedSize == 0 {
		if uint32(len(body)) < rawSize {
			return nil, errors.New("raw block truncated")
		}
		return body[:rawSize], nil
	}
	if uint32(len(body)) < storedSize {
		return nil, errors.New("compressed block truncated")
	}
	body = body[:storedSize]

	switch c {
	case CompressionLZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint32(n) != rawSize {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(body, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint32(len(out)) != rawSize {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	default:
		return nil, fmt.Errorf("compressed block with codec %s", c)
	}
}
