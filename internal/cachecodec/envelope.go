package cachecodec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressorID identifies the compression codec used in a cache envelope's
// first byte. zstd is the one concrete implementation wired in.
type CompressorID byte

const (
	// CompressorNone stores the serialized payload uncompressed; tests use
	// it to inspect bytes directly.
	CompressorNone CompressorID = 0
	// CompressorZstd compresses the serialized payload with zstd.
	CompressorZstd CompressorID = 1
)

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("cachecodec: construct zstd encoder: %v", err))
		}
		encoder = enc
	})
	return encoder
}

func zstdDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("cachecodec: construct zstd decoder: %v", err))
		}
		decoder = dec
	})
	return decoder
}

// Encode builds the full envelope for values: one compressor-id byte
// followed by the compressed serialized payload.
func Encode(values *[]string, id CompressorID) ([]byte, error) {
	serialized := Serialize(values)

	var compressed []byte
	switch id {
	case CompressorNone:
		compressed = serialized
	case CompressorZstd:
		compressed = zstdEncoder().EncodeAll(serialized, nil)
	default:
		return nil, fmt.Errorf("cachecodec: unknown compressor id %d", id)
	}

	out := make([]byte, 0, len(compressed)+1)
	out = append(out, byte(id))
	out = append(out, compressed...)
	return out, nil
}

// Decode reverses Encode: it reads the compressor-id byte, decompresses,
// and deserializes the result.
func Decode(envelope []byte) (*[]string, error) {
	if len(envelope) == 0 {
		return nil, fmt.Errorf("cachecodec: empty envelope")
	}

	id := CompressorID(envelope[0])
	body := envelope[1:]

	var serialized []byte
	switch id {
	case CompressorNone:
		serialized = body
	case CompressorZstd:
		decoded, err := zstdDecoder().DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("cachecodec: zstd decompress: %w", err)
		}
		serialized = decoded
	default:
		return nil, fmt.Errorf("cachecodec: unknown compressor id %d", id)
	}

	return Deserialize(serialized)
}
