package cachecodec

import (
	"encoding/binary"
	"fmt"
)

// Serialize encodes an optional list of strings (a cache miss/hit payload)
// into a fixed little-endian variable-length format that must remain
// stable across versions of this program:
//
//	[ present: 1 byte ]                 0x00 = None, 0x01 = Some
//	if present:
//	  [ count: uvarint ]
//	  for each string:
//	    [ length: uvarint ][ bytes ]
func Serialize(values *[]string) []byte {
	if values == nil {
		return []byte{0x00}
	}

	buf := make([]byte, 0, 16)
	buf = append(buf, 0x01)
	buf = binary.AppendUvarint(buf, uint64(len(*values)))
	for _, v := range *values {
		buf = binary.AppendUvarint(buf, uint64(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

// Deserialize reverses Serialize.
func Deserialize(data []byte) (*[]string, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cachecodec: empty payload")
	}

	switch data[0] {
	case 0x00:
		return nil, nil
	case 0x01:
		// fallthrough to decode below
	default:
		return nil, fmt.Errorf("cachecodec: unknown presence byte %#x", data[0])
	}

	rest := data[1:]
	count, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, fmt.Errorf("cachecodec: malformed count")
	}
	rest = rest[n:]

	values := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		length, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, fmt.Errorf("cachecodec: malformed string length")
		}
		rest = rest[n:]
		if uint64(len(rest)) < length {
			return nil, fmt.Errorf("cachecodec: truncated string")
		}
		values = append(values, string(rest[:length]))
		rest = rest[length:]
	}
	return &values, nil
}
