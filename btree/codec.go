package btree

import (
	"encoding/binary"

	"github.com/evakaiing/FA-sub001/storage"
)

// Int64Codec is a storage.Codec[int64] encoding keys/values as an 8-byte
// big-endian integer, grounded on cznic-exp/dbm/bits.go's big-endian
// handle encoding idiom.
var Int64Codec storage.Codec[int64] = int64Codec{}

type int64Codec struct{}

func (int64Codec) Encode(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func (int64Codec) Decode(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, &storage.ErrINVAL{Src: "Int64Codec.Decode", Val: len(b)}
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (int64Codec) Width() int { return 8 }

// StringCodec returns a storage.Codec[string] that encodes a string as a
// 2-byte big-endian length prefix followed by up to width bytes of UTF-8
// content, zero-padded to width. Strings longer than width are truncated
// by Encode; callers that need more room should pick a larger width.
func StringCodec(width int) storage.Codec[string] { return stringCodec{width: width} }

type stringCodec struct{ width int }

func (c stringCodec) Encode(v string) []byte {
	data := []byte(v)
	if len(data) > c.width {
		data = data[:c.width]
	}
	b := make([]byte, c.width+2)
	binary.BigEndian.PutUint16(b[0:2], uint16(len(data)))
	copy(b[2:], data)
	return b
}

func (c stringCodec) Decode(b []byte) (string, error) {
	if len(b) != c.width+2 {
		return "", &storage.ErrINVAL{Src: "StringCodec.Decode", Val: len(b)}
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	if n > c.width {
		return "", &storage.ErrCorrupt{Src: "StringCodec.Decode: length exceeds width"}
	}
	return string(b[2 : 2+n]), nil
}

func (c stringCodec) Width() int { return c.width + 2 }
