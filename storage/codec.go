package storage

// Codec encodes and decodes values of type T to and from a fixed-width
// byte slot. A B-tree node record reserves Width() bytes per key and per
// value slot, so every instantiation of Codec[T] used by a given tree must
// report the same Width() for the lifetime of the on-disk files.
//
// This mirrors cznic-exp/dbm's big-endian handle encoding idiom
// (bits.go/slice.go) generalized to a pluggable strategy value instead of a
// single hardwired layout, since the B-tree is generic over key and value
// type while dbm's Array/File are not.
type Codec[T any] interface {
	// Encode returns the Width()-byte encoding of v.
	Encode(v T) []byte

	// Decode parses exactly Width() bytes previously produced by Encode.
	Decode(b []byte) (T, error)

	// Width reports the fixed number of bytes Encode always returns and
	// Decode always consumes.
	Width() int
}
