package snapshot

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Codec appends the encoding of a T to a buffer and decodes it back.
// Decode returns the value and the number of bytes consumed.
type Codec[T any] interface {
	Append(dst []byte, v T) []byte
	Decode(src []byte) (T, int, error)
}

// Built-in codecs. Integers are varint encoded; strings and byte slices
// are length-prefixed.
var (
	String Codec[string] = stringCodec{}
	Bytes  Codec[[]byte] = bytesCodec{}
	Int    Codec[int]    = intCodec{}
	Int64  Codec[int64]  = int64Codec{}
	Uint64 Codec[uint64] = uint64Codec{}
)

type stringCodec struct{}

func (stringCodec) Append(dst []byte, v string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(v)))
	return append(dst, v...)
}

func (stringCodec) Decode(src []byte) (string, int, error) {
	b, n, err := decodeBlob(src)
	return string(b), n, err
}

type bytesCodec struct{}

func (bytesCodec) Append(dst []byte, v []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(v)))
	return append(dst, v...)
}

func (bytesCodec) Decode(src []byte) ([]byte, int, error) {
	b, n, err := decodeBlob(src)
	if err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), b...), n, nil
}

type intCodec struct{}

func (intCodec) Append(dst []byte, v int) []byte {
	return binary.AppendVarint(dst, int64(v))
}

func (intCodec) Decode(src []byte) (int, int, error) {
	v, n, err := int64Codec{}.Decode(src)
	return int(v), n, err
}

type int64Codec struct{}

func (int64Codec) Append(dst []byte, v int64) []byte {
	return binary.AppendVarint(dst, v)
}

func (int64Codec) Decode(src []byte) (int64, int, error) {
	v, n := binary.Varint(src)
	if n <= 0 {
		return 0, 0, errors.Wrap(ErrTruncated, "varint")
	}
	return v, n, nil
}

type uint64Codec struct{}

func (uint64Codec) Append(dst []byte, v uint64) []byte {
	return binary.AppendUvarint(dst, v)
}

func (uint64Codec) Decode(src []byte) (uint64, int, error) {
	v, n := binary.Uvarint(src)
	if n <= 0 {
		return 0, 0, errors.Wrap(ErrTruncated, "uvarint")
	}
	return v, n, nil
}

// decodeBlob returns a view of a length-prefixed byte string.
func decodeBlob(src []byte) ([]byte, int, error) {
	l, n := binary.Uvarint(src)
	if n <= 0 {
		return nil, 0, errors.Wrap(ErrTruncated, "length prefix")
	}
	if l > uint64(len(src)-n) {
		return nil, 0, errors.Wrapf(ErrTruncated, "blob of %d bytes", l)
	}
	end := n + int(l)
	return src[n:end], end, nil
}
