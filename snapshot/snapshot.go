// Package snapshot persists a binmap.Map as a self-checking byte stream.
//
// Layout:
//
//	magic "BMAP" | version | flags | uvarint rawLen | [uvarint blockLen] | payload | xxh3-64
//
// The payload holds the table capacity, the entry count and every
// key/value pair in bin traversal order. With flagLZ4 the payload is a
// single lz4 block of blockLen bytes. The checksum covers the
// uncompressed payload.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"

	"github.com/llxisdsh/binmap"
)

const (
	version  = 1
	flagLZ4  = 1 << 0
	trailer  = 8
	headSize = len(magic) + 2
	// lz4 never expands a block by more than this ratio
	maxLZ4Ratio = 255
)

var magic = [4]byte{'B', 'M', 'A', 'P'}

var (
	ErrBadMagic           = errors.New("snapshot: not a binmap snapshot")
	ErrUnsupportedVersion = errors.New("snapshot: unsupported version")
	ErrChecksum           = errors.New("snapshot: checksum mismatch")
	ErrTruncated          = errors.New("snapshot: truncated input")
	ErrMalformed          = errors.New("snapshot: malformed payload")
)

type options struct {
	compress bool
}

// Option configures Write.
type Option func(*options)

// WithLZ4 compresses the payload with lz4. Incompressible payloads are
// stored as is.
func WithLZ4() Option {
	return func(o *options) {
		o.compress = true
	}
}

// Write encodes m to w.
func Write[K comparable, V any](
	w io.Writer,
	m *binmap.Map[K, V],
	kc Codec[K],
	vc Codec[V],
	opts ...Option,
) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	payload := binary.AppendUvarint(nil, uint64(m.Capacity()))
	payload = binary.AppendUvarint(payload, uint64(m.Size()))
	for k, v := range m.All() {
		payload = kc.Append(payload, k)
		payload = vc.Append(payload, v)
	}

	out := make([]byte, 0, headSize+2*binary.MaxVarintLen64+len(payload)+trailer)
	out = append(out, magic[:]...)
	out = append(out, version)
	body := payload
	flags := byte(0)
	if o.compress {
		block := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, block, nil)
		if err != nil {
			return errors.Wrap(err, "snapshot: compress")
		}
		// n == 0 means the payload is incompressible
		if n > 0 && n < len(payload) {
			flags |= flagLZ4
			body = block[:n]
		}
	}
	out = append(out, flags)
	out = binary.AppendUvarint(out, uint64(len(payload)))
	if flags&flagLZ4 != 0 {
		out = binary.AppendUvarint(out, uint64(len(body)))
	}
	out = append(out, body...)
	out = binary.LittleEndian.AppendUint64(out, xxh3.Hash(payload))

	if _, err := w.Write(out); err != nil {
		return errors.Wrap(err, "snapshot: write")
	}
	return nil
}

// Read decodes a map written by Write. The map is created with the
// recorded capacity; options are applied after it and may override it.
func Read[K comparable, V any](
	r io.Reader,
	kc Codec[K],
	vc Codec[V],
	mapOpts ...func(*binmap.MapConfig),
) (*binmap.Map[K, V], error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot: read")
	}
	payload, err := unwrap(data)
	if err != nil {
		return nil, err
	}

	capacity, n := binary.Uvarint(payload)
	if n <= 0 {
		return nil, errors.Wrap(ErrMalformed, "capacity")
	}
	payload = payload[n:]
	size, n := binary.Uvarint(payload)
	if n <= 0 {
		return nil, errors.Wrap(ErrMalformed, "size")
	}
	payload = payload[n:]
	// every key takes at least one byte
	if size > uint64(len(payload)) || capacity > 1<<30 {
		return nil, errors.Wrapf(ErrMalformed, "size %d, capacity %d", size, capacity)
	}

	opts := append([]func(*binmap.MapConfig){binmap.WithCapacity(int(capacity))}, mapOpts...)
	m, err := binmap.NewMap[K, V](opts...)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < size; i++ {
		k, kn, err := kc.Decode(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "key of entry %d", i)
		}
		payload = payload[kn:]
		v, vn, err := vc.Decode(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "value of entry %d", i)
		}
		payload = payload[vn:]
		if _, loaded := m.Put(k, v); loaded {
			return nil, errors.Wrapf(ErrMalformed, "duplicate key in entry %d", i)
		}
	}
	if len(payload) != 0 {
		return nil, errors.Wrapf(ErrMalformed, "%d trailing bytes", len(payload))
	}
	return m, nil
}

// unwrap validates the framing and returns the uncompressed payload.
func unwrap(data []byte) ([]byte, error) {
	if len(data) < headSize+1+trailer {
		return nil, ErrTruncated
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, ErrBadMagic
	}
	if v := data[len(magic)]; v != version {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", v)
	}
	flags := data[len(magic)+1]
	sum := binary.LittleEndian.Uint64(data[len(data)-trailer:])
	rest := data[headSize : len(data)-trailer]

	rawLen, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, errors.Wrap(ErrTruncated, "payload length")
	}
	rest = rest[n:]

	var payload []byte
	if flags&flagLZ4 != 0 {
		blockLen, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, errors.Wrap(ErrTruncated, "block length")
		}
		rest = rest[n:]
		if blockLen != uint64(len(rest)) {
			return nil, errors.Wrapf(ErrTruncated, "block of %d bytes, %d present", blockLen, len(rest))
		}
		if rawLen > blockLen*maxLZ4Ratio {
			return nil, errors.Wrapf(ErrMalformed, "payload length %d", rawLen)
		}
		payload = make([]byte, rawLen)
		got, err := lz4.UncompressBlock(rest, payload)
		if err != nil {
			return nil, errors.Wrap(ErrMalformed, err.Error())
		}
		if uint64(got) != rawLen {
			return nil, errors.Wrapf(ErrMalformed, "decompressed %d of %d bytes", got, rawLen)
		}
	} else {
		if rawLen != uint64(len(rest)) {
			return nil, errors.Wrapf(ErrTruncated, "payload of %d bytes, %d present", rawLen, len(rest))
		}
		payload = rest
	}

	if xxh3.Hash(payload) != sum {
		return nil, ErrChecksum
	}
	return payload, nil
}
