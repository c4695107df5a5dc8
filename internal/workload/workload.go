// Package workload generates deterministic key sets and operation streams
// for exercising a binmap.Map.
package workload

import (
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
)

// Distribution names a key generator.
type Distribution string

const (
	Sequential Distribution = "sequential"
	Random     Distribution = "random"
	UUID       Distribution = "uuid"
	// Collide keys are ordinary strings meant to be used with
	// CollideHasher, which folds them into a handful of hash values.
	Collide Distribution = "collide"
)

var ErrUnknownDistribution = errors.New("workload: unknown distribution")

// Distributions lists every supported distribution.
func Distributions() []Distribution {
	return []Distribution{Sequential, Random, UUID, Collide}
}

// ParseDistribution validates a distribution name.
func ParseDistribution(s string) (Distribution, error) {
	for _, d := range Distributions() {
		if string(d) == s {
			return d, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownDistribution, "%q", s)
}

// Keys returns n distinct keys of distribution d. The same seed always
// yields the same keys.
func Keys(d Distribution, n int, seed uint64) ([]string, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	keys := make([]string, 0, n)
	switch d {
	case Sequential:
		for i := range n {
			keys = append(keys, "key-"+strconv.Itoa(i))
		}
	case Random:
		seen := make(map[uint64]struct{}, n)
		for len(keys) < n {
			v := rng.Uint64()
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			keys = append(keys, strconv.FormatUint(v, 36))
		}
	case UUID:
		src := &rngReader{rng: rng}
		for range n {
			id, err := uuid.NewRandomFromReader(src)
			if err != nil {
				return nil, errors.Wrap(err, "workload: uuid")
			}
			keys = append(keys, id.String())
		}
	case Collide:
		for i := range n {
			keys = append(keys, "c"+strconv.Itoa(i))
		}
	default:
		return nil, errors.Wrapf(ErrUnknownDistribution, "%q", d)
	}
	return keys, nil
}

// CollideHasher returns a key hasher that maps every key to one of
// buckets hash values. Keys sharing a value share a bin at any capacity,
// which drives bins into their tree representation.
func CollideHasher(buckets int) func(key string, seed uintptr) uintptr {
	if buckets < 1 {
		buckets = 1
	}
	return func(key string, _ uintptr) uintptr {
		return uintptr(xxh3.HashString(key) % uint64(buckets))
	}
}

// rngReader adapts a deterministic generator to io.Reader.
type rngReader struct {
	rng *rand.Rand
}

func (r *rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rng.Uint32())
	}
	return len(p), nil
}
