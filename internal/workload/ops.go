package workload

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// Kind is a map operation.
type Kind uint8

const (
	Get Kind = iota
	Put
	Remove
)

func (k Kind) String() string {
	switch k {
	case Get:
		return "get"
	case Put:
		return "put"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// Op is one operation against a key set.
type Op struct {
	Kind  Kind
	Key   int // index into the key set
	Value int64
}

// Mix holds operation percentages. They must add up to 100.
type Mix struct {
	GetPct    int
	PutPct    int
	RemovePct int
}

var ErrBadMix = errors.New("workload: percentages must be non-negative and add up to 100")

// Validate checks the percentages.
func (m Mix) Validate() error {
	if m.GetPct < 0 || m.PutPct < 0 || m.RemovePct < 0 ||
		m.GetPct+m.PutPct+m.RemovePct != 100 {
		return errors.Wrapf(ErrBadMix, "get=%d put=%d remove=%d", m.GetPct, m.PutPct, m.RemovePct)
	}
	return nil
}

// Ops generates n operations over a key set of keyCount keys.
func (m Mix) Ops(n, keyCount int, seed uint64) ([]Op, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if keyCount <= 0 {
		return nil, errors.Wrapf(ErrBadMix, "key count %d", keyCount)
	}
	rng := rand.New(rand.NewPCG(seed, ^seed))
	ops := make([]Op, n)
	for i := range ops {
		p := rng.IntN(100)
		switch {
		case p < m.GetPct:
			ops[i].Kind = Get
		case p < m.GetPct+m.PutPct:
			ops[i].Kind = Put
		default:
			ops[i].Kind = Remove
		}
		ops[i].Key = rng.IntN(keyCount)
		ops[i].Value = rng.Int64()
	}
	return ops, nil
}
