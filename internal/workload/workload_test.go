package workload

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys_DistinctAndDeterministic(t *testing.T) {
	for _, d := range Distributions() {
		t.Run(string(d), func(t *testing.T) {
			a, err := Keys(d, 500, 7)
			require.NoError(t, err)
			b, err := Keys(d, 500, 7)
			require.NoError(t, err)
			assert.Equal(t, a, b)

			seen := make(map[string]struct{}, len(a))
			for _, k := range a {
				seen[k] = struct{}{}
			}
			assert.Len(t, seen, 500)
		})
	}
}

func TestKeys_UUID(t *testing.T) {
	keys, err := Keys(UUID, 3, 1)
	require.NoError(t, err)
	for _, k := range keys {
		id, err := uuid.Parse(k)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(4), id.Version())
	}
}

func TestParseDistribution(t *testing.T) {
	d, err := ParseDistribution("collide")
	require.NoError(t, err)
	assert.Equal(t, Collide, d)

	_, err = ParseDistribution("zipf")
	assert.ErrorIs(t, err, ErrUnknownDistribution)
	_, err = Keys("zipf", 1, 0)
	assert.ErrorIs(t, err, ErrUnknownDistribution)
}

func TestCollideHasher(t *testing.T) {
	h := CollideHasher(3)
	keys, err := Keys(Collide, 100, 0)
	require.NoError(t, err)
	values := map[uintptr]struct{}{}
	for _, k := range keys {
		v := h(k, 0)
		assert.Less(t, v, uintptr(3))
		assert.Equal(t, v, h(k, 12345), "seed must not matter")
		values[v] = struct{}{}
	}
	assert.Len(t, values, 3)
}

func TestMix(t *testing.T) {
	mix := Mix{GetPct: 50, PutPct: 40, RemovePct: 10}
	ops, err := mix.Ops(10000, 100, 3)
	require.NoError(t, err)
	counts := map[Kind]int{}
	for _, op := range ops {
		counts[op.Kind]++
		assert.GreaterOrEqual(t, op.Key, 0)
		assert.Less(t, op.Key, 100)
	}
	assert.InDelta(t, 5000, counts[Get], 300)
	assert.InDelta(t, 4000, counts[Put], 300)
	assert.InDelta(t, 1000, counts[Remove], 200)

	_, err = Mix{GetPct: 50, PutPct: 40}.Ops(1, 1, 0)
	assert.ErrorIs(t, err, ErrBadMix)
	_, err = mix.Ops(1, 0, 0)
	assert.ErrorIs(t, err, ErrBadMix)
}
