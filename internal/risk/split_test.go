package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitByAllocations(t *testing.T) {
	// дефолтная таблица 73/1/1/23
	qtys, err := SplitByAllocations(100, []float64{73, 1, 1, 23}, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{73, 1, 1, 25}, qtys)

	var sum float64
	for _, q := range qtys {
		sum += q
	}
	assert.Equal(t, 100.0, sum)
}

func TestSplitByAllocationsRemainderToLastLeg(t *testing.T) {
	// 0.337 не делится на доли без остатка — последняя нога забирает хвост
	qtys, err := SplitByAllocations(0.337, []float64{73, 1, 1, 23}, 0.001)
	require.NoError(t, err)
	require.Len(t, qtys, 4)

	var sum float64
	for _, q := range qtys {
		sum += q
	}
	assert.InDelta(t, 0.337, sum, 1e-12)
	// все ноги кроме последней кратны шагу
	for _, q := range qtys[:3] {
		assert.Equal(t, q, AdjustToStep(q, 0.001, RoundDown))
	}
}

func TestSplitByAllocationsRejects(t *testing.T) {
	_, err := SplitByAllocations(0, []float64{100}, 1)
	require.Error(t, err)

	_, err = SplitByAllocations(100, nil, 1)
	require.Error(t, err)

	_, err = SplitByAllocations(100, []float64{60, 60}, 1)
	require.Error(t, err)

	_, err = SplitByAllocations(100, []float64{-5, 50}, 1)
	require.Error(t, err)
}
