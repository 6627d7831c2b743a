package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dsaito/agentboard/internal/model"
)

func TestCalculateSonnet(t *testing.T) {
	got := Calculate("claude-sonnet-4-20250514", 1000, 500, 200, 100)
	want := (1000*3.0 + 500*15.0 + 200*0.3 + 100*3.75) / 1e6
	assert.InDelta(t, want, got, 1e-10)
}

func TestCalculateOpus(t *testing.T) {
	got := Calculate("claude-opus-4-20250514", 1000, 500, 0, 0)
	want := (1000*15.0 + 500*75.0) / 1e6
	assert.InDelta(t, want, got, 1e-10)
}

func TestCalculateHaiku(t *testing.T) {
	got := Calculate("claude-haiku-3-20250307", 1000, 500, 0, 0)
	want := (1000*0.8 + 500*4.0) / 1e6
	assert.InDelta(t, want, got, 1e-10)
}

func TestCalculateUnknownModelFallsBackToSonnet(t *testing.T) {
	got := Calculate("gpt-4", 1000, 500, 0, 0)
	want := (3000.0 + 7500.0) / 1e6
	assert.InDelta(t, want, got, 1e-10)
}

func TestAddUsage(t *testing.T) {
	u := AddUsage(model.Usage{}, "claude-sonnet-4-20250514", 100, 200, 50, 25)
	assert.Equal(t, uint64(100), u.InputTokens)
	assert.Equal(t, uint64(200), u.OutputTokens)
	assert.Equal(t, uint64(50), u.CacheReadTokens)
	assert.Equal(t, uint64(25), u.CacheCreationTokens)
	assert.Greater(t, u.EstimatedCost, 0.0)
}

// Cost is additive: summing per-tuple costs equals pricing the
// summed tuple, for usages of the same model.
func TestCostAdditivity(t *testing.T) {
	tuples := [][4]uint64{
		{1000, 500, 200, 100},
		{1, 2, 3, 4},
		{999999, 0, 0, 7},
		{0, 0, 0, 0},
		{123456, 654321, 42, 99},
	}

	for _, modelName := range []string{
		"claude-opus-4", "claude-sonnet-4", "claude-haiku-3", "gpt-4",
	} {
		var sumOfCosts float64
		var total [4]uint64
		u := model.Usage{}
		for _, tup := range tuples {
			sumOfCosts += Calculate(modelName, tup[0], tup[1], tup[2], tup[3])
			u = AddUsage(u, modelName, tup[0], tup[1], tup[2], tup[3])
			for i := range total {
				total[i] += tup[i]
			}
		}
		wholeCost := Calculate(modelName, total[0], total[1], total[2], total[3])
		if math.Abs(sumOfCosts-wholeCost) > 1e-10 {
			t.Errorf("%s: sum of costs %v != cost of sum %v",
				modelName, sumOfCosts, wholeCost)
		}
		assert.InDelta(t, wholeCost, u.EstimatedCost, 1e-10, modelName)
	}
}
