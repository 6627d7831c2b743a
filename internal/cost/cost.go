// Package cost prices token usage against a per-model table and
// folds it into a session's cumulative usage.
package cost

import (
	"strings"

	"github.com/dsaito/agentboard/internal/model"
)

// pricing is USD per 1,000,000 tokens.
type pricing struct {
	prefix        string
	input         float64
	output        float64
	cacheRead     float64
	cacheCreation float64
}

// Matched by model-name prefix, first match wins. Unknown models
// fall back to the sonnet row.
var modelPricing = []pricing{
	{prefix: "claude-opus", input: 15.0, output: 75.0, cacheRead: 1.5, cacheCreation: 18.75},
	{prefix: "claude-sonnet", input: 3.0, output: 15.0, cacheRead: 0.3, cacheCreation: 3.75},
	{prefix: "claude-haiku", input: 0.8, output: 4.0, cacheRead: 0.08, cacheCreation: 1.0},
}

func pricingFor(model string) pricing {
	for _, p := range modelPricing {
		if strings.HasPrefix(model, p.prefix) {
			return p
		}
	}
	return modelPricing[1]
}

// Calculate returns the USD cost of a single usage tuple for the
// given model.
func Calculate(
	model string,
	inputTokens, outputTokens, cacheReadTokens, cacheCreationTokens uint64,
) float64 {
	p := pricingFor(model)
	return (float64(inputTokens)*p.input +
		float64(outputTokens)*p.output +
		float64(cacheReadTokens)*p.cacheRead +
		float64(cacheCreationTokens)*p.cacheCreation) / 1_000_000
}

// AddUsage returns current with the tuple's tokens and cost folded
// in. Every component is monotonically non-decreasing.
func AddUsage(
	current model.Usage,
	modelName string,
	inputTokens, outputTokens, cacheReadTokens, cacheCreationTokens uint64,
) model.Usage {
	return model.Usage{
		InputTokens:         current.InputTokens + inputTokens,
		OutputTokens:        current.OutputTokens + outputTokens,
		CacheReadTokens:     current.CacheReadTokens + cacheReadTokens,
		CacheCreationTokens: current.CacheCreationTokens + cacheCreationTokens,
		EstimatedCost: current.EstimatedCost + Calculate(
			modelName, inputTokens, outputTokens,
			cacheReadTokens, cacheCreationTokens,
		),
	}
}
