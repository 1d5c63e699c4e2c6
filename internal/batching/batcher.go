// Package batching groups issue rows into token-bounded batches for the
// model backend.
package batching

import (
	"encoding/json"

	"github.com/allyant/audit-reporter/internal/types"
)

// DefaultTokenBudget matches the request-size ceiling of the model backend.
const DefaultTokenBudget = 4096

// bytesPerToken is the serialized-byte-to-token estimate. It is a coarse
// monotonic proxy, not a tokenizer.
const bytesPerToken = 50

// EstimateTokens returns the estimated token cost of one serialized row.
func EstimateTokens(row types.IssueRow) float64 {
	data, err := json.Marshal(row)
	if err != nil {
		// IssueRow contains only marshalable fields; this cannot happen.
		return 0
	}
	return float64(len(data)) / bytesPerToken
}

// Pack splits rows into ordered batches whose estimated token counts stay
// within budget. Packing is greedy: rows accumulate into the current batch
// until adding the next row would exceed the budget, which closes the batch
// and starts a new one with that row. Rows are never reordered or split, so
// concatenating the batches reproduces the input exactly. A single row
// larger than the budget forms a batch on its own.
func Pack(rows []types.IssueRow, budget float64) [][]types.IssueRow {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	var batches [][]types.IssueRow
	var current []types.IssueRow
	currentTokens := 0.0

	for _, row := range rows {
		cost := EstimateTokens(row)
		if len(current) > 0 && currentTokens+cost > budget {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, row)
		currentTokens += cost
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}
