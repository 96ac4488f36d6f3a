package models

// ScoredCandidate is one task with the score the engine produced for its row.
// Score keeps the engine's float32 precision, so JSON renders 0.9 rather than its float64 widening.
type ScoredCandidate struct {
	Task  uint32  `json:"task"`
	Score float32 `json:"score"`
}

// RankedResult is sorted by score descending; its length is min(K, len(tasks)).
type RankedResult []ScoredCandidate

// PredictResponse wraps a ranked result with request bookkeeping.
type PredictResponse struct {
	ID      string       `json:"id"`
	Results RankedResult `json:"results"`
	// Candidates is the number of tasks scored.
	Candidates int   `json:"candidates"`
	Facts      int   `json:"facts"`
	TookMs     int64 `json:"took_ms"`
}

// Tasks returns the ranked task ids.
func (r RankedResult) Tasks() []uint32 {
	out := make([]uint32, len(r))
	for i, c := range r {
		out[i] = c.Task
	}
	return out
}
