// Package models defines the request, response and error types shared by the prediction core.
package models

import "fmt"

// Fact is a contextual key/value feature shared by every candidate of one request.
type Fact struct {
	Key   uint32 `json:"key"`
	Value int32  `json:"value"`
}

// PredictRequest asks for the K best tasks given the shared facts.
// Tasks order defines matrix row order.
type PredictRequest struct {
	Tasks []uint32 `json:"tasks"`
	Facts []Fact   `json:"facts,omitempty"`
	K     int      `json:"k"`
	// Quiet suppresses the per-call progress log for this request only.
	Quiet bool `json:"quiet,omitempty"`
}

// NewPredictRequest pairs parallel key/value arrays into facts.
// keys and values must have the same length; otherwise ErrInputLengthMismatch is returned.
func NewPredictRequest(tasks, keys []uint32, values []int32, k int) (*PredictRequest, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("%w: %d fact keys, %d fact values", ErrInputLengthMismatch, len(keys), len(values))
	}
	facts := make([]Fact, len(keys))
	for i := range keys {
		facts[i] = Fact{Key: keys[i], Value: values[i]}
	}
	return &PredictRequest{Tasks: tasks, Facts: facts, K: k}, nil
}

// Keys returns the fact keys in order.
func (r *PredictRequest) Keys() []uint32 {
	keys := make([]uint32, len(r.Facts))
	for i, f := range r.Facts {
		keys[i] = f.Key
	}
	return keys
}

// Values returns the fact values in order.
func (r *PredictRequest) Values() []int32 {
	values := make([]int32, len(r.Facts))
	for i, f := range r.Facts {
		values[i] = f.Value
	}
	return values
}
