package engine

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/hyperjump/fmrank/internal/matrix"
	"github.com/hyperjump/fmrank/internal/models"
	"github.com/hyperjump/fmrank/pkg/utils"
)

const mockFactors = 4

// MockEngine is a deterministic factorization-machine scorer. Weights and latent factors
// are derived from the feature index hash, so the same matrix always gets the same scores.
type MockEngine struct {
	seed         int
	featureCount uint32
	loaded       *matrix.Matrix
	closed       bool
}

// NewMockEngine returns a mock engine. When modelPath is set it must exist; its path seeds the weights.
func NewMockEngine(modelPath string, featureCount uint32) (*MockEngine, error) {
	if modelPath != "" {
		if _, err := os.Stat(modelPath); err != nil {
			return nil, fmt.Errorf("failed to load model: %w", err)
		}
	}
	return &MockEngine{seed: hashString(modelPath), featureCount: featureCount}, nil
}

// LoadDataset binds m for the next RunInference.
func (e *MockEngine) LoadDataset(m *matrix.Matrix) error {
	if e.closed {
		return models.ErrInvalidHandle
	}
	if m == nil {
		return fmt.Errorf("%w: nil matrix", models.ErrDataset)
	}
	if err := checkFeatureRange(m, e.featureCount); err != nil {
		return err
	}
	e.loaded = m
	return nil
}

// RunInference scores every row of the loaded matrix.
func (e *MockEngine) RunInference(ctx context.Context) ([]float32, error) {
	if e.closed {
		return nil, models.ErrInvalidHandle
	}
	if e.loaded == nil {
		return nil, fmt.Errorf("%w: no dataset loaded", models.ErrInference)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInference, err)
	}
	scores := make([]float32, len(e.loaded.Rows))
	for i, row := range e.loaded.Rows {
		scores[i] = e.score(row)
	}
	return scores, nil
}

// Close invalidates the engine.
func (e *MockEngine) Close() error {
	if e.closed {
		return models.ErrInvalidHandle
	}
	e.closed = true
	e.loaded = nil
	return nil
}

// score is the FM formula: sigmoid(sum w_i x_i + 1/2 sum_f ((sum v_if x_i)^2 - sum v_if^2 x_i^2)).
func (e *MockEngine) score(row matrix.Row) float32 {
	var linear float64
	var sum, sumSq [mockFactors]float64
	for _, n := range row {
		x := float64(n.Value)
		linear += e.weight(n.Index, 0) * x
		for f := 0; f < mockFactors; f++ {
			v := e.weight(n.Index, f+1) * x
			sum[f] += v
			sumSq[f] += v * v
		}
	}
	var pair float64
	for f := 0; f < mockFactors; f++ {
		pair += sum[f]*sum[f] - sumSq[f]
	}
	z := linear + 0.5*pair
	return float32(utils.Sigmoid(z))
}

func (e *MockEngine) weight(index uint32, slot int) float64 {
	h := e.seed*31 + int(index)*(mockFactors+1) + slot + 1
	return math.Sin(float64(h)) * 0.1
}

// hashString returns a non-negative hash of s.
func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
