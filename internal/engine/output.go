package engine

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/hyperjump/fmrank/internal/models"
)

// outputFile writes every successful score vector to a file, one score per line,
// overwriting the previous run.
type outputFile struct {
	Engine
	path string
}

// WithOutputFile wraps eng so that RunInference also writes its scores to path.
func WithOutputFile(eng Engine, path string) Engine {
	return &outputFile{Engine: eng, path: path}
}

func (o *outputFile) RunInference(ctx context.Context) ([]float32, error) {
	scores, err := o.Engine.RunInference(ctx)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(scores)*12)
	for _, s := range scores {
		buf = strconv.AppendFloat(buf, float64(s), 'g', -1, 32)
		buf = append(buf, '\n')
	}
	if err := os.WriteFile(o.path, buf, 0644); err != nil {
		return nil, fmt.Errorf("%w: failed to write output: %w", models.ErrInference, err)
	}
	return scores, nil
}
