// Package engine defines the scoring engine contract and its adapters.
//
// An Engine is not safe for concurrent use: at most one LoadDataset+RunInference
// pair may be in flight per instance. Callers sharing an instance must serialize.
package engine

import (
	"context"
	"fmt"

	"github.com/hyperjump/fmrank/internal/matrix"
	"github.com/hyperjump/fmrank/internal/models"
	"go.uber.org/zap"
)

// Engine scores the rows of a feature matrix with a pretrained model.
type Engine interface {
	// LoadDataset binds m for the next RunInference. Malformed matrices fail with models.ErrDataset.
	LoadDataset(m *matrix.Matrix) error
	// RunInference returns one score per row of the last loaded matrix, in row order.
	RunInference(ctx context.Context) ([]float32, error)
	// Close releases the instance. Any later call fails with models.ErrInvalidHandle.
	Close() error
}

// Type selects an engine adapter.
type Type string

const (
	// TypeONNX runs an exported model with ONNX Runtime. Requires CGO and the onnxruntime library.
	TypeONNX Type = "onnx"
	// TypeMock is a deterministic in-process scorer for tests and demos.
	TypeMock Type = "mock"
)

// Default tensor names of an exported factorization-machine graph.
const (
	DefaultIndicesInput = "indices"
	DefaultValuesInput  = "values"
	DefaultScoresOutput = "scores"
)

// Options configures a new engine instance.
type Options struct {
	Type       Type
	ModelPath  string
	OutputPath string
	IsTraining bool
	// FeatureCount is the model dimensionality; indices >= FeatureCount are rejected. 0 disables the check.
	FeatureCount uint32
	// LibraryPath points at the onnxruntime shared library (onnx only).
	LibraryPath string
	InputNames  []string
	OutputName  string
	Logger      *zap.Logger
}

func (o *Options) applyDefaults() {
	if len(o.InputNames) == 0 {
		o.InputNames = []string{DefaultIndicesInput, DefaultValuesInput}
	}
	if o.OutputName == "" {
		o.OutputName = DefaultScoresOutput
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Open initializes an engine of the requested type. Any failure wraps models.ErrInitialization.
// Training instances are not served here; training goes through the trainer pass-through.
func Open(opts Options) (Engine, error) {
	opts.applyDefaults()
	if opts.IsTraining {
		return nil, fmt.Errorf("%w: training instances are not supported by the prediction core", models.ErrInitialization)
	}

	var (
		eng Engine
		err error
	)
	switch opts.Type {
	case TypeONNX, "":
		eng, err = NewONNXEngine(opts)
	case TypeMock:
		eng, err = NewMockEngine(opts.ModelPath, opts.FeatureCount)
	default:
		err = fmt.Errorf("unknown engine type: %s (supported: onnx, mock)", opts.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInitialization, err)
	}

	if opts.OutputPath != "" {
		eng = WithOutputFile(eng, opts.OutputPath)
	}
	opts.Logger.Debug("engine initialized",
		zap.String("type", string(opts.Type)),
		zap.String("model_path", opts.ModelPath),
		zap.String("output_path", opts.OutputPath))
	return eng, nil
}

// IsONNXAvailable reports whether ONNX support is compiled in (CGO build).
func IsONNXAvailable() bool {
	return onnxCompiled
}

// checkFeatureRange rejects indices that exceed the model dimensionality.
func checkFeatureRange(m *matrix.Matrix, featureCount uint32) error {
	if featureCount == 0 {
		return nil
	}
	if max, ok := m.MaxIndex(); ok && max >= featureCount {
		return fmt.Errorf("%w: feature index %d exceeds model dimensionality %d", models.ErrDataset, max, featureCount)
	}
	return nil
}
