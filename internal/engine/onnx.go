//go:build cgo
// +build cgo

package engine

import (
	"context"
	"fmt"

	"github.com/hyperjump/fmrank/internal/matrix"
	"github.com/hyperjump/fmrank/internal/models"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

const onnxCompiled = true

// ONNXEngine scores feature matrices with an exported factorization-machine graph.
// The graph takes two rows x width inputs (int64 indices, float32 values) and yields
// one float32 score per row. It requires CGO and the onnxruntime shared library.
type ONNXEngine struct {
	session      *ort.DynamicAdvancedSession
	featureCount uint32
	loaded       *matrix.Matrix
	logger       *zap.Logger
}

// NewONNXEngine loads the model at opts.ModelPath. The runtime environment is initialized if not already done.
func NewONNXEngine(opts Options) (*ONNXEngine, error) {
	opts.applyDefaults()
	if len(opts.InputNames) != 2 {
		return nil, fmt.Errorf("onnx engine expects 2 inputs (indices, values), got %d", len(opts.InputNames))
	}
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath, opts.InputNames, []string{opts.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return &ONNXEngine{
		session:      session,
		featureCount: opts.FeatureCount,
		logger:       opts.Logger,
	}, nil
}

// LoadDataset binds m for the next RunInference. Tensors are created per run.
func (e *ONNXEngine) LoadDataset(m *matrix.Matrix) error {
	if e.session == nil {
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

// RunInference scores the loaded matrix. All tensors are destroyed before returning.
func (e *ONNXEngine) RunInference(ctx context.Context) ([]float32, error) {
	if e.session == nil {
		return nil, models.ErrInvalidHandle
	}
	if e.loaded == nil {
		return nil, fmt.Errorf("%w: no dataset loaded", models.ErrInference)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInference, err)
	}
	rows := int64(e.loaded.NumRows())
	if rows == 0 {
		return []float32{}, nil
	}

	indices, values, ok := e.loaded.Flatten()
	if !ok {
		return nil, fmt.Errorf("%w: rows differ in width", models.ErrInference)
	}
	shape := ort.NewShape(rows, int64(e.loaded.Width()))

	indicesTensor, err := ort.NewTensor(shape, indices)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create indices tensor: %w", models.ErrInference, err)
	}
	defer indicesTensor.Destroy()
	valuesTensor, err := ort.NewTensor(shape.Clone(), values)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create values tensor: %w", models.ErrInference, err)
	}
	defer valuesTensor.Destroy()
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(rows))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create output tensor: %w", models.ErrInference, err)
	}
	defer outputTensor.Destroy()

	err = e.session.Run(
		[]ort.ArbitraryTensor{indicesTensor, valuesTensor},
		[]ort.ArbitraryTensor{outputTensor},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInference, err)
	}

	scores := make([]float32, rows)
	copy(scores, outputTensor.GetData())
	e.logger.Debug("onnx inference done", zap.Int64("rows", rows))
	return scores, nil
}

// Close destroys the session.
func (e *ONNXEngine) Close() error {
	if e.session == nil {
		return models.ErrInvalidHandle
	}
	err := e.session.Destroy()
	e.session = nil
	e.loaded = nil
	return err
}
