// Package predict runs one prediction request end to end:
// build matrix, load it into the engine, score, pair with tasks, select top K.
package predict

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/fmrank/internal/engine"
	"github.com/hyperjump/fmrank/internal/lifecycle"
	"github.com/hyperjump/fmrank/internal/matrix"
	"github.com/hyperjump/fmrank/internal/metrics"
	"github.com/hyperjump/fmrank/internal/models"
	"github.com/hyperjump/fmrank/internal/rank"
	"github.com/hyperjump/fmrank/internal/storage"
	"github.com/hyperjump/fmrank/pkg/utils"
	"go.uber.org/zap"
)

// Recorder persists served predictions.
type Recorder interface {
	RecordPrediction(ctx context.Context, rec *storage.PredictionRecord) error
}

// Pipeline runs predictions against engines held in a registry.
// It keeps no per-request state; a handle's engine is used without locking.
type Pipeline struct {
	registry *lifecycle.Registry
	logger   *zap.Logger
	recorder Recorder
	maxK     int
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger used for per-call progress messages.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithRecorder records every successful prediction. Recorder failures are logged only.
func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

// WithMaxK rejects requests asking for more than max results. 0 means no cap.
func WithMaxK(max int) PipelineOption {
	return func(p *Pipeline) { p.maxK = max }
}

// NewPipeline returns a pipeline over registry.
func NewPipeline(registry *lifecycle.Registry, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict scores req with the engine behind h and returns the top K tasks.
// Any failure aborts the request with a *models.StageError; there is no partial result.
func (p *Pipeline) Predict(ctx context.Context, h lifecycle.Handle, req *models.PredictRequest) (*models.PredictResponse, error) {
	logger := p.requestLogger(req, p.registry.Quiet(h)).With(zap.String("handle", string(h)))
	if err := p.validate(req); err != nil {
		return nil, p.fail(logger, time.Now(), req, models.StageValidate, err)
	}
	eng, err := p.registry.Engine(h)
	if err != nil {
		return nil, p.fail(logger, time.Now(), req, models.StageResolve, err)
	}
	return p.run(ctx, eng, string(h), req, logger)
}

// PredictArrays is Predict for callers holding parallel key/value arrays.
func (p *Pipeline) PredictArrays(ctx context.Context, h lifecycle.Handle, tasks, keys []uint32, values []int32, k int) (*models.PredictResponse, error) {
	req, err := models.NewPredictRequest(tasks, keys, values, k)
	if err != nil {
		return nil, p.fail(p.logger, time.Now(), &models.PredictRequest{Tasks: tasks, K: k}, models.StageValidate, err)
	}
	return p.Predict(ctx, h, req)
}

// Run scores req with eng directly, for callers that own an engine without a registry.
func (p *Pipeline) Run(ctx context.Context, eng engine.Engine, req *models.PredictRequest) (*models.PredictResponse, error) {
	logger := p.requestLogger(req, false)
	if err := p.validate(req); err != nil {
		return nil, p.fail(logger, time.Now(), req, models.StageValidate, err)
	}
	return p.run(ctx, eng, "", req, logger)
}

func (p *Pipeline) run(ctx context.Context, eng engine.Engine, handle string, req *models.PredictRequest, logger *zap.Logger) (*models.PredictResponse, error) {
	start := time.Now()
	logger.Debug("reading input parameters",
		zap.Int("tasks", len(req.Tasks)),
		zap.Int("knowledge", len(req.Facts)),
		zap.Int("k", req.K))

	m := matrix.Build(req.Tasks, req.Facts)
	logger.Debug("prediction matrix was generated", zap.Int("rows", m.NumRows()), zap.Int("nodes", m.NumNodes()))

	if err := eng.LoadDataset(m); err != nil {
		return nil, p.fail(logger, start, req, models.StageLoad, err)
	}
	scores, err := eng.RunInference(ctx)
	if err != nil {
		return nil, p.fail(logger, start, req, models.StageInfer, err)
	}
	if len(scores) != m.NumRows() {
		err := fmt.Errorf("%w: engine returned %d scores for %d rows", models.ErrInference, len(scores), m.NumRows())
		return nil, p.fail(logger, start, req, models.StageInfer, err)
	}
	for i, s := range scores {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			err := fmt.Errorf("%w: non-finite score %v for task %d", models.ErrInference, s, req.Tasks[i])
			return nil, p.fail(logger, start, req, models.StageInfer, err)
		}
	}
	logger.Debug("total predict time cost", zap.Duration("took", time.Since(start)))

	ranked, err := rank.SelectTopK(req.Tasks, scores, req.K)
	if err != nil {
		return nil, p.fail(logger, start, req, models.StageSelect, err)
	}

	took := time.Since(start)
	resp := &models.PredictResponse{
		ID:         uuid.NewString(),
		Results:    ranked,
		Candidates: len(req.Tasks),
		Facts:      len(req.Facts),
		TookMs:     took.Milliseconds(),
	}
	metrics.RecordPredict(took, len(req.Tasks), "", nil)
	p.record(ctx, handle, req, resp, logger)
	return resp, nil
}

func (p *Pipeline) record(ctx context.Context, handle string, req *models.PredictRequest, resp *models.PredictResponse, logger *zap.Logger) {
	if p.recorder == nil {
		return
	}
	rec := &storage.PredictionRecord{
		ID:         resp.ID,
		Handle:     handle,
		Candidates: resp.Candidates,
		Facts:      resp.Facts,
		K:          req.K,
		Results:    resp.Results,
		TookMs:     resp.TookMs,
	}
	if err := p.recorder.RecordPrediction(ctx, rec); err != nil {
		p.logger.Warn("record prediction failed", zap.String("id", resp.ID), zap.Error(err))
	}
}

func (p *Pipeline) fail(logger *zap.Logger, start time.Time, req *models.PredictRequest, stage models.Stage, err error) error {
	candidates := 0
	if req != nil {
		candidates = len(req.Tasks)
	}
	metrics.RecordPredict(time.Since(start), candidates, string(stage), err)
	logger.Debug("prediction failed", zap.String("stage", string(stage)), zap.Error(err))
	return models.NewStageError(stage, err)
}

func (p *Pipeline) requestLogger(req *models.PredictRequest, handleQuiet bool) *zap.Logger {
	return utils.QuietIf(p.logger, handleQuiet || (req != nil && req.Quiet))
}

// validate rejects a request before any engine call. K above maxK is an error, never truncated.
func (p *Pipeline) validate(req *models.PredictRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", models.ErrInvalidRequest)
	}
	if p.maxK > 0 && req.K > p.maxK {
		return fmt.Errorf("%w: k %d exceeds max_k %d", models.ErrInvalidRequest, req.K, p.maxK)
	}
	return nil
}
