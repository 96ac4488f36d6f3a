package predict

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/hyperjump/fmrank/internal/engine"
	"github.com/hyperjump/fmrank/internal/lifecycle"
	"github.com/hyperjump/fmrank/internal/matrix"
	"github.com/hyperjump/fmrank/internal/models"
	"github.com/hyperjump/fmrank/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine returns fixed scores and remembers the last loaded matrix.
type stubEngine struct {
	scores   []float32
	loaded   *matrix.Matrix
	loadErr  error
	inferErr error
	loads    int
	infers   int
}

func (s *stubEngine) LoadDataset(m *matrix.Matrix) error {
	s.loads++
	if s.loadErr != nil {
		return s.loadErr
	}
	s.loaded = m
	return nil
}

func (s *stubEngine) RunInference(context.Context) ([]float32, error) {
	s.infers++
	if s.inferErr != nil {
		return nil, s.inferErr
	}
	return s.scores, nil
}

func (s *stubEngine) Close() error { return nil }

func newRequest(k int) *models.PredictRequest {
	return &models.PredictRequest{
		Tasks: []uint32{10, 20, 30},
		Facts: []models.Fact{{Key: 5, Value: 2}, {Key: 6, Value: 1}},
		K:     k,
	}
}

func TestRun_topK(t *testing.T) {
	tests := []struct {
		name string
		k    int
		want models.RankedResult
	}{
		{"two", 2, models.RankedResult{{Task: 20, Score: 0.9}, {Task: 30, Score: 0.5}}},
		{"zero", 0, models.RankedResult{}},
		{"more than candidates", 100, models.RankedResult{{Task: 20, Score: 0.9}, {Task: 30, Score: 0.5}, {Task: 10, Score: 0.1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &stubEngine{scores: []float32{0.1, 0.9, 0.5}}
			resp, err := NewPipeline(lifecycle.NewRegistry()).Run(context.Background(), eng, newRequest(tt.k))
			require.NoError(t, err)

			require.Len(t, resp.Results, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Task, resp.Results[i].Task)
				assert.InDelta(t, tt.want[i].Score, resp.Results[i].Score, 1e-6)
			}
			assert.Equal(t, 3, resp.Candidates)
			assert.Equal(t, 2, resp.Facts)
			assert.NotEmpty(t, resp.ID)
		})
	}
}

func TestRun_matrixShape(t *testing.T) {
	eng := &stubEngine{scores: []float32{0.1, 0.9, 0.5}}
	_, err := NewPipeline(lifecycle.NewRegistry()).Run(context.Background(), eng, newRequest(1))
	require.NoError(t, err)

	require.NotNil(t, eng.loaded)
	assert.False(t, eng.loaded.HasLabel)
	require.Equal(t, 3, eng.loaded.NumRows())
	assert.Equal(t, matrix.Row{{Index: 20, Value: 1}, {Index: 5, Value: 2}, {Index: 6, Value: 1}}, eng.loaded.Rows[1])
}

func TestRun_emptyTasks(t *testing.T) {
	eng := &stubEngine{scores: []float32{}}
	resp, err := NewPipeline(lifecycle.NewRegistry()).Run(context.Background(), eng, &models.PredictRequest{K: 5})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestRun_maxKRejectsOversizedK(t *testing.T) {
	eng := &stubEngine{scores: []float32{0.1, 0.9, 0.5}}
	req := newRequest(3)
	resp, err := NewPipeline(lifecycle.NewRegistry(), WithMaxK(2)).Run(context.Background(), eng, req)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
	assert.Equal(t, models.StageValidate, models.FailedStage(err))
	assert.Zero(t, eng.loads, "engine must not be called")
	assert.Equal(t, 3, req.K)
}

func TestRun_kWithinMaxKIsNotTruncated(t *testing.T) {
	eng := &stubEngine{scores: []float32{0.1, 0.9, 0.5}}
	req := newRequest(3)
	resp, err := NewPipeline(lifecycle.NewRegistry(), WithMaxK(3)).Run(context.Background(), eng, req)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, 3, req.K)
}

func TestRun_resultSizeIsMinKN(t *testing.T) {
	const n = 2000
	tasks := make([]uint32, n)
	scores := make([]float32, n)
	for i := range tasks {
		tasks[i] = uint32(i)
		scores[i] = float32(i) / n
	}
	for _, k := range []int{1500, n, n + 500} {
		eng := &stubEngine{scores: scores}
		resp, err := NewPipeline(lifecycle.NewRegistry()).Run(context.Background(), eng, &models.PredictRequest{Tasks: tasks, K: k})
		require.NoError(t, err)
		assert.Len(t, resp.Results, min(k, n), "k=%d", k)
		assert.Equal(t, uint32(n-1), resp.Results[0].Task)
	}
}

func TestRun_errors(t *testing.T) {
	tests := []struct {
		name      string
		eng       *stubEngine
		req       *models.PredictRequest
		wantErr   error
		wantStage models.Stage
	}{
		{
			name:      "nil request",
			eng:       &stubEngine{},
			req:       nil,
			wantErr:   models.ErrInvalidRequest,
			wantStage: models.StageValidate,
		},
		{
			name:      "dataset",
			eng:       &stubEngine{loadErr: models.ErrDataset},
			req:       newRequest(2),
			wantErr:   models.ErrDataset,
			wantStage: models.StageLoad,
		},
		{
			name:      "inference",
			eng:       &stubEngine{inferErr: models.ErrInference},
			req:       newRequest(2),
			wantErr:   models.ErrInference,
			wantStage: models.StageInfer,
		},
		{
			name:      "short score vector",
			eng:       &stubEngine{scores: []float32{0.3}},
			req:       newRequest(2),
			wantErr:   models.ErrInference,
			wantStage: models.StageInfer,
		},
		{
			name:      "NaN score",
			eng:       &stubEngine{scores: []float32{float32(math.NaN()), 0.5, 0.2}},
			req:       newRequest(2),
			wantErr:   models.ErrInference,
			wantStage: models.StageInfer,
		},
		{
			name:      "infinite score",
			eng:       &stubEngine{scores: []float32{0.1, float32(math.Inf(1)), 0.2}},
			req:       newRequest(2),
			wantErr:   models.ErrInference,
			wantStage: models.StageInfer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := NewPipeline(lifecycle.NewRegistry()).Run(context.Background(), tt.eng, tt.req)
			require.Error(t, err)
			assert.Nil(t, resp)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantStage, models.FailedStage(err))
		})
	}
}

func TestPredictArrays_lengthMismatch(t *testing.T) {
	reg := lifecycle.NewRegistry()
	h, err := reg.Init(lifecycle.InitOptions{Type: engine.TypeMock})
	require.NoError(t, err)

	_, err = NewPipeline(reg).PredictArrays(context.Background(), h, []uint32{1, 2}, []uint32{5, 6}, []int32{1}, 1)
	assert.ErrorIs(t, err, models.ErrInputLengthMismatch)
	assert.Equal(t, models.StageValidate, models.FailedStage(err))
}

func TestPredict_handle(t *testing.T) {
	eng := &stubEngine{scores: []float32{0.1, 0.9, 0.5}}
	reg := lifecycle.NewRegistry(lifecycle.WithOpenFunc(func(engine.Options) (engine.Engine, error) {
		return eng, nil
	}))
	h, err := reg.Init(lifecycle.InitOptions{Quiet: true})
	require.NoError(t, err)

	p := NewPipeline(reg)
	resp, err := p.Predict(context.Background(), h, newRequest(2))
	require.NoError(t, err)
	assert.Equal(t, []uint32{20, 30}, resp.Results.Tasks())

	require.NoError(t, reg.Dispose(h))
	_, err = p.Predict(context.Background(), h, newRequest(2))
	assert.ErrorIs(t, err, models.ErrInvalidHandle)
	assert.Equal(t, models.StageResolve, models.FailedStage(err))
	assert.Equal(t, 1, eng.infers)
}

func TestPredict_mockEngine(t *testing.T) {
	reg := lifecycle.NewRegistry()
	h, err := reg.Init(lifecycle.InitOptions{Type: engine.TypeMock})
	require.NoError(t, err)
	defer reg.Close()

	p := NewPipeline(reg)
	first, err := p.Predict(context.Background(), h, newRequest(3))
	require.NoError(t, err)
	second, err := p.Predict(context.Background(), h, newRequest(3))
	require.NoError(t, err)
	assert.Equal(t, first.Results, second.Results)
	for i := 1; i < len(first.Results); i++ {
		assert.GreaterOrEqual(t, first.Results[i-1].Score, first.Results[i].Score)
	}
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) RecordPrediction(context.Context, *storage.PredictionRecord) error {
	f.calls++
	return errors.New("disk full")
}

func TestRun_recorderFailureIgnored(t *testing.T) {
	rec := &failingRecorder{}
	eng := &stubEngine{scores: []float32{0.1, 0.9, 0.5}}
	resp, err := NewPipeline(lifecycle.NewRegistry(), WithRecorder(rec)).Run(context.Background(), eng, newRequest(2))
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 1, rec.calls)
}

func TestRun_recordsToSQLite(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "predictions.db"))
	require.NoError(t, err)
	defer store.Close()

	eng := &stubEngine{scores: []float32{0.1, 0.9, 0.5}}
	resp, err := NewPipeline(lifecycle.NewRegistry(), WithRecorder(store)).Run(context.Background(), eng, newRequest(2))
	require.NoError(t, err)

	got, err := store.GetPrediction(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.K)
	assert.Equal(t, []uint32{20, 30}, got.Results.Tasks())
}
