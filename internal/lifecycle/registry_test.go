package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/fmrank/internal/engine"
	"github.com/hyperjump/fmrank/internal/matrix"
	"github.com/hyperjump/fmrank/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_InitUseDispose(t *testing.T) {
	r := NewRegistry()
	h, err := r.Init(InitOptions{Type: engine.TypeMock})
	require.NoError(t, err)
	assert.NotEmpty(t, h)
	assert.Equal(t, 1, r.Len())

	eng, err := r.Engine(h)
	require.NoError(t, err)
	require.NoError(t, eng.LoadDataset(matrix.Build([]uint32{1, 2}, nil)))
	scores, err := eng.RunInference(context.Background())
	require.NoError(t, err)
	assert.Len(t, scores, 2)

	require.NoError(t, r.Dispose(h))
	assert.Equal(t, 0, r.Len())

	_, err = r.Engine(h)
	assert.ErrorIs(t, err, models.ErrInvalidHandle)
	assert.ErrorIs(t, r.Dispose(h), models.ErrInvalidHandle)
}

func TestRegistry_handlesAreDistinct(t *testing.T) {
	r := NewRegistry()
	a, err := r.Init(InitOptions{Type: engine.TypeMock})
	require.NoError(t, err)
	b, err := r.Init(InitOptions{Type: engine.TypeMock})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, r.List(), 2)
}

func TestRegistry_neverInitialized(t *testing.T) {
	r := NewRegistry()
	_, err := r.Engine("")
	assert.ErrorIs(t, err, models.ErrInvalidHandle)
	_, err = r.Info("nope")
	assert.ErrorIs(t, err, models.ErrInvalidHandle)
	assert.False(t, r.Quiet("nope"))
}

func TestRegistry_initFailure(t *testing.T) {
	r := NewRegistry()
	_, err := r.Init(InitOptions{Type: engine.TypeMock, ModelPath: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, models.ErrInitialization)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_quietAndInfo(t *testing.T) {
	r := NewRegistry()
	h, err := r.Init(InitOptions{Type: engine.TypeMock, Quiet: true, OutputPath: filepath.Join(t.TempDir(), "out")})
	require.NoError(t, err)
	assert.True(t, r.Quiet(h))
	info, err := r.Info(h)
	require.NoError(t, err)
	assert.Equal(t, engine.TypeMock, info.Type)
	assert.False(t, info.CreatedAt.IsZero())
}

type closeErrEngine struct{ engine.Engine }

func (closeErrEngine) Close() error { return errors.New("boom") }

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(WithOpenFunc(func(engine.Options) (engine.Engine, error) {
		return closeErrEngine{}, nil
	}))
	_, err := r.Init(InitOptions{})
	require.NoError(t, err)
	_, err = r.Init(InitOptions{})
	require.NoError(t, err)

	assert.Error(t, r.Close())
	assert.Equal(t, 0, r.Len())
}
