// Package lifecycle issues and tracks engine handles: one initialization, many predictions, one disposal.
package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/fmrank/internal/engine"
	"github.com/hyperjump/fmrank/internal/metrics"
	"github.com/hyperjump/fmrank/internal/models"
	"github.com/hyperjump/fmrank/pkg/utils"
	"go.uber.org/zap"
)

// Handle identifies one initialized engine instance. The zero value is never valid.
type Handle string

// InitOptions describes a new engine instance.
type InitOptions struct {
	Type       engine.Type
	ModelPath  string
	OutputPath string
	// Quiet silences the instance's own logging.
	Quiet        bool
	FeatureCount uint32
	LibraryPath  string
	InputNames   []string
	OutputName   string
}

// Info describes a live handle.
type Info struct {
	Handle     Handle      `json:"handle"`
	Type       engine.Type `json:"type"`
	ModelPath  string      `json:"model_path"`
	OutputPath string      `json:"output_path,omitempty"`
	Quiet      bool        `json:"quiet"`
	CreatedAt  time.Time   `json:"created_at"`
}

type instance struct {
	info   Info
	engine engine.Engine
}

// OpenFunc creates an engine; engine.Open by default.
type OpenFunc func(engine.Options) (engine.Engine, error)

// Registry owns engine instances by handle. The registry map is guarded; the engines are not.
// Callers serialize use of a single handle themselves.
type Registry struct {
	mu        sync.RWMutex
	instances map[Handle]*instance
	open      OpenFunc
	logger    *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithOpenFunc replaces the engine constructor, e.g. with a stub in tests.
func WithOpenFunc(open OpenFunc) RegistryOption {
	return func(r *Registry) { r.open = open }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		instances: make(map[Handle]*instance),
		open:      engine.Open,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init creates and initializes an engine instance and returns its handle.
// Failures wrap models.ErrInitialization.
func (r *Registry) Init(opts InitOptions) (Handle, error) {
	logger := utils.QuietIf(r.logger, opts.Quiet)
	logger.Info("start initializing", zap.String("model_path", opts.ModelPath))

	eng, err := r.open(engine.Options{
		Type:         opts.Type,
		ModelPath:    opts.ModelPath,
		OutputPath:   opts.OutputPath,
		FeatureCount: opts.FeatureCount,
		LibraryPath:  opts.LibraryPath,
		InputNames:   opts.InputNames,
		OutputName:   opts.OutputName,
		Logger:       logger,
	})
	if err != nil {
		return "", fmt.Errorf("init %s: %w", opts.ModelPath, err)
	}

	h := Handle(uuid.NewString())
	r.mu.Lock()
	r.instances[h] = &instance{
		info: Info{
			Handle:     h,
			Type:       opts.Type,
			ModelPath:  opts.ModelPath,
			OutputPath: opts.OutputPath,
			Quiet:      opts.Quiet,
			CreatedAt:  time.Now(),
		},
		engine: eng,
	}
	r.mu.Unlock()
	metrics.EngineHandles.Inc()

	logger.Info("finish initializing", zap.String("handle", string(h)))
	return h, nil
}

// Engine returns the engine behind h, or models.ErrInvalidHandle.
func (r *Registry) Engine(h Handle) (engine.Engine, error) {
	r.mu.RLock()
	inst, ok := r.instances[h]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidHandle, h)
	}
	return inst.engine, nil
}

// Info returns the description of h, or models.ErrInvalidHandle.
func (r *Registry) Info(h Handle) (Info, error) {
	r.mu.RLock()
	inst, ok := r.instances[h]
	r.mu.RUnlock()
	if !ok {
		return Info{}, fmt.Errorf("%w: %q", models.ErrInvalidHandle, h)
	}
	return inst.info, nil
}

// Quiet reports whether h was initialized quiet. Unknown handles are not quiet.
func (r *Registry) Quiet(h Handle) bool {
	info, err := r.Info(h)
	return err == nil && info.Quiet
}

// Dispose releases the engine behind h. The handle is invalid afterwards;
// disposing it again returns models.ErrInvalidHandle.
func (r *Registry) Dispose(h Handle) error {
	r.mu.Lock()
	inst, ok := r.instances[h]
	delete(r.instances, h)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", models.ErrInvalidHandle, h)
	}
	metrics.EngineHandles.Dec()
	if err := inst.engine.Close(); err != nil {
		return fmt.Errorf("dispose %s: %w", h, err)
	}
	if !inst.info.Quiet {
		r.logger.Info("engine disposed", zap.String("handle", string(h)))
	}
	return nil
}

// List returns the live handles.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst.info)
	}
	return out
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// Close disposes every live handle and returns the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[Handle]*instance)
	r.mu.Unlock()
	metrics.EngineHandles.Sub(float64(len(instances)))

	var first error
	for h, inst := range instances {
		if err := inst.engine.Close(); err != nil && first == nil {
			first = fmt.Errorf("dispose %s: %w", h, err)
		}
	}
	return first
}
