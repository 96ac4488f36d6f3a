// Package trainer passes command lines through to the external xLearn binaries.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/hyperjump/fmrank/internal/metrics"
	"go.uber.org/zap"
)

// Mode tokens. Anything other than ModeTrain runs the predict binary.
const (
	ModeTrain   = "train"
	ModePredict = "predict"
)

// ErrNoArgs is returned when Run is called without a mode token.
var ErrNoArgs = errors.New("trainer: missing mode argument")

// Runner executes the configured train or predict binary.
type Runner struct {
	trainBinary   string
	predictBinary string
	stdout        io.Writer
	stderr        io.Writer
	logger        *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithOutput redirects the child's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// NewRunner returns a runner for the given binaries.
func NewRunner(trainBinary, predictBinary string, opts ...Option) *Runner {
	r := &Runner{
		trainBinary:   trainBinary,
		predictBinary: predictBinary,
		stdout:        os.Stdout,
		stderr:        os.Stderr,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Binary returns the binary that mode selects.
func (r *Runner) Binary(mode string) string {
	if mode == ModeTrain {
		return r.trainBinary
	}
	return r.predictBinary
}

// Run executes args[0]'s binary with args[1:] verbatim. quiet discards the
// child's stdout for this call only.
func (r *Runner) Run(ctx context.Context, args []string, quiet bool) error {
	if len(args) == 0 {
		return ErrNoArgs
	}
	mode := args[0]
	label := ModePredict
	if mode == ModeTrain {
		label = ModeTrain
	}
	bin := r.Binary(mode)
	if bin == "" {
		err := fmt.Errorf("trainer: no %s binary configured", label)
		metrics.RecordTrainerRun(label, err)
		return err
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args[1:]...)
	cmd.Stdout = r.stdout
	if quiet {
		cmd.Stdout = io.Discard
	}
	cmd.Stderr = r.stderr

	r.logger.Debug("starting run", zap.String("mode", label), zap.String("binary", bin), zap.Strings("args", args[1:]))
	err := cmd.Run()
	r.logger.Info("Total time cost", zap.String("mode", label), zap.Duration("took", time.Since(start)))
	metrics.RecordTrainerRun(label, err)
	if err != nil {
		return fmt.Errorf("%s run failed: %w", label, err)
	}
	return nil
}
