package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the prediction core. Callers match them with errors.Is.
var (
	// ErrInitialization means a scoring engine instance could not be created.
	ErrInitialization = errors.New("engine initialization failed")
	// ErrInputLengthMismatch means caller-supplied parallel arrays disagree in length.
	ErrInputLengthMismatch = errors.New("input length mismatch")
	// ErrDataset means the engine rejected a feature matrix.
	ErrDataset = errors.New("dataset rejected")
	// ErrInference means the engine failed to score the loaded matrix.
	ErrInference = errors.New("inference failed")
	// ErrInvalidHandle means a disposed or never-initialized handle was used.
	ErrInvalidHandle = errors.New("invalid engine handle")
	// ErrInvalidRequest means a request was rejected before any engine call, e.g. K above the configured cap.
	ErrInvalidRequest = errors.New("invalid request")
)

// Stage names a step of the prediction pipeline.
type Stage string

const (
	StageValidate Stage = "validate"
	StageResolve  Stage = "resolve"
	StageLoad     Stage = "load"
	StageInfer    Stage = "infer"
	StageSelect   Stage = "select"
)

// StageError records which pipeline stage failed.
//
// The original error can be accessed via errors.Unwrap.
type StageError struct {
	Stage Stage
	cause error
}

// NewStageError wraps err with the stage it came from.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, cause: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("predict %s: %v", e.Stage, e.cause)
}

func (e *StageError) Unwrap() error { return e.cause }

// FailedStage returns the stage recorded in err, or "" if err carries none.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
