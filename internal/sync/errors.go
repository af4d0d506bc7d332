package sync

import (
	"errors"
	"fmt"

	"rostersync/internal/model"
)

// ErrStopRequested signals that the district's cooperative stop flag was
// observed inside a long-running loop.
var ErrStopRequested = errors.New("stop requested by user")

// StageError is a stage-fatal failure: it aborts the whole stage and is
// recorded on the current history's stage-error field. It never escapes the
// processor.
type StageError struct {
	Stage model.ProcessingStage
	Err   error
}

// Error implements the error interface
func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps an error with the stage it aborted.
func NewStageError(stage model.ProcessingStage, format string, args ...interface{}) *StageError {
	return &StageError{Stage: stage, Err: fmt.Errorf(format, args...)}
}
