package syncer

import (
	"errors"
	"fmt"

	"github.com/mkoziy/contratos/crmsync/internal/runlog"
)

var (
	// ErrSourceUnavailable means the CRM fetch failed or timed out.
	ErrSourceUnavailable = errors.New("sales source unavailable")
	// ErrBatchFailed means a batch could not be written; earlier batches stay committed.
	ErrBatchFailed = errors.New("partial batch failure")
	// ErrRunLogWrite means the run log could not be read or written.
	ErrRunLogWrite = errors.New("run log write failure")
	// ErrOverlayUnavailable means hidden sales could not be loaded.
	ErrOverlayUnavailable = errors.New("soft-delete overlay unavailable")
	// ErrInvalidWindow means the requested window ends before it starts.
	ErrInvalidWindow = errors.New("invalid sync window")
	// ErrClosed means the orchestrator no longer starts runs.
	ErrClosed = errors.New("orchestrator closed")
)

// RunError is returned for a run that started and did not complete. It
// matches its Kind and its cause with errors.Is.
type RunError struct {
	RunID  string
	Kind   error
	Err    error
	Counts runlog.Counts
}

func (e *RunError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("sync: %v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("sync run %s: %v: %v", e.RunID, e.Kind, e.Err)
}

func (e *RunError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
