package sensor

import (
	"fmt"
	"time"

	"github.com/dotcommander/asanasense/internal/models"
)

// Status tags the result of one update cycle.
type Status string

const (
	StatusUpdated     Status = "updated"
	StatusFetchFailed Status = "fetch_failed"
)

// Outcome describes one update cycle. Err is non-nil only for StatusFetchFailed.
type Outcome struct {
	RunID      string    `json:"run_id"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	TaskCount  int       `json:"task_count"`
	Err        error     `json:"-"`
}

// ErrorMessage returns Err's text, or "" when the cycle succeeded.
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

var _ models.RecoverableError = (*FetchError)(nil)

// FetchError wraps a failed task fetch. The previous snapshot stays in place.
type FetchError struct {
	Workspace string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch tasks for workspace %s: %v", e.Workspace, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) ErrorCode() string { return "FETCH_FAILED" }

func (e *FetchError) Context() map[string]string {
	return map[string]string{"workspace": e.Workspace}
}

func (e *FetchError) SuggestedAction() string {
	return "check access_token and workspace, then wait for the next cycle"
}

// SlogAttrs adds structured fields to command error logs.
func (e *FetchError) SlogAttrs() []any {
	return []any{"workspace", e.Workspace, "error_code", e.ErrorCode()}
}
