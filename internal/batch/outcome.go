package batch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ffl/batch-ingester/internal/model"
)

// ErrCommitFailed matches every *CommitError via errors.Is.
var ErrCommitFailed = errors.New("batch: commit failed")

// CommitError reports that every instruction applied but the scope could
// not be committed.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("CommitFailed: %v", e.Err)
}

// Kind returns the taxonomy name of the error.
func (e *CommitError) Kind() string { return "CommitFailed" }

func (e *CommitError) Is(target error) bool { return target == ErrCommitFailed }

func (e *CommitError) Unwrap() error { return e.Err }

// Status is the terminal state of a batch.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
)

// Outcome is the result of one batch run.
type Outcome struct {
	BatchID uuid.UUID
	Status  Status

	// Count is the number of instructions posted. On failure it counts the
	// instructions applied before the failing one; none of them persisted.
	Count int

	// Line is the 1-based source line of the failing record, or 0 when the
	// failure is not tied to a line (begin or commit).
	Line int

	Err error
}

// Committed reports whether the batch was committed.
func (o Outcome) Committed() bool { return o.Status == StatusCommitted }

// Kind returns the error kind of a failed batch, or "" if it committed.
func (o Outcome) Kind() string {
	if o.Err == nil {
		return ""
	}
	return model.KindOf(o.Err)
}

// Message renders the outcome as one user-facing line.
func (o Outcome) Message() string {
	switch {
	case o.Err == nil:
		return fmt.Sprintf("batch %s committed: %d instructions", o.BatchID, o.Count)
	case o.Line > 0:
		return fmt.Sprintf("batch %s failed at line %d: %s", o.BatchID, o.Line, describe(o.Err))
	default:
		return fmt.Sprintf("batch %s failed: %s", o.BatchID, describe(o.Err))
	}
}

// describe prefixes errors that do not already name their kind.
func describe(err error) string {
	kind := model.KindOf(err)
	msg := err.Error()
	if strings.HasPrefix(msg, kind+":") {
		return msg
	}
	return kind + ": " + msg
}

// Event is the wire form of an Outcome, shared by the HTTP API, the
// websocket feed and the outcome publisher.
type Event struct {
	BatchID string `json:"batch_id"`
	Status  Status `json:"status"`
	Count   int    `json:"count"`
	Line    int    `json:"line,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Event converts the outcome to its wire form.
func (o Outcome) Event() Event {
	ev := Event{
		BatchID: o.BatchID.String(),
		Status:  o.Status,
		Count:   o.Count,
		Line:    o.Line,
	}
	if o.Err != nil {
		ev.Kind = o.Kind()
		ev.Error = o.Message()
	}
	return ev
}
