package ledger

import (
	"context"
	"errors"
)

// maxPreviewRows bounds the output summary persisted per tool call so that
// ledger storage cannot grow with result size.
const maxPreviewRows = 5

// Run is the immutable record created once at the start of an orchestrated
// interaction, before any tool call is attempted.
type Run struct {
	ID       string
	UserID   string
	Role     string
	Question string
}

// Output is the full result of an executed tool call as seen by the caller.
// Callers always hand the ledger the full output; projection to the bounded
// summary is the ledger's responsibility.
type Output struct {
	Columns []string
	Rows    [][]any
}

// OutputSummary is the bounded projection persisted in place of the full
// result: column names, the true row count, and at most maxPreviewRows rows.
type OutputSummary struct {
	Columns     []string `json:"columns"`
	RowCount    int      `json:"row_count"`
	PreviewRows [][]any  `json:"preview_rows"`
}

// ErrUnknownRun is returned when a tool call is recorded against a run id
// that was never begun. This is a programmer error in the caller, not a
// condition to degrade around.
var ErrUnknownRun = errors.New("unknown run id")

// Ledger is the append-only audit trail of runs and tool calls. There is no
// update or delete; timestamps are assigned at write time by the ledger.
type Ledger interface {
	// BeginRun records the run. Idempotent: a duplicate run id is a no-op
	// so retries of run initiation are safe.
	BeginRun(ctx context.Context, run Run) error

	// RecordToolCall appends one record for an executed tool call. The run
	// id must already exist (ErrUnknownRun otherwise).
	RecordToolCall(ctx context.Context, runID, toolName string, inputs []any, full Output) error
}

// Summarize projects a full tool output to its bounded summary.
func Summarize(full Output) OutputSummary {
	preview := full.Rows
	if len(preview) > maxPreviewRows {
		preview = preview[:maxPreviewRows]
	}
	return OutputSummary{
		Columns:     full.Columns,
		RowCount:    len(full.Rows),
		PreviewRows: preview,
	}
}
