package ledger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// LogLedger is a fallback Ledger for local development when no Postgres DSN
// is configured. Records are emitted through the logger; the run-before-call
// ordering invariant is still enforced against an in-memory run set.
type LogLedger struct {
	logger *zap.Logger

	mu   sync.Mutex
	runs map[string]struct{}
}

// NewLogLedger creates a LogLedger that outputs records to the given logger.
func NewLogLedger(logger *zap.Logger) *LogLedger {
	return &LogLedger{
		logger: logger,
		runs:   make(map[string]struct{}),
	}
}

func (l *LogLedger) BeginRun(_ context.Context, run Run) error {
	l.mu.Lock()
	_, exists := l.runs[run.ID]
	l.runs[run.ID] = struct{}{}
	l.mu.Unlock()

	if exists {
		return nil
	}
	l.logger.Info("audit_run",
		zap.String("run_id", run.ID),
		zap.String("user_id", run.UserID),
		zap.String("user_role", run.Role),
		zap.String("question", run.Question),
	)
	return nil
}

func (l *LogLedger) RecordToolCall(_ context.Context, runID, toolName string, inputs []any, full Output) error {
	l.mu.Lock()
	_, exists := l.runs[runID]
	l.mu.Unlock()
	if !exists {
		return fmt.Errorf("RecordToolCall: run %q was never begun: %w", runID, ErrUnknownRun)
	}

	summary := Summarize(full)
	l.logger.Info("audit_tool_call",
		zap.String("run_id", runID),
		zap.String("tool_name", toolName),
		zap.Any("inputs", inputs),
		zap.Strings("columns", summary.Columns),
		zap.Int("row_count", summary.RowCount),
		zap.Int("preview_rows", len(summary.PreviewRows)),
	)
	return nil
}
