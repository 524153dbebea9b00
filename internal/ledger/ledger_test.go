package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

func TestSummarize_BoundsPreview(t *testing.T) {
	rows := make([][]any, 10000)
	for i := range rows {
		rows[i] = []any{fmt.Sprintf("sku-%d", i), float64(i)}
	}

	summary := Summarize(Output{Columns: []string{"sku", "revenue_usd"}, Rows: rows})

	if summary.RowCount != 10000 {
		t.Fatalf("expected row_count 10000, got %d", summary.RowCount)
	}
	if len(summary.PreviewRows) != 5 {
		t.Fatalf("expected 5 preview rows, got %d", len(summary.PreviewRows))
	}
	if len(summary.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(summary.Columns))
	}
}

func TestSummarize_SmallResult(t *testing.T) {
	summary := Summarize(Output{Columns: []string{"dt"}, Rows: [][]any{{"2026-08-29"}}})
	if summary.RowCount != 1 {
		t.Fatalf("expected row_count 1, got %d", summary.RowCount)
	}
	if len(summary.PreviewRows) != 1 {
		t.Fatalf("expected 1 preview row, got %d", len(summary.PreviewRows))
	}
}

// mockAuditStore captures writes for assertions.
type mockAuditStore struct {
	runs    []Run
	calls   []recordedCall
	runErr  error
	callErr error
}

type recordedCall struct {
	runID, toolName, inputsJSON, outputsJSON string
}

func (m *mockAuditStore) InsertRun(_ context.Context, run Run) error {
	if m.runErr != nil {
		return m.runErr
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockAuditStore) InsertToolCall(_ context.Context, runID, toolName, inputsJSON, outputsJSON string) error {
	if m.callErr != nil {
		return m.callErr
	}
	m.calls = append(m.calls, recordedCall{runID, toolName, inputsJSON, outputsJSON})
	return nil
}

func TestPostgresLedger_BeginRun(t *testing.T) {
	store := &mockAuditStore{}
	l := newPostgresLedgerWithStore(store, zap.NewNop())

	run := Run{ID: "run-1", UserID: "u", Role: "finance", Question: "q"}
	if err := l.BeginRun(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if len(store.runs) != 1 || store.runs[0] != run {
		t.Fatalf("expected the run to be inserted, got %v", store.runs)
	}
}

func TestPostgresLedger_RecordToolCall_PersistsSummary(t *testing.T) {
	store := &mockAuditStore{}
	l := newPostgresLedgerWithStore(store, zap.NewNop())

	rows := make([][]any, 12)
	for i := range rows {
		rows[i] = []any{"2026-08-29", float64(100 * i)}
	}
	err := l.RecordToolCall(context.Background(), "run-1", "get_daily_revenue",
		[]any{"2026-08-22", "2026-08-29"},
		Output{Columns: []string{"dt", "revenue_usd"}, Rows: rows},
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(store.calls) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(store.calls))
	}

	var summary OutputSummary
	if err := json.Unmarshal([]byte(store.calls[0].outputsJSON), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.RowCount != 12 {
		t.Fatalf("expected row_count 12, got %d", summary.RowCount)
	}
	if len(summary.PreviewRows) != 5 {
		t.Fatalf("expected 5 preview rows, got %d", len(summary.PreviewRows))
	}
}

func TestPostgresLedger_UnknownRunMapsForeignKeyViolation(t *testing.T) {
	store := &mockAuditStore{callErr: &pgconn.PgError{Code: pgForeignKeyViolation}}
	l := newPostgresLedgerWithStore(store, zap.NewNop())

	err := l.RecordToolCall(context.Background(), "never-begun", "get_data_freshness", nil, Output{})
	if !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("expected ErrUnknownRun, got %v", err)
	}
}

func TestPostgresLedger_OtherWriteErrorsAreNotUnknownRun(t *testing.T) {
	store := &mockAuditStore{callErr: errors.New("connection reset")}
	l := newPostgresLedgerWithStore(store, zap.NewNop())

	err := l.RecordToolCall(context.Background(), "run-1", "get_data_freshness", nil, Output{})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnknownRun) {
		t.Fatal("generic write failure must not map to ErrUnknownRun")
	}
}

func TestLogLedger_OrderingInvariant(t *testing.T) {
	l := NewLogLedger(zap.NewNop())

	err := l.RecordToolCall(context.Background(), "run-1", "get_daily_revenue", nil, Output{})
	if !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("expected ErrUnknownRun before BeginRun, got %v", err)
	}

	if err := l.BeginRun(context.Background(), Run{ID: "run-1", Role: "finance"}); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordToolCall(context.Background(), "run-1", "get_daily_revenue", nil, Output{}); err != nil {
		t.Fatalf("expected record after begin, got %v", err)
	}
}

func TestLogLedger_BeginRunIdempotent(t *testing.T) {
	l := NewLogLedger(zap.NewNop())
	run := Run{ID: "run-1", UserID: "u", Role: "finance", Question: "q"}

	if err := l.BeginRun(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if err := l.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("duplicate BeginRun must be a no-op, got %v", err)
	}
	if len(l.runs) != 1 {
		t.Fatalf("expected exactly one run, got %d", len(l.runs))
	}
}
