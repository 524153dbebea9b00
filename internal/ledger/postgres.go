package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// pgForeignKeyViolation is the Postgres error code raised when a tool call
// references a run id that does not exist.
const pgForeignKeyViolation = "23503"

// auditStore abstracts DB writes for testability.
type auditStore interface {
	InsertRun(ctx context.Context, run Run) error
	InsertToolCall(ctx context.Context, runID, toolName, inputsJSON, outputsJSON string) error
}

// sqlAuditStore is the real implementation using *sql.DB.
type sqlAuditStore struct {
	db *sql.DB
}

func (s *sqlAuditStore) InsertRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit.runs (run_id, user_id, user_role, question, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (run_id) DO NOTHING
	`, run.ID, run.UserID, run.Role, run.Question)
	return err
}

func (s *sqlAuditStore) InsertToolCall(ctx context.Context, runID, toolName, inputsJSON, outputsJSON string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit.tool_calls (run_id, tool_name, inputs_json, outputs_json, created_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, now())
	`, runID, toolName, inputsJSON, outputsJSON)
	return err
}

// PostgresLedger persists the audit trail in the audit.runs and
// audit.tool_calls tables. The run-before-call ordering invariant is backed
// by the foreign key on tool_calls.run_id.
type PostgresLedger struct {
	store  auditStore
	logger *zap.Logger
}

// PostgresLedgerConfig configures the PostgresLedger.
type PostgresLedgerConfig struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// NewPostgresLedger creates a ledger over the given connection.
func NewPostgresLedger(cfg PostgresLedgerConfig) *PostgresLedger {
	return &PostgresLedger{
		store:  &sqlAuditStore{db: cfg.DB},
		logger: cfg.Logger,
	}
}

// newPostgresLedgerWithStore creates a ledger with a custom store (for testing).
func newPostgresLedgerWithStore(store auditStore, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{store: store, logger: logger}
}

func (l *PostgresLedger) BeginRun(ctx context.Context, run Run) error {
	if err := l.store.InsertRun(ctx, run); err != nil {
		return fmt.Errorf("BeginRun: %w", err)
	}
	return nil
}

func (l *PostgresLedger) RecordToolCall(ctx context.Context, runID, toolName string, inputs []any, full Output) error {
	inputsJSON, err := json.Marshal(map[string]any{"params": inputs})
	if err != nil {
		return fmt.Errorf("RecordToolCall: marshal inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(Summarize(full))
	if err != nil {
		return fmt.Errorf("RecordToolCall: marshal summary: %w", err)
	}

	if err := l.store.InsertToolCall(ctx, runID, toolName, string(inputsJSON), string(outputsJSON)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return fmt.Errorf("RecordToolCall: run %q was never begun: %w", runID, ErrUnknownRun)
		}
		return fmt.Errorf("RecordToolCall: %w", err)
	}
	return nil
}
