package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/triage-ai/lakegate/internal/ledger"
	"github.com/triage-ai/lakegate/internal/policy"
	"go.uber.org/zap"
)

// Result is the full outcome of an executed catalog query.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Backend executes a bound query template against the analytics store.
type Backend interface {
	Query(ctx context.Context, query string, params []any) (*Result, error)
}

// Executor runs catalog tools: enforce, resolve, validate, execute, audit.
type Executor struct {
	policy  policy.Store
	catalog *Catalog
	backend Backend
	ledger  ledger.Ledger
	logger  *zap.Logger
}

// ExecutorConfig configures the Executor.
type ExecutorConfig struct {
	Policy  policy.Store
	Catalog *Catalog
	Backend Backend
	Ledger  ledger.Ledger
	Logger  *zap.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		policy:  cfg.Policy,
		catalog: cfg.Catalog,
		backend: cfg.Backend,
		ledger:  cfg.Ledger,
		logger:  cfg.Logger,
	}
}

// Execute runs the named tool for the role under the given run id.
//
// A permission denial or an unknown tool name short-circuits before any
// backing-store access and before any audit record is written. On success
// the full result is handed to the ledger (which bounds it) and then
// returned; an audit persistence failure degrades to a logged
// "audit-degraded" instead of discarding the result the caller is waiting
// on. An unknown run id is the one audit error that does propagate: it
// means BeginRun was never called, which is a bug in the caller.
func (e *Executor) Execute(ctx context.Context, toolName string, params []any, role, runID string) (*Result, error) {
	if err := e.policy.Enforce(role, toolName); err != nil {
		return nil, err
	}

	td := e.catalog.Get(toolName)
	if td == nil {
		return nil, fmt.Errorf("%q: %w", toolName, ErrUnknownTool)
	}

	if err := td.ValidateParams(params); err != nil {
		return nil, &ExecutionError{Tool: toolName, Err: err}
	}

	result, err := e.backend.Query(ctx, td.Query, params)
	if err != nil {
		return nil, &ExecutionError{Tool: toolName, Err: err}
	}

	recordErr := e.ledger.RecordToolCall(ctx, runID, toolName, params,
		ledger.Output{Columns: result.Columns, Rows: result.Rows})
	if recordErr != nil {
		if errors.Is(recordErr, ledger.ErrUnknownRun) {
			return nil, recordErr
		}
		e.logger.Error("audit-degraded: tool call result not recorded",
			zap.String("run_id", runID),
			zap.String("tool_name", toolName),
			zap.Error(recordErr),
		)
	}

	return result, nil
}
