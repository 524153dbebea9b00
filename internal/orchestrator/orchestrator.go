package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/lakegate/internal/catalog"
	"github.com/triage-ai/lakegate/internal/ledger"
	"github.com/triage-ai/lakegate/internal/policy"
	"github.com/triage-ai/lakegate/internal/retrieval"
	"go.uber.org/zap"
)

// Tool identifiers consulted by the pipeline.
const (
	toolDailyRevenue  = "get_daily_revenue"
	toolDataFreshness = "get_data_freshness"
	toolRetrieveDocs  = "retrieve_docs"
	toolRevenueBySKU  = "get_revenue_by_sku"
	toolMissingSKUs   = "find_missing_skus_yesterday"
)

// notesQuery is the fixed retrieval prompt for step 4. The pipeline answers
// one bounded question shape; it is not a planner.
const notesQuery = "common causes of revenue drop, late ingestion, missing SKU feed"

const dateLayout = "2006-01-02"

// StepStatus tags the outcome of one pipeline step so the degrade-vs-abort
// decision is an explicit branch, not a blanket recover.
type StepStatus int

const (
	StepOK StepStatus = iota
	StepEmpty
	StepDenied
	StepFailed
)

// StepOutcome is the tagged result of an optional step.
type StepOutcome struct {
	Status StepStatus
	Err    error
}

// ToolExecutor runs catalog tools. Satisfied by *catalog.Executor.
type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, params []any, role, runID string) (*catalog.Result, error)
}

// NotesRetriever performs role-filtered similarity search. Satisfied by
// *retrieval.Gateway.
type NotesRetriever interface {
	Retrieve(ctx context.Context, queryText, role string, topK int) ([]retrieval.Record, error)
}

// Orchestrator sequences the fixed revenue-diagnostics pipeline: begin run,
// required revenue trend and freshness, optional notes, optional
// permission-gated SKU detail, and the missing-SKU computation gated on it.
type Orchestrator struct {
	policy    policy.Store
	executor  ToolExecutor
	ledger    ledger.Ledger
	retriever NotesRetriever
	topK      int
	logger    *zap.Logger
	now       func() time.Time
}

// Config configures the Orchestrator.
type Config struct {
	Policy    policy.Store
	Executor  ToolExecutor
	Ledger    ledger.Ledger
	Retriever NotesRetriever
	TopK      int
	Logger    *zap.Logger
	Now       func() time.Time // defaults to time.Now
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		policy:    cfg.Policy,
		executor:  cfg.Executor,
		ledger:    cfg.Ledger,
		retriever: cfg.Retriever,
		topK:      topK,
		logger:    cfg.Logger,
		now:       now,
	}
}

// fanOutResult carries one concurrent step's result back to the collector.
type fanOutResult struct {
	name  string
	res   *catalog.Result
	notes []retrieval.Record
	err   error
}

// Run executes the pipeline for one question and returns the report.
// A failure of a required step (revenue trend, freshness) aborts the run;
// optional steps degrade to empty or unavailable sections.
func (o *Orchestrator) Run(ctx context.Context, userID, role, question string) (*Report, error) {
	runID := uuid.New().String()

	// The run record must exist before any tool call so tool-call records
	// never reference a missing run.
	if err := o.ledger.BeginRun(ctx, ledger.Run{
		ID:       runID,
		UserID:   userID,
		Role:     role,
		Question: question,
	}); err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}

	now := o.now()
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)
	dayBefore := now.AddDate(0, 0, -2).Format(dateLayout)
	windowStart := now.AddDate(0, 0, -7).Format(dateLayout)

	report := &Report{
		RunID:         runID,
		Role:          role,
		Question:      question,
		YesterdayDate: yesterday,
	}

	// Step 2 (required): revenue trend.
	revenue, err := o.executor.Execute(ctx, toolDailyRevenue, []any{windowStart, yesterday}, role, runID)
	if err != nil {
		return nil, fmt.Errorf("required revenue trend step: %w", err)
	}
	report.addSource(toolDailyRevenue)
	if err := report.setTrend(revenue); err != nil {
		return nil, fmt.Errorf("required revenue trend step: %w", err)
	}

	// Steps 3 and 4 are independent of each other; fan them out and collect
	// both before deciding. BeginRun has completed, so their audit records
	// may interleave freely.
	ch := make(chan fanOutResult, 2)
	go func() {
		res, err := o.executor.Execute(ctx, toolDataFreshness, []any{}, role, runID)
		ch <- fanOutResult{name: toolDataFreshness, res: res, err: err}
	}()
	go func() {
		if err := o.policy.Enforce(role, toolRetrieveDocs); err != nil {
			ch <- fanOutResult{name: toolRetrieveDocs, err: err}
			return
		}
		notes, err := o.retriever.Retrieve(ctx, notesQuery, role, o.topK)
		ch <- fanOutResult{name: toolRetrieveDocs, notes: notes, err: err}
	}()

	var freshness, notes fanOutResult
	for i := 0; i < 2; i++ {
		out := <-ch
		switch out.name {
		case toolDataFreshness:
			freshness = out
		case toolRetrieveDocs:
			notes = out
		}
	}

	// Step 3 (required): data freshness.
	if freshness.err != nil {
		return nil, fmt.Errorf("required freshness step: %w", freshness.err)
	}
	report.addSource(toolDataFreshness)
	report.setFreshness(freshness.res)

	// Step 4 (optional): retrieval notes. Denials stay out of sourcesUsed;
	// attempted failures are recorded and degrade to an empty note set.
	switch {
	case notes.err != nil && errors.Is(notes.err, policy.ErrPermissionDenied):
		report.Notes.Outcome = StepOutcome{Status: StepDenied, Err: notes.err}
	case notes.err != nil:
		o.logger.Warn("retrieval notes degraded", zap.String("run_id", runID), zap.Error(notes.err))
		report.addSource(toolRetrieveDocs)
		report.Notes.Outcome = StepOutcome{Status: StepFailed, Err: notes.err}
	case len(notes.notes) == 0:
		report.addSource(toolRetrieveDocs)
		report.Notes.Outcome = StepOutcome{Status: StepEmpty}
	default:
		report.addSource(toolRetrieveDocs)
		report.Notes.Outcome = StepOutcome{Status: StepOK}
		report.Notes.Records = notes.notes
	}

	// Step 5 (optional, permission-gated): per-SKU revenue detail.
	sku, err := o.executor.Execute(ctx, toolRevenueBySKU, []any{yesterday}, role, runID)
	switch {
	case errors.Is(err, policy.ErrPermissionDenied):
		report.SKU.Outcome = StepOutcome{Status: StepDenied, Err: err}
	case err != nil:
		o.logger.Warn("sku detail degraded", zap.String("run_id", runID), zap.Error(err))
		report.addSource(toolRevenueBySKU)
		report.SKU.Outcome = StepOutcome{Status: StepFailed, Err: err}
	default:
		report.addSource(toolRevenueBySKU)
		report.setTopSKUs(sku)
	}

	// Step 6 (optional, gated on step 5): missing SKUs. Failure degrades to
	// an empty list, never aborts.
	if report.SKU.Outcome.Status == StepOK || report.SKU.Outcome.Status == StepEmpty {
		missing, err := o.executor.Execute(ctx, toolMissingSKUs, []any{windowStart, dayBefore, yesterday}, role, runID)
		switch {
		case errors.Is(err, policy.ErrPermissionDenied):
			// Not consulted; stays out of sourcesUsed.
		case err != nil:
			o.logger.Warn("missing-sku computation degraded", zap.String("run_id", runID), zap.Error(err))
			report.addSource(toolMissingSKUs)
		default:
			report.addSource(toolMissingSKUs)
			for _, row := range missing.Rows {
				if len(row) > 0 {
					report.SKU.MissingSKUs = append(report.SKU.MissingSKUs, fmt.Sprint(row[0]))
				}
			}
		}
	}

	return report, nil
}

// toFloat64 converts a scanned SQL cell to float64.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	default:
		return 0, fmt.Errorf("cannot interpret %T as a number", v)
	}
}
