package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/triage-ai/lakegate/internal/catalog"
	"github.com/triage-ai/lakegate/internal/retrieval"
)

// maxTopSKUs bounds the per-SKU detail shown in the report.
const maxTopSKUs = 5

// maxNoteChars bounds each rendered note fragment.
const maxNoteChars = 220

// FreshnessRow is one source table's latest ingestion time.
type FreshnessRow struct {
	Table           string
	LatestIngestion string
}

// SKURow is one SKU's revenue for the target day.
type SKURow struct {
	SKU     string
	Revenue float64
}

// SKUSection holds the optional, permission-gated SKU investigation.
type SKUSection struct {
	Outcome     StepOutcome
	TopSKUs     []SKURow
	MissingSKUs []string
}

// NotesSection holds the optional retrieval notes.
type NotesSection struct {
	Outcome StepOutcome
	Records []retrieval.Record
}

// Report is the structured result of one orchestrated run.
type Report struct {
	RunID         string
	Role          string
	Question      string
	YesterdayDate string

	RevenueYesterday float64
	RevenuePrior     float64
	DropPct          float64

	Freshness []FreshnessRow
	Notes     NotesSection
	SKU       SKUSection

	// SourcesUsed lists every tool consulted for this run, including
	// attempts whose business outcome was empty or failed. Denied tools
	// never appear: they were not consulted.
	SourcesUsed []string
}

func (r *Report) addSource(tool string) {
	r.SourcesUsed = append(r.SourcesUsed, tool)
}

// setTrend derives the revenue trend from the daily revenue result. The
// result must hold at least two days ordered by date ascending.
func (r *Report) setTrend(res *catalog.Result) error {
	if len(res.Rows) < 2 {
		return fmt.Errorf("revenue history has %d day(s), need at least 2", len(res.Rows))
	}
	last := res.Rows[len(res.Rows)-1]
	prior := res.Rows[len(res.Rows)-2]
	if len(last) < 2 || len(prior) < 2 {
		return fmt.Errorf("revenue rows missing the revenue column")
	}

	yesterdayRev, err := toFloat64(last[1])
	if err != nil {
		return fmt.Errorf("yesterday revenue: %w", err)
	}
	priorRev, err := toFloat64(prior[1])
	if err != nil {
		return fmt.Errorf("prior-day revenue: %w", err)
	}
	if priorRev == 0 {
		return fmt.Errorf("prior-day revenue is zero, trend undefined")
	}

	r.RevenueYesterday = yesterdayRev
	r.RevenuePrior = priorRev
	r.DropPct = (priorRev - yesterdayRev) / priorRev * 100.0
	return nil
}

func (r *Report) setFreshness(res *catalog.Result) {
	for _, row := range res.Rows {
		if len(row) < 2 {
			continue
		}
		r.Freshness = append(r.Freshness, FreshnessRow{
			Table:           fmt.Sprint(row[0]),
			LatestIngestion: formatCell(row[1]),
		})
	}
}

func (r *Report) setTopSKUs(res *catalog.Result) {
	if len(res.Rows) == 0 {
		r.SKU.Outcome = StepOutcome{Status: StepEmpty}
		return
	}
	r.SKU.Outcome = StepOutcome{Status: StepOK}
	for i, row := range res.Rows {
		if i == maxTopSKUs {
			break
		}
		if len(row) < 3 {
			continue
		}
		rev, err := toFloat64(row[2])
		if err != nil {
			continue
		}
		r.SKU.TopSKUs = append(r.SKU.TopSKUs, SKURow{
			SKU:     fmt.Sprint(row[1]),
			Revenue: rev,
		})
	}
}

// Render produces the operator-facing text report.
func (r *Report) Render() string {
	var b strings.Builder

	b.WriteString("================= LAKEGATE REPORT =================\n")
	fmt.Fprintf(&b, "Run ID:   %s\n", r.RunID)
	fmt.Fprintf(&b, "Role:     %s\n", r.Role)
	fmt.Fprintf(&b, "Question: %s\n\n", r.Question)

	b.WriteString("1) Revenue trend:\n")
	fmt.Fprintf(&b, "   Yesterday (%s): $%.2f\n", r.YesterdayDate, r.RevenueYesterday)
	fmt.Fprintf(&b, "   Day before:        $%.2f\n", r.RevenuePrior)
	fmt.Fprintf(&b, "   Drop:              %.1f%%\n\n", r.DropPct)

	b.WriteString("2) Data freshness (latest ingestion times):\n")
	for _, row := range r.Freshness {
		fmt.Fprintf(&b, "   - %s -> %s\n", row.Table, row.LatestIngestion)
	}
	b.WriteString("\n")

	b.WriteString("3) SKU investigation:\n")
	switch r.SKU.Outcome.Status {
	case StepDenied:
		b.WriteString("   Not allowed for your role.\n\n")
	case StepFailed:
		b.WriteString("   Unavailable (tool failed).\n\n")
	case StepEmpty:
		b.WriteString("   No SKU revenue recorded yesterday.\n\n")
	default:
		if len(r.SKU.MissingSKUs) > 0 {
			fmt.Fprintf(&b, "   Missing SKUs yesterday: %s\n", strings.Join(r.SKU.MissingSKUs, ", "))
		} else {
			b.WriteString("   Missing SKUs yesterday: none detected.\n")
		}
		b.WriteString("\n   Top SKUs yesterday (by revenue):\n")
		for _, row := range r.SKU.TopSKUs {
			fmt.Fprintf(&b, "   - %s: $%.2f\n", row.SKU, row.Revenue)
		}
		b.WriteString("\n")
	}

	b.WriteString("4) Notes from documentation:\n")
	switch r.Notes.Outcome.Status {
	case StepDenied:
		b.WriteString("   Not allowed for your role.\n\n")
	case StepFailed:
		b.WriteString("   No notes available (retrieval degraded).\n\n")
	case StepEmpty:
		b.WriteString("   No notes retrieved.\n\n")
	default:
		for _, note := range r.Notes.Records {
			text := strings.TrimSpace(strings.ReplaceAll(note.Text, "\n", " "))
			if len(text) > maxNoteChars {
				text = text[:maxNoteChars] + "..."
			}
			fmt.Fprintf(&b, "   - Source: %s (chunk %d, score %.3f)\n", note.DocName, note.ChunkID, note.Score)
			fmt.Fprintf(&b, "     %s\n", text)
		}
		b.WriteString("\n")
	}

	b.WriteString("Sources used (tool calls):\n")
	for _, s := range r.SourcesUsed {
		fmt.Fprintf(&b, " - %s\n", s)
	}
	b.WriteString("===================================================\n")
	return b.String()
}

// formatCell renders a scanned SQL cell for display.
func formatCell(v any) string {
	if ts, ok := v.(time.Time); ok {
		return ts.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprint(v)
}
