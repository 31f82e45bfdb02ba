package validate

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// RenderMarkdown renders a validation report as a Markdown document.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Validation: %s %s %s\n\n", r.Symbol, r.Timeframe.Token, r.Config))
	sb.WriteString(fmt.Sprintf("Range: %s .. %s\n\n", formatInstant(r.StartMs), formatInstant(r.EndMs)))
	sb.WriteString(fmt.Sprintf("Tolerance: %g\n\n", r.Tolerance))

	sb.WriteString("| Checked | Matches | Mismatches | Unexpected present | Unexpected absent | Gaps excluded |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d | %d |\n\n",
		r.Checked, r.Matches, r.Mismatches, r.UnexpectedPresent, r.UnexpectedAbsent, r.GapsExcluded))

	if r.Clean() {
		sb.WriteString("Result: CLEAN\n")
		return sb.String()
	}

	sb.WriteString("## Findings\n\n")
	sb.WriteString("| Instant | Column | Class | Stored | Recomputed |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, f := range r.Findings {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			formatInstant(f.InstantMs), f.Column, f.Class,
			formatValue(f.Stored), formatValue(f.Recomputed)))
	}

	return sb.String()
}

// RenderCSV renders the findings as CSV for downstream tooling.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("instant_ms,column,class,stored,recomputed\n")
	for _, f := range r.Findings {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s\n",
			f.InstantMs, f.Column, f.Class, formatValue(f.Stored), formatValue(f.Recomputed)))
	}

	return sb.String()
}

// RenderGapsMarkdown renders a gap report as a Markdown document.
func RenderGapsMarkdown(r *GapReport) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Gaps: %s %s\n\n", r.Symbol, r.Timeframe.Token))
	sb.WriteString(fmt.Sprintf("Range: %s .. %s\n\n", formatInstant(r.StartMs), formatInstant(r.EndMs)))
	sb.WriteString(fmt.Sprintf("Expected %d, present %d, missing %d\n\n",
		r.Expected, r.Present, r.Expected-r.Present))

	if r.Complete() {
		sb.WriteString("Result: COMPLETE\n")
		return sb.String()
	}

	sb.WriteString("| From | To | Missing |\n")
	sb.WriteString("|---|---|---|\n")
	for _, g := range r.Gaps {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d |\n",
			formatInstant(g.StartMs), formatInstant(g.EndMs), g.Missing))
	}

	return sb.String()
}

func formatInstant(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NULL"
	}
	return fmt.Sprintf("%.8f", v)
}
