package calc

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DukeRupert/designaudit/internal/domain"
)

func upper(s string) string {
	return cases.Upper(language.English).String(s)
}

// ReportFormat renders a calculation log as a plain-text transcript: header,
// inputs, the ordered steps, violations, applied standards and final results.
func ReportFormat(log *domain.CalculationLog) string {
	var b strings.Builder

	title := "CALCULATION REPORT: " + upper(strings.ReplaceAll(log.CalculationType, "_", " "))
	fmt.Fprintln(&b, title)
	fmt.Fprintln(&b, strings.Repeat("=", len(title)))
	fmt.Fprintf(&b, "Log ID:       %s\n", log.ID)
	if log.Category != "" {
		category := log.Category
		if log.DesignType != "" {
			category += " (" + log.DesignType + ")"
		}
		fmt.Fprintf(&b, "Category:     %s\n", category)
	}
	if log.Description != "" {
		fmt.Fprintf(&b, "Description:  %s\n", log.Description)
	}
	fmt.Fprintf(&b, "Created at:   %s\n", log.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Duration:     %.2f ms\n", log.CalculationTimeMs)
	status := "COMPLETED"
	if log.Failed {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "Status:       %s\n", status)

	if len(log.Inputs) > 0 {
		section(&b, "INPUT PARAMETERS")
		for _, k := range log.Inputs.Keys() {
			fmt.Fprintf(&b, "  %s = %s\n", k, log.Inputs[k])
		}
	}

	section(&b, "CALCULATION STEPS")
	if len(log.Steps) == 0 {
		fmt.Fprintln(&b, "  (none)")
	}
	for _, s := range log.Steps {
		fmt.Fprintf(&b, "[%s] %s (%s)\n", s.StepID, s.Name, upper(string(s.Status)))
		if s.Description != "" {
			fmt.Fprintf(&b, "  %s\n", s.Description)
		}
		if s.FormulaText != "" {
			fmt.Fprintf(&b, "  Formula:    %s\n", s.FormulaText)
		}
		if len(s.Inputs) > 0 {
			parts := make([]string, 0, len(s.Inputs))
			for _, k := range s.Inputs.Keys() {
				parts = append(parts, k+" = "+s.Inputs[k].String())
			}
			fmt.Fprintf(&b, "  Inputs:     %s\n", strings.Join(parts, ", "))
		}
		fmt.Fprintf(&b, "  Result:     %s\n", s.ResultFormatted)
		if s.Reference != "" {
			fmt.Fprintf(&b, "  Reference:  %s\n", s.Reference)
		}
		for _, w := range s.Warnings {
			fmt.Fprintf(&b, "  ! %s\n", w)
		}
	}

	section(&b, "VIOLATIONS")
	if len(log.Violations) == 0 {
		fmt.Fprintln(&b, "  (none)")
	}
	for _, v := range log.Violations {
		fmt.Fprintf(&b, "  [%s] %s: %s\n", upper(v.Severity.String()), v.Parameter, v.Message)
		if v.Suggestion != "" {
			fmt.Fprintf(&b, "    Suggestion: %s\n", v.Suggestion)
		}
		if ref := standardRef(v.Standard, v.Clause); ref != "" {
			fmt.Fprintf(&b, "    Standard:   %s\n", ref)
		}
		if v.IsOverridden && v.OverrideRecord != nil {
			fmt.Fprintf(&b, "    Overridden by %s (%s): %s\n",
				v.OverrideRecord.EngineerName, v.OverrideRecord.EngineerID, v.OverrideRecord.Reason)
		}
	}

	if len(log.StandardsApplied) > 0 {
		section(&b, "STANDARDS APPLIED")
		for _, s := range log.StandardsApplied {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}

	if len(log.FinalResults) > 0 {
		section(&b, "FINAL RESULTS")
		for _, k := range log.FinalResults.Keys() {
			fmt.Fprintf(&b, "  %s = %s\n", k, log.FinalResults[k])
		}
	}
	return b.String()
}

func section(b *strings.Builder, name string) {
	fmt.Fprintf(b, "\n%s\n%s\n", name, strings.Repeat("-", len(name)))
}

func standardRef(standard, clause string) string {
	if clause == "" {
		return standard
	}
	return standard + ", clause " + clause
}
