package safety

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DukeRupert/designaudit/internal/domain"
)

// titleCase builds a new caser per call; casers are not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// GenerateOverrideReport renders every override record of the log for audit:
// parameter, severity, value, justification, engineer, approval level,
// reference and timestamp, followed by signature lines.
func (l *Layer) GenerateOverrideReport(log *domain.CalculationLog) string {
	mu := l.lockFor(log.ID)
	mu.Lock()
	records := log.OverrideRecords()
	res := check(log)
	values := make(map[string]domain.Violation, len(log.Violations))
	for _, v := range log.Violations {
		values[v.ID.String()] = v
	}
	mu.Unlock()

	var b strings.Builder
	fmt.Fprintln(&b, "OVERRIDE AUDIT REPORT")
	fmt.Fprintln(&b, "=====================")
	fmt.Fprintf(&b, "Calculation log:  %s\n", log.ID)
	fmt.Fprintf(&b, "Calculation type: %s\n", log.CalculationType)
	fmt.Fprintf(&b, "Overrides:        %d\n", len(records))
	fmt.Fprintf(&b, "Export allowed:   %t\n", res.CanExport)
	if len(res.BlockReasons) > 0 {
		fmt.Fprintln(&b, "Still blocking:")
		for _, r := range res.BlockReasons {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}

	if len(records) == 0 {
		fmt.Fprintln(&b, "\nNo overrides have been recorded.")
		return b.String()
	}

	for i, r := range records {
		fmt.Fprintf(&b, "\n%d. %s [%s]\n", i+1, r.Parameter, titleCase(r.Severity.String()))
		if v, ok := values[r.ViolationID.String()]; ok {
			fmt.Fprintf(&b, "   Value:          %g\n", v.Value)
			fmt.Fprintf(&b, "   Violation:      %s\n", v.Message)
			if v.Standard != "" {
				fmt.Fprintf(&b, "   Standard:       %s\n", standardLine(v.Standard, v.Clause))
			}
		}
		fmt.Fprintf(&b, "   Justification:  %s\n", r.Reason)
		fmt.Fprintf(&b, "   Engineer:       %s (%s)\n", r.EngineerName, r.EngineerID)
		fmt.Fprintf(&b, "   Approval level: %s\n", titleCase(strings.ReplaceAll(r.ApprovalLevel, "_", " ")))
		if r.ReferenceDoc != "" {
			fmt.Fprintf(&b, "   Reference:      %s\n", r.ReferenceDoc)
		}
		fmt.Fprintf(&b, "   Timestamp:      %s\n", r.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Prepared by: ______________________   Date: __________")
	fmt.Fprintln(&b, "Approved by: ______________________   Date: __________")
	return b.String()
}

func standardLine(standard, clause string) string {
	if clause == "" {
		return standard
	}
	return standard + ", clause " + clause
}
