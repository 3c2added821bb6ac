package version

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/DukeRupert/designaudit/internal/domain"
)

// outputPrefix names output values in field changes.
const outputPrefix = "outputs."

// Diff compares the input snapshot and output values of two versions.
func Diff(from, to *domain.DesignVersion) domain.VersionDiff {
	changes := diffParams("", from.InputSnapshot, to.InputSnapshot)
	changes = append(changes, diffParams(outputPrefix, from.OutputMetadata.Extra, to.OutputMetadata.Extra)...)
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })

	d := domain.VersionDiff{
		FromVersionID: from.ID,
		ToVersionID:   to.ID,
		FieldChanges:  changes,
	}
	for _, c := range changes {
		switch c.Kind {
		case domain.ChangeAdded:
			d.ElementsAdded++
		case domain.ChangeRemoved:
			d.ElementsRemoved++
		case domain.ChangeModified:
			d.ElementsModified++
		}
	}
	return d
}

func diffParams(prefix string, from, to domain.Params) []domain.FieldChange {
	a := flatten(prefix, from)
	b := flatten(prefix, to)

	changes := []domain.FieldChange{}
	for field, old := range a {
		old := old
		nv, ok := b[field]
		if !ok {
			changes = append(changes, domain.FieldChange{Field: field, Kind: domain.ChangeRemoved, OldValue: &old})
			continue
		}
		if old.Equal(nv) {
			continue
		}
		c := domain.FieldChange{Field: field, Kind: domain.ChangeModified, OldValue: &old, NewValue: &nv}
		c.PercentChange, c.Discontinuity = percentChange(old, nv)
		changes = append(changes, c)
	}
	for field, nv := range b {
		if _, ok := a[field]; ok {
			continue
		}
		nv := nv
		changes = append(changes, domain.FieldChange{Field: field, Kind: domain.ChangeAdded, NewValue: &nv})
	}
	return changes
}

// flatten expands record values into dotted leaf fields.
func flatten(prefix string, p domain.Params) map[string]domain.Value {
	out := make(map[string]domain.Value, len(p))
	for k, v := range p {
		flattenValue(prefix+k, v, out)
	}
	return out
}

func flattenValue(path string, v domain.Value, out map[string]domain.Value) {
	fields := v.Fields()
	if v.Kind() != domain.KindRecord || len(fields) == 0 {
		out[path] = v
		return
	}
	for _, f := range fields {
		fv, _ := v.Field(f)
		flattenValue(path+"."+f, fv, out)
	}
}

// percentChange returns (to-from)/from*100 for two numbers with from != 0.
// A numeric change away from zero is a discontinuity. Non-numeric changes
// carry neither.
func percentChange(from, to domain.Value) (*float64, bool) {
	a, okA := from.AsNumber()
	b, okB := to.AsNumber()
	if !okA || !okB {
		return nil, false
	}
	if a == 0 {
		return nil, true
	}
	fa := decimal.NewFromFloat(a)
	pct := decimal.NewFromFloat(b).Sub(fa).
		DivRound(fa, 12).
		Mul(decimal.NewFromInt(100)).
		Round(6)
	f, _ := pct.Float64()
	return &f, false
}

// DiffCalculations compares two calculation logs step by step, keyed by
// step name. Only the first step of a given name is compared.
func DiffCalculations(from, to *domain.CalculationLog) domain.CalculationDiff {
	d := domain.CalculationDiff{
		StepsAdded:     []string{},
		StepsRemoved:   []string{},
		ResultsChanged: []domain.StepChange{},
	}
	a := stepResults(from)
	b := stepResults(to)

	for name, old := range a {
		old := old
		nv, ok := b[name]
		if !ok {
			d.StepsRemoved = append(d.StepsRemoved, name)
			continue
		}
		if !old.Equal(nv) {
			d.ResultsChanged = append(d.ResultsChanged, domain.StepChange{
				Name: name, Kind: domain.ChangeModified, OldResult: &old, NewResult: &nv,
			})
		}
	}
	for name := range b {
		if _, ok := a[name]; !ok {
			d.StepsAdded = append(d.StepsAdded, name)
		}
	}
	sort.Strings(d.StepsAdded)
	sort.Strings(d.StepsRemoved)
	sort.Slice(d.ResultsChanged, func(i, j int) bool { return d.ResultsChanged[i].Name < d.ResultsChanged[j].Name })
	return d
}

func stepResults(log *domain.CalculationLog) map[string]domain.Value {
	out := make(map[string]domain.Value)
	if log == nil {
		return out
	}
	for _, s := range log.Steps {
		if _, seen := out[s.Name]; !seen {
			out[s.Name] = s.Result
		}
	}
	return out
}
