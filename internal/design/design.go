// Package design holds the design routines the pipeline can run. Each
// routine drives a calc.Calculation; the formulas themselves are not
// verified by the pipeline, only recorded and checked against rules.
package design

import (
	"fmt"
	"sort"

	"github.com/DukeRupert/designaudit/internal/calc"
	"github.com/DukeRupert/designaudit/internal/domain"
)

// Designer is a named design routine bound to a rule category.
type Designer struct {
	// Type is the calculation type recorded in the log.
	Type        string
	Category    string
	Description string
	// Required lists the numeric inputs Run needs.
	Required []string
	Run      func(c *calc.Calculation, in domain.Params) error
}

// Registry looks designers up by calculation type.
type Registry struct {
	designers map[string]Designer
}

// NewRegistry creates a registry holding the given designers.
func NewRegistry(designers ...Designer) *Registry {
	r := &Registry{designers: make(map[string]Designer, len(designers))}
	for _, d := range designers {
		r.designers[d.Type] = d
	}
	return r
}

// DefaultRegistry holds every built-in designer.
func DefaultRegistry() *Registry {
	return NewRegistry(RectangularTank())
}

// Get returns the designer for a calculation type.
func (r *Registry) Get(calculationType string) (Designer, bool) {
	d, ok := r.designers[calculationType]
	return d, ok
}

// Types lists the registered calculation types.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.designers))
	for t := range r.designers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ValidateInputs checks that every required input is present and numeric.
func (d Designer) ValidateInputs(in domain.Params) error {
	const op = "design.validate_inputs"

	for _, name := range d.Required {
		v, ok := in[name]
		if !ok {
			return domain.Invalid(op, fmt.Sprintf("input %q is required for %s", name, d.Type))
		}
		if _, ok := v.AsNumber(); !ok {
			return domain.Invalid(op, fmt.Sprintf("input %q must be a number", name))
		}
	}
	return nil
}
