package design

import (
	"errors"
	"math"

	"github.com/DukeRupert/designaudit/internal/calc"
	"github.com/DukeRupert/designaudit/internal/domain"
)

const tankStandard = "TCVN 7957:2008"

// Default tank geometry used when an input is omitted.
const (
	defaultWaterDepth       = 3.5
	defaultLengthWidthRatio = 4.0
	defaultFreeboard        = 0.5
)

var errNonPositive = errors.New("divisor must be positive")

// RectangularTank sizes a rectangular flow-through tank from a daily flow
// and a retention time.
//
// Inputs: flow_rate (m3/d), retention_time (h), water_depth (m),
// length_width_ratio (-), freeboard (m).
func RectangularTank() Designer {
	return Designer{
		Type:        "rectangular_tank",
		Category:    "tank",
		Description: "Rectangular tank sizing",
		Required:    []string{"flow_rate", "retention_time"},
		Run:         sizeTank,
	}
}

func sizeTank(c *calc.Calculation, in domain.Params) error {
	flow := number(in, "flow_rate", 0)
	retention := number(in, "retention_time", 0)
	depth := number(in, "water_depth", defaultWaterDepth)
	ratio := number(in, "length_width_ratio", defaultLengthWidthRatio)
	freeboard := number(in, "freeboard", defaultFreeboard)

	c.CheckInputs()

	hourly, err := c.Compute(calc.Step{
		Name:           "Hourly flow",
		Description:    "Average hourly design flow",
		Formula:        "Qh = Q / 24",
		FormulaDisplay: "Q_h = \\frac{Q}{24}",
		Unit:           "m3/h",
		Symbol:         "hourly_flow",
		Inputs:         domain.NumberParams(map[string]float64{"Q": flow}),
	}, func() (float64, error) {
		return flow / 24, nil
	})
	if err != nil {
		return err
	}

	volume, err := c.Compute(calc.Step{
		Name:           "Tank volume",
		Description:    "Working volume for the required retention time",
		Formula:        "V = Qh * t",
		FormulaDisplay: "V = Q_h \\cdot t",
		Reference:      tankStandard,
		Unit:           "m3",
		Symbol:         "volume",
		Inputs:         domain.NumberParams(map[string]float64{"Qh": hourly, "t": retention}),
	}, func() (float64, error) {
		return hourly * retention, nil
	})
	if err != nil {
		return err
	}

	area, err := c.Compute(calc.Step{
		Name:        "Surface area",
		Description: "Plan area at the design water depth",
		Formula:     "A = V / H",
		Unit:        "m2",
		Symbol:      "area",
		Inputs:      domain.NumberParams(map[string]float64{"V": volume, "H": depth}),
	}, func() (float64, error) {
		return divide(volume, depth)
	})
	if err != nil {
		return err
	}

	width, err := c.Compute(calc.Step{
		Name:        "Tank width",
		Description: "Width from area and length to width ratio",
		Formula:     "B = sqrt(A / r)",
		Unit:        "m",
		Symbol:      "width",
		Inputs:      domain.NumberParams(map[string]float64{"A": area, "r": ratio}),
	}, func() (float64, error) {
		q, err := divide(area, ratio)
		if err != nil {
			return 0, err
		}
		return math.Sqrt(q), nil
	})
	if err != nil {
		return err
	}

	length, err := c.Compute(calc.Step{
		Name:    "Tank length",
		Formula: "L = r * B",
		Unit:    "m",
		Symbol:  "length",
		Inputs:  domain.NumberParams(map[string]float64{"r": ratio, "B": width}),
	}, func() (float64, error) {
		return ratio * width, nil
	})
	if err != nil {
		return err
	}

	loading, err := c.Compute(calc.Step{
		Name:        "Surface loading",
		Description: "Daily flow per unit plan area",
		Formula:     "q0 = Q / A",
		Reference:   tankStandard,
		Unit:        "m3/m2/d",
		Symbol:      "surface_loading",
		Inputs:      domain.NumberParams(map[string]float64{"Q": flow, "A": area}),
	}, func() (float64, error) {
		return divide(flow, area)
	})
	if err != nil {
		return err
	}
	c.Check("surface_loading", loading)

	velocity, err := c.Compute(calc.Step{
		Name:        "Horizontal velocity",
		Description: "Mean velocity through the tank cross-section",
		Formula:     "v = Q / 86400 / (B * H)",
		Reference:   tankStandard,
		Unit:        "m/s",
		Symbol:      "horizontal_velocity",
		Inputs:      domain.NumberParams(map[string]float64{"Q": flow, "B": width, "H": depth}),
	}, func() (float64, error) {
		return divide(flow/86400, width*depth)
	})
	if err != nil {
		return err
	}
	c.Check("horizontal_velocity", velocity)

	height := depth + freeboard
	c.AddStep(calc.Step{
		Name:    "Total height",
		Formula: "Ht = H + hf",
		Unit:    "m",
		Symbol:  "total_height",
		Inputs:  domain.NumberParams(map[string]float64{"H": depth, "hf": freeboard}),
	}, domain.NumberValue(height))

	c.Set("volume", domain.NumberValue(volume))
	c.Set("length", domain.NumberValue(length))
	c.Set("width", domain.NumberValue(width))
	c.Set("water_depth", domain.NumberValue(depth))
	c.Set("total_height", domain.NumberValue(height))
	c.Set("surface_loading", domain.NumberValue(loading))
	return nil
}

func number(in domain.Params, name string, fallback float64) float64 {
	if v, ok := in[name]; ok {
		if n, ok := v.AsNumber(); ok {
			return n
		}
	}
	return fallback
}

func divide(a, b float64) (float64, error) {
	if b <= 0 {
		return 0, errNonPositive
	}
	return a / b, nil
}
