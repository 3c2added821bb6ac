package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprEval(t *testing.T) {
	vars := map[string]float64{"span": 6, "water_depth": 4.5, "pipe.d": 0.3}

	tests := []struct {
		src  string
		want float64
	}{
		{"42", 42},
		{"1.5e2", 150},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 4 - 3", 3},
		{"12 / 4 / 3", 1},
		{"2 ^ 3 ^ 2", 512},
		{"-2 ^ 2", -4},
		{"--3", 3},
		{"${span} / 250 * 1000", 24},
		{"water_depth / 15", 0.3},
		{"${ pipe.d } * 2", 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			x, err := ParseExpr(tt.src)
			require.NoError(t, err)
			got, err := x.Eval(vars)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestExprVariables(t *testing.T) {
	x, err := ParseExpr("${b} + a * ${b} - 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, x.Variables())
	assert.Equal(t, "${b} + a * ${b} - 1", x.String())
}

func TestExprParseErrors(t *testing.T) {
	tests := []string{
		"",
		"1 +",
		"(1 + 2",
		"1 + 2)",
		"2 ** 3",
		"max(1, 2)",
		"os.Exit(1)",
		"1; 2",
		"$span",
		"${span",
		"${1x}",
		"a == b",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := ParseExpr(src)
			assert.Error(t, err)
		})
	}
}

func TestExprEvalErrors(t *testing.T) {
	x, err := ParseExpr("${missing} * 2")
	require.NoError(t, err)
	_, err = x.Eval(map[string]float64{})
	assert.ErrorIs(t, err, ErrUndefinedVariable)

	x, err = ParseExpr("1 / (a - a)")
	require.NoError(t, err)
	_, err = x.Eval(map[string]float64{"a": 3})
	assert.Error(t, err)

	x, err = ParseExpr("10 ^ 400")
	require.NoError(t, err)
	_, err = x.Eval(nil)
	assert.Error(t, err, "non-finite results are rejected")
}
