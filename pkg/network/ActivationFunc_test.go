package network

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func ones(n int) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, 1)
	}
	return v
}

// TestActivationDerivativeMatchesNumeric checks derivative(apply(x), 1) against a central difference.
func TestActivationDerivativeMatchesNumeric(t *testing.T) {
	points := []float64{-3.2, -1.1, -0.4, 0.3, 0.9, 2.5}
	kinds := []ActivationKind{
		ActivationSigmoid,
		ActivationTanh,
		ActivationReLU,
		ActivationLeakyReLU,
		ActivationParametricReLU,
	}
	settings := &fd.Settings{Formula: fd.Central, Step: 1e-6}

	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			act, err := NewActivationFunction(kind)
			require.NoError(t, err)
			scalar := func(x float64) float64 {
				return act.Apply(mat.NewVecDense(1, []float64{x})).AtVec(0)
			}
			for _, x := range points {
				y := act.Apply(mat.NewVecDense(1, []float64{x}))
				analytic := act.Derivative(y, ones(1)).AtVec(0)
				numeric := fd.Derivative(scalar, x, settings)
				assert.InDelta(t, numeric, analytic, 1e-4, "x=%v", x)
			}
		})
	}
}

// TestSoftmaxDerivativeMatchesNumeric compares the all-ones product with d(sum softmax)/dx_i.
func TestSoftmaxDerivativeMatchesNumeric(t *testing.T) {
	act, err := NewActivationFunction(ActivationSoftmax)
	require.NoError(t, err)
	x := []float64{0.5, -1.2, 2.0, 0.1}
	y := act.Apply(mat.NewVecDense(len(x), x))
	analytic := act.Derivative(y, ones(len(x)))

	for i := range x {
		partial := func(v float64) float64 {
			shifted := append([]float64(nil), x...)
			shifted[i] = v
			return mat.Sum(act.Apply(mat.NewVecDense(len(shifted), shifted)))
		}
		numeric := fd.Derivative(partial, x[i], &fd.Settings{Formula: fd.Central})
		assert.InDelta(t, numeric, analytic.AtVec(i), 1e-4)
	}
}

func TestSoftmaxIsProbabilityVector(t *testing.T) {
	act, err := NewActivationFunction(ActivationSoftmax)
	require.NoError(t, err)

	inputs := [][]float64{
		{0},
		{1, 2, 3},
		{-1000, 0, 1000},
		{800, 801, 799.5},
		{-750, -751},
	}
	for _, in := range inputs {
		out := vecData(act.Apply(mat.NewVecDense(len(in), in)))
		for _, v := range out {
			assert.False(t, math.IsNaN(v), "input %v", in)
			assert.GreaterOrEqual(t, v, 0.0)
		}
		assert.InDelta(t, 1.0, floats.Sum(out), 1e-12, "input %v", in)
	}
}

func TestActivationApplyValues(t *testing.T) {
	x := mat.NewVecDense(3, []float64{-2, 0, 3})
	tests := []struct {
		kind ActivationKind
		want []float64
	}{
		{ActivationReLU, []float64{0, 0, 3}},
		{ActivationLeakyReLU, []float64{-0.04, 0, 3}},
		{ActivationParametricReLU, []float64{-0.4, 0, 3}},
		{ActivationTanh, []float64{math.Tanh(-2), 0, math.Tanh(3)}},
		{ActivationSigmoid, []float64{1 / (1 + math.Exp(2)), 0.5, 1 / (1 + math.Exp(-3))}},
	}
	for _, tt := range tests {
		act, err := NewActivationFunction(tt.kind)
		require.NoError(t, err)
		got := vecData(act.Apply(x))
		assert.InDeltaSlice(t, tt.want, got, 1e-12, tt.kind.String())
	}
	assert.Equal(t, []float64{-2, 0, 3}, vecData(x), "apply must not mutate its input")
}

func TestRectifierDerivativeUsesActivatedOutput(t *testing.T) {
	act, err := NewActivationFunction(ActivationLeakyReLU)
	require.NoError(t, err)
	y := mat.NewVecDense(3, []float64{-0.04, 0, 3})
	g := mat.NewVecDense(3, []float64{2, 2, 2})
	assert.InDeltaSlice(t, []float64{0.04, 0.04, 2}, vecData(act.Derivative(y, g)), 1e-12)
}

func TestNewActivationFunctionRejectsUnknownTags(t *testing.T) {
	for _, kind := range []ActivationKind{ActivationInvalid, ActivationKind(7), ActivationKind(-1)} {
		_, err := NewActivationFunction(kind)
		assert.ErrorIs(t, err, ErrUnknownActivation)
	}
}

func TestParseActivationKind(t *testing.T) {
	for kind, name := range activationNames {
		got, err := ParseActivationKind(" " + name + " ")
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}
	_, err := ParseActivationKind("swish")
	assert.ErrorIs(t, err, ErrUnknownActivation)
}
