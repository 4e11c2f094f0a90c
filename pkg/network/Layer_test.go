package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewLayerSeededIsReproducible(t *testing.T) {
	a, err := NewLayer(NewLayerConfig(2, 5, NewSeededSource(42)))
	require.NoError(t, err)
	b, err := NewLayer(NewLayerConfig(2, 5, NewSeededSource(42)))
	require.NoError(t, err)

	assert.Equal(t, 2, a.Size)
	assert.Equal(t, 5, a.NextSize)
	r, c := a.Weights.Dims()
	assert.Equal(t, []int{2, 5}, []int{r, c})
	assert.True(t, mat.Equal(a.Biases, b.Biases))
	assert.True(t, mat.Equal(a.Weights, b.Weights))
	assert.Equal(t, ActivationSigmoid, a.ActivationKind())
	assert.Equal(t, LossMeanSquaredError, a.LossKind())

	c2, err := NewLayer(NewLayerConfig(2, 5, NewSeededSource(43)))
	require.NoError(t, err)
	assert.False(t, mat.Equal(a.Weights, c2.Weights))
}

func TestNewLayerTerminalHasNoWeights(t *testing.T) {
	l, err := NewLayer(NewLayerConfig(3, 0, NewSeededSource(1)))
	require.NoError(t, err)
	assert.Nil(t, l.Weights)
	assert.Equal(t, 3, l.Values.Len())
	assert.Equal(t, 3, l.Deltas.Len())
}

func TestNewLayerRejectsBadConfig(t *testing.T) {
	_, err := NewLayer(NewLayerConfig(0, 2, NewSeededSource(1)))
	assert.ErrorIs(t, err, ErrInvalidTopology)

	cfg := NewLayerConfig(2, 2, NewSeededSource(1))
	cfg.Activation = ActivationInvalid
	_, err = NewLayer(cfg)
	assert.ErrorIs(t, err, ErrUnknownActivation)

	cfg = NewLayerConfig(2, 2, NewSeededSource(1))
	cfg.Loss = LossKind(9)
	_, err = NewLayer(cfg)
	assert.ErrorIs(t, err, ErrUnknownLoss)
}

func TestLayerForward(t *testing.T) {
	prev, err := NewLayerWithParams(2, 2, []float64{0, 0}, []float64{1, 2, 3, 4}, ActivationSigmoid, LossMeanSquaredError)
	require.NoError(t, err)
	require.NoError(t, prev.SetValues([]float64{1, 1}))

	l, err := NewLayerWithParams(2, 0, []float64{0.5, -1}, nil, ActivationReLU, LossMeanSquaredError)
	require.NoError(t, err)
	require.NoError(t, l.Forward(prev))

	// column sums of the weights plus biases
	assert.InDeltaSlice(t, []float64{4.5, 5}, l.Output(), 1e-12)
}

func TestLayerBackwardUpdatesBiasesAndWeights(t *testing.T) {
	l, err := NewLayerWithParams(2, 1, []float64{0, 0}, []float64{0.5, -0.5}, ActivationReLU, LossMeanSquaredError)
	require.NoError(t, err)
	require.NoError(t, l.SetValues([]float64{1, 2}))

	next, err := NewLayerWithParams(1, 0, []float64{0}, nil, ActivationReLU, LossMeanSquaredError)
	require.NoError(t, err)
	next.Deltas.SetVec(0, 2)

	require.NoError(t, l.Backward(next, 0.1))

	assert.InDeltaSlice(t, []float64{1, -1}, vecData(l.Deltas), 1e-12)
	assert.InDeltaSlice(t, []float64{-0.1, 0.1}, vecData(l.Biases), 1e-12)
	assert.InDelta(t, 0.3, l.Weights.At(0, 0), 1e-12)
	assert.InDelta(t, -0.9, l.Weights.At(1, 0), 1e-12)
}

func TestLayerBackwardTargetOnlyTouchesBiases(t *testing.T) {
	l, err := NewLayerWithParams(2, 0, []float64{0.1, 0.2}, nil, ActivationSigmoid, LossMeanSquaredError)
	require.NoError(t, err)
	require.NoError(t, l.SetValues([]float64{0.5, 0.5}))

	require.NoError(t, l.BackwardTarget([]float64{1, 0}, 1))

	// sigmoid'(0.5) = 0.25, mse gradient = (-0.5, 0.5)
	assert.InDeltaSlice(t, []float64{-0.125, 0.125}, vecData(l.Deltas), 1e-12)
	assert.InDeltaSlice(t, []float64{0.225, 0.075}, vecData(l.Biases), 1e-12)
}

func TestLayerZeroLearningRateKeepsParameters(t *testing.T) {
	l, err := NewLayerWithParams(2, 1, []float64{0.3, 0.4}, []float64{0.5, -0.5}, ActivationTanh, LossMeanSquaredError)
	require.NoError(t, err)
	require.NoError(t, l.SetValues([]float64{0.2, -0.1}))
	next, err := NewLayerWithParams(1, 0, []float64{0}, nil, ActivationTanh, LossMeanSquaredError)
	require.NoError(t, err)
	next.Deltas.SetVec(0, 5)

	require.NoError(t, l.Backward(next, 0))
	assert.Equal(t, []float64{0.3, 0.4}, vecData(l.Biases))
	assert.Equal(t, 0.5, l.Weights.At(0, 0))
	assert.NotZero(t, l.Deltas.AtVec(0))
}

func TestLayerDimensionMismatch(t *testing.T) {
	l, err := NewLayerWithParams(2, 3, []float64{0, 0}, make([]float64, 6), ActivationSigmoid, LossMeanSquaredError)
	require.NoError(t, err)

	var dimErr *DimensionError
	err = l.SetValues([]float64{1, 2, 3})
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 2, dimErr.Want)
	assert.Equal(t, 3, dimErr.Got)

	assert.ErrorIs(t, l.BackwardTarget([]float64{1}, 0.1), ErrDimensionMismatch)

	other, err := NewLayerWithParams(2, 0, []float64{0, 0}, nil, ActivationSigmoid, LossMeanSquaredError)
	require.NoError(t, err)
	assert.ErrorIs(t, l.Backward(other, 0.1), ErrDimensionMismatch)
	assert.ErrorIs(t, other.Forward(other), ErrDimensionMismatch)

	_, err = NewLayerWithParams(2, 3, []float64{0}, make([]float64, 6), ActivationSigmoid, LossMeanSquaredError)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
