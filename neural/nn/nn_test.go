package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golangast/sentclass/neural/tensor"
)

func TestLinearForwardBackward(t *testing.T) {
	l := NewLinear(2, 2)
	copy(l.Weight.Data, []float64{1, 2, 3, 4})
	copy(l.Bias.Data, []float64{0.5, -0.5})

	x := tensor.New([]int{1, 2}, []float64{1, 1}, false)
	out, err := l.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{4.5, 5.5}, out.Data)

	grad := tensor.New([]int{1, 2}, []float64{1, 1}, false)
	gradIn, err := l.Backward(grad)
	require.NoError(t, err)

	// dX = dY @ W^T
	assert.Equal(t, []float64{3, 7}, gradIn.Data)
	// dW = X^T @ dY, dB = column sums of dY
	assert.Equal(t, []float64{1, 1, 1, 1}, l.Weight.Grad.Data)
	assert.Equal(t, []float64{1, 1}, l.Bias.Grad.Data)
}

func TestLinearBackwardSkipsFrozenWeight(t *testing.T) {
	l := NewLinear(2, 2)
	l.Weight.RequiresGrad = false
	l.Bias.RequiresGrad = false

	x := tensor.New([]int{1, 2}, []float64{1, 1}, false)
	_, err := l.Forward(x)
	require.NoError(t, err)
	_, err = l.Backward(tensor.New([]int{1, 2}, []float64{1, 1}, false))
	require.NoError(t, err)

	assert.Nil(t, l.Weight.Grad)
	assert.Nil(t, l.Bias.Grad)
}

func TestLayerNormForward(t *testing.T) {
	ln := NewLayerNorm(4)
	x := tensor.New([]int{1, 4}, []float64{1, 2, 3, 4}, false)
	out, err := ln.Forward(x)
	require.NoError(t, err)

	mean, variance := 0.0, 0.0
	for _, v := range out.Data {
		mean += v
	}
	mean /= 4
	for _, v := range out.Data {
		variance += (v - mean) * (v - mean)
	}
	variance /= 4
	assert.InDelta(t, 0, mean, 1e-9)
	assert.InDelta(t, 1, variance, 1e-3)
}

func TestLayerNormBackwardRowGradSumsToZero(t *testing.T) {
	ln := NewLayerNorm(4)
	x := tensor.New([]int{2, 4}, []float64{1, 2, 3, 4, -2, 0, 5, 1}, false)
	_, err := ln.Forward(x)
	require.NoError(t, err)

	dy := tensor.New([]int{2, 4}, []float64{0.3, -1, 2, 0.1, 1, 1, -0.5, 0.25}, false)
	dx, err := ln.Backward(dy)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		sum := 0.0
		for _, v := range dx.Row(i) {
			sum += v
		}
		assert.InDelta(t, 0, sum, 1e-9, "row %d", i)
	}
}

func TestGroupForDecayPartition(t *testing.T) {
	params := []NamedParameter{
		{Name: "encoder.layers.0.attention.query.weight", Param: tensor.New([]int{1}, nil, true)},
		{Name: "encoder.layers.0.attention.query.bias", Param: tensor.New([]int{1}, nil, true)},
		{Name: "encoder.layers.0.attention.output.LayerNorm.weight", Param: tensor.New([]int{1}, nil, true)},
		{Name: "encoder.layers.0.attention.output.LayerNorm.bias", Param: tensor.New([]int{1}, nil, true)},
		{Name: "classifier.weight", Param: tensor.New([]int{1}, nil, true)},
	}
	groups := GroupForDecay(params, 0.01)
	require.Len(t, groups, 2)

	assert.Equal(t, 0.01, groups[0].WeightDecay)
	assert.Equal(t, 0.0, groups[1].WeightDecay)

	var decayed, undecayed []string
	for _, p := range groups[0].Params {
		decayed = append(decayed, p.Name)
	}
	for _, p := range groups[1].Params {
		undecayed = append(undecayed, p.Name)
	}
	assert.ElementsMatch(t, []string{
		"encoder.layers.0.attention.query.weight",
		"classifier.weight",
	}, decayed)
	assert.ElementsMatch(t, []string{
		"encoder.layers.0.attention.query.bias",
		"encoder.layers.0.attention.output.LayerNorm.weight",
		"encoder.layers.0.attention.output.LayerNorm.bias",
	}, undecayed)
}

func TestAdamWStep(t *testing.T) {
	p := tensor.New([]int{1}, []float64{1}, true)
	p.AccumulateGrad([]float64{1})

	opt := NewAdamW([]ParamGroup{{Params: []NamedParameter{{Name: "w", Param: p}}}}, 0.1, 1e-8)
	opt.Step()

	// First step with bias correction moves by almost exactly lr.
	assert.InDelta(t, 0.9, p.Data[0], 1e-6)
}

func TestAdamWDecoupledDecay(t *testing.T) {
	p := tensor.New([]int{1}, []float64{1}, true)
	p.AccumulateGrad([]float64{1})

	opt := NewAdamW([]ParamGroup{{
		Params:      []NamedParameter{{Name: "w", Param: p}},
		WeightDecay: 0.5,
	}}, 0.1, 1e-8)
	opt.Step()

	// update = lr * (mHat/(sqrt(vHat)+eps) + wd*p) = 0.1 * (1 + 0.5)
	assert.InDelta(t, 0.85, p.Data[0], 1e-6)
}

func TestAdamWSkipsFrozen(t *testing.T) {
	p := tensor.New([]int{1}, []float64{1}, false)
	opt := NewAdamW([]ParamGroup{{Params: []NamedParameter{{Name: "w", Param: p}}}}, 0.1, 1e-8)
	opt.Step()
	assert.Equal(t, 1.0, p.Data[0])
}

func TestAdamWZeroGrad(t *testing.T) {
	p := tensor.New([]int{2}, []float64{1, 2}, true)
	p.AccumulateGrad([]float64{3, 4})
	opt := NewAdamW([]ParamGroup{{Params: []NamedParameter{{Name: "w", Param: p}}}}, 0.1, 1e-8)
	opt.ZeroGrad()
	assert.Equal(t, []float64{0, 0}, p.Grad.Data)
}

func TestWarmupCosineShape(t *testing.T) {
	p := tensor.New([]int{1}, []float64{1}, true)
	opt := NewAdamW([]ParamGroup{{Params: []NamedParameter{{Name: "w", Param: p}}}}, 1.0, 1e-8)
	s := NewWarmupCosineSchedule(opt, 5, 100)

	// linear ramp during warmup
	assert.InDelta(t, 0.2, s.LRAt(1), 1e-9)
	assert.InDelta(t, 0.8, s.LRAt(4), 1e-9)
	// peak right at the end of warmup
	assert.InDelta(t, 1.0, s.LRAt(5), 1e-9)
	// cosine midpoint and floor
	assert.InDelta(t, 0.5, s.LRAt(5+(100-5)/2), 0.02)
	assert.InDelta(t, 0, s.LRAt(100), 1e-9)
	assert.InDelta(t, 0, s.LRAt(150), 1e-9)

	// stepping drives the optimizer's live rate
	s.Step()
	assert.InDelta(t, 0.2, opt.LR(), 1e-9)
}

func TestScheduleStartsOnRamp(t *testing.T) {
	p := tensor.New([]int{1}, []float64{1}, true)
	p.AccumulateGrad([]float64{1})
	opt := NewAdamW([]ParamGroup{{Params: []NamedParameter{{Name: "w", Param: p}}}}, 1.0, 1e-8)

	NewWarmupCosineSchedule(opt, 5, 100)
	assert.InDelta(t, 0, opt.LR(), 1e-12)

	// an update before the first schedule step must not move the
	// parameter at the base rate
	opt.Step()
	assert.InDelta(t, 1.0, p.Data[0], 1e-12)
}

func TestScheduleWithoutWarmupStartsAtPeak(t *testing.T) {
	p := tensor.New([]int{1}, []float64{1}, true)
	opt := NewAdamW([]ParamGroup{{Params: []NamedParameter{{Name: "w", Param: p}}}}, 0.5, 1e-8)

	NewWarmupCosineSchedule(opt, 0, 100)
	assert.InDelta(t, 0.5, opt.LR(), 1e-12)
}

func TestGELU(t *testing.T) {
	assert.Equal(t, 0.0, GELU(0))
	assert.InDelta(t, 5.0, GELU(5), 1e-4)
	assert.InDelta(t, 0.0, GELU(-5), 1e-4)

	// derivative matches a central difference
	h := 1e-6
	for _, x := range []float64{-2, -0.5, 0, 0.7, 3} {
		numeric := (GELU(x+h) - GELU(x-h)) / (2 * h)
		assert.InDelta(t, numeric, GELUDerivative(x), 1e-5, "x=%v", x)
	}
}

func TestTanhDerivative(t *testing.T) {
	out := math.Tanh(0.3)
	assert.InDelta(t, 1-out*out, TanhDerivative(out), 1e-12)
}
