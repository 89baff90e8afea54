package nn

import (
	"fmt"
	"math"

	"github.com/golangast/sentclass/neural/tensor"
)

// LayerNorm normalizes each row of a 2D input and applies a learnable
// scale (Gamma) and shift (Beta). Gamma is surfaced to the optimizer as
// "LayerNorm.weight" so it lands in the undecayed parameter group.
type LayerNorm struct {
	Dim   int
	Gamma *tensor.Tensor
	Beta  *tensor.Tensor
	Eps   float64

	input      *tensor.Tensor
	normalized []float64
	invStd     []float64
}

// NewLayerNorm creates a LayerNorm with gamma ones and beta zeros.
func NewLayerNorm(dim int) *LayerNorm {
	gammaData := make([]float64, dim)
	for i := range gammaData {
		gammaData[i] = 1.0
	}
	return &LayerNorm{
		Dim:   dim,
		Gamma: tensor.New([]int{dim}, gammaData, true),
		Beta:  tensor.New([]int{dim}, nil, true),
		Eps:   1e-5,
	}
}

// Forward normalizes each row to zero mean and unit variance, then scales
// and shifts.
func (ln *LayerNorm) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 || input.Shape[1] != ln.Dim {
		return nil, fmt.Errorf("layernorm expects [rows %d], got %v", ln.Dim, input.Shape)
	}
	rows := input.Shape[0]
	ln.input = input
	ln.normalized = make([]float64, len(input.Data))
	ln.invStd = make([]float64, rows)

	output := tensor.New(input.Shape, nil, false)
	for i := 0; i < rows; i++ {
		row := input.Data[i*ln.Dim : (i+1)*ln.Dim]
		mean := 0.0
		for _, v := range row {
			mean += v
		}
		mean /= float64(ln.Dim)

		variance := 0.0
		for _, v := range row {
			d := v - mean
			variance += d * d
		}
		variance /= float64(ln.Dim)
		ln.invStd[i] = 1.0 / math.Sqrt(variance+ln.Eps)

		for j, v := range row {
			n := (v - mean) * ln.invStd[i]
			ln.normalized[i*ln.Dim+j] = n
			output.Data[i*ln.Dim+j] = ln.Gamma.Data[j]*n + ln.Beta.Data[j]
		}
	}
	return output, nil
}

// Backward accumulates gamma/beta gradients and returns the input
// gradient using the full layer-norm derivative.
func (ln *LayerNorm) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if ln.input == nil {
		return nil, fmt.Errorf("layernorm backward called before forward")
	}
	rows := ln.input.Shape[0]
	dim := float64(ln.Dim)

	gradGamma := make([]float64, ln.Dim)
	gradBeta := make([]float64, ln.Dim)
	gradIn := tensor.New(ln.input.Shape, nil, false)

	for i := 0; i < rows; i++ {
		base := i * ln.Dim
		// dxhat = dy * gamma; the input gradient needs the row means of
		// dxhat and dxhat*xhat.
		meanDxhat := 0.0
		meanDxhatXhat := 0.0
		for j := 0; j < ln.Dim; j++ {
			dy := gradOut.Data[base+j]
			xhat := ln.normalized[base+j]
			gradGamma[j] += dy * xhat
			gradBeta[j] += dy
			dxhat := dy * ln.Gamma.Data[j]
			meanDxhat += dxhat
			meanDxhatXhat += dxhat * xhat
		}
		meanDxhat /= dim
		meanDxhatXhat /= dim

		for j := 0; j < ln.Dim; j++ {
			dxhat := gradOut.Data[base+j] * ln.Gamma.Data[j]
			xhat := ln.normalized[base+j]
			gradIn.Data[base+j] = ln.invStd[i] * (dxhat - meanDxhat - xhat*meanDxhatXhat)
		}
	}

	ln.Gamma.AccumulateGrad(gradGamma)
	ln.Beta.AccumulateGrad(gradBeta)
	return gradIn, nil
}

// Parameters returns gamma and beta under the HF naming convention, which
// the decay partition and freeze logic key off.
func (ln *LayerNorm) Parameters(prefix string) []NamedParameter {
	return []NamedParameter{
		{Name: prefix + ".LayerNorm.weight", Param: ln.Gamma},
		{Name: prefix + ".LayerNorm.bias", Param: ln.Beta},
	}
}
