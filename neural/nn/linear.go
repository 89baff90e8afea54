package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/golangast/sentclass/neural/tensor"
)

// Linear is a fully connected layer over 2D input [rows, in] producing
// [rows, out]. Callers flatten [batch, seq, hidden] to [batch*seq, hidden]
// before the forward pass.
type Linear struct {
	Weight *tensor.Tensor // [in, out]
	Bias   *tensor.Tensor // [out]

	input *tensor.Tensor
}

// NewLinear creates a Linear layer with He-initialized weights and zero
// biases.
func NewLinear(inDim, outDim int) *Linear {
	stdDev := math.Sqrt(2.0 / float64(inDim))
	weightData := make([]float64, inDim*outDim)
	for i := range weightData {
		weightData[i] = rand.NormFloat64() * stdDev
	}
	return &Linear{
		Weight: tensor.New([]int{inDim, outDim}, weightData, true),
		Bias:   tensor.New([]int{outDim}, nil, true),
	}
}

// Forward computes input @ Weight + Bias and caches the input for the
// backward pass.
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("linear layer needs 2D input, got %v", input.Shape)
	}
	if input.Shape[1] != l.Weight.Shape[0] {
		return nil, fmt.Errorf("linear layer input dim %d, weight expects %d", input.Shape[1], l.Weight.Shape[0])
	}
	l.input = input

	rows, in, out := input.Shape[0], l.Weight.Shape[0], l.Weight.Shape[1]
	output := tensor.New([]int{rows, out}, nil, false)
	tensor.MatMulInto(output.Data, input.Data, l.Weight.Data, rows, in, out, false, false)
	for i := 0; i < rows; i++ {
		row := output.Data[i*out : (i+1)*out]
		for j := range row {
			row[j] += l.Bias.Data[j]
		}
	}
	return output, nil
}

// Backward accumulates weight and bias gradients from the output gradient
// and returns the gradient with respect to the input.
func (l *Linear) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.input == nil {
		return nil, fmt.Errorf("linear backward called before forward")
	}
	rows, in, out := l.input.Shape[0], l.Weight.Shape[0], l.Weight.Shape[1]
	if len(gradOut.Data) != rows*out {
		return nil, fmt.Errorf("linear backward grad shape %v, want [%d %d]", gradOut.Shape, rows, out)
	}

	if l.Weight.RequiresGrad {
		gradW := make([]float64, in*out)
		// dW = X^T @ dY
		tensor.MatMulInto(gradW, l.input.Data, gradOut.Data, in, rows, out, true, false)
		l.Weight.AccumulateGrad(gradW)
	}
	if l.Bias.RequiresGrad {
		gradB := make([]float64, out)
		for i := 0; i < rows; i++ {
			for j := 0; j < out; j++ {
				gradB[j] += gradOut.Data[i*out+j]
			}
		}
		l.Bias.AccumulateGrad(gradB)
	}

	// dX = dY @ W^T
	gradIn := tensor.New([]int{rows, in}, nil, false)
	tensor.MatMulInto(gradIn.Data, gradOut.Data, l.Weight.Data, rows, out, in, false, true)
	return gradIn, nil
}

// Parameters returns the layer's parameters under the given name prefix.
func (l *Linear) Parameters(prefix string) []NamedParameter {
	return []NamedParameter{
		{Name: prefix + ".weight", Param: l.Weight},
		{Name: prefix + ".bias", Param: l.Bias},
	}
}
