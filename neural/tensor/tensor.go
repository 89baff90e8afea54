// Package tensor implements the flat float64 tensors the classifier is
// built on. Tensors carry an optional gradient buffer; layers accumulate
// into it during their backward pass and the optimizer consumes it.
package tensor

import (
	"fmt"
	"math"
)

// Tensor is a multi-dimensional array of float64 values stored flat in
// row-major order.
type Tensor struct {
	Data         []float64
	Shape        []int
	Grad         *Tensor
	RequiresGrad bool
}

// New creates a tensor with the given shape. When data is nil a zeroed
// buffer of the right size is allocated.
func New(shape []int, data []float64, requiresGrad bool) *Tensor {
	if data == nil {
		data = make([]float64, Size(shape))
	}
	if len(data) != Size(shape) {
		panic(fmt.Sprintf("tensor: %d values for shape %v", len(data), shape))
	}
	return &Tensor{Data: data, Shape: shape, RequiresGrad: requiresGrad}
}

// Size returns the number of elements a shape holds.
func Size(shape []int) int {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}

// Clone returns a deep copy without gradient state.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.Data))
	copy(data, t.Data)
	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	return &Tensor{Data: data, Shape: shape, RequiresGrad: t.RequiresGrad}
}

// ZeroGrad clears the gradient buffer, allocating it on first use.
func (t *Tensor) ZeroGrad() {
	if !t.RequiresGrad {
		return
	}
	if t.Grad == nil {
		t.Grad = New(t.Shape, nil, false)
		return
	}
	for i := range t.Grad.Data {
		t.Grad.Data[i] = 0
	}
}

// AccumulateGrad adds grad into the tensor's gradient buffer. It is a
// no-op for tensors that do not require gradients, which is how frozen
// parameters stay fixed.
func (t *Tensor) AccumulateGrad(grad []float64) {
	if !t.RequiresGrad {
		return
	}
	if t.Grad == nil {
		t.Grad = New(t.Shape, nil, false)
	}
	for i, g := range grad {
		t.Grad.Data[i] += g
	}
}

// Reshape returns a view over the same data with a new shape.
func (t *Tensor) Reshape(shape []int) (*Tensor, error) {
	if Size(shape) != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape %v to %v", t.Shape, shape)
	}
	return &Tensor{Data: t.Data, Shape: shape, RequiresGrad: t.RequiresGrad}, nil
}

// MatMul performs 2D matrix multiplication.
func (t *Tensor) MatMul(other *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 || len(other.Shape) != 2 {
		return nil, fmt.Errorf("matmul needs 2D tensors, got %v and %v", t.Shape, other.Shape)
	}
	if t.Shape[1] != other.Shape[0] {
		return nil, fmt.Errorf("incompatible shapes for matmul: %v and %v", t.Shape, other.Shape)
	}
	rows, inner, cols := t.Shape[0], t.Shape[1], other.Shape[1]
	out := New([]int{rows, cols}, nil, false)
	MatMulInto(out.Data, t.Data, other.Data, rows, inner, cols, false, false)
	return out, nil
}

// MatMulInto computes dst = a @ b over flat row-major buffers, optionally
// transposing either operand. rows/inner/cols describe the logical
// multiplication after transposition: a is rows x inner, b is inner x cols.
func MatMulInto(dst, a, b []float64, rows, inner, cols int, transA, transB bool) {
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sum := 0.0
			for k := 0; k < inner; k++ {
				var av, bv float64
				if transA {
					av = a[k*rows+i]
				} else {
					av = a[i*inner+k]
				}
				if transB {
					bv = b[j*inner+k]
				} else {
					bv = b[k*cols+j]
				}
				sum += av * bv
			}
			dst[i*cols+j] = sum
		}
	}
}

// Softmax returns row-wise softmax over the last axis of a 2D tensor.
func (t *Tensor) Softmax() (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("softmax needs a 2D tensor, got %v", t.Shape)
	}
	rows, cols := t.Shape[0], t.Shape[1]
	out := New(t.Shape, nil, false)
	for i := 0; i < rows; i++ {
		SoftmaxRow(out.Data[i*cols:(i+1)*cols], t.Data[i*cols:(i+1)*cols])
	}
	return out, nil
}

// SoftmaxRow writes the softmax of src into dst, shifting by the row
// maximum for numerical stability.
func SoftmaxRow(dst, src []float64) {
	maxVal := math.Inf(-1)
	for _, v := range src {
		if v > maxVal {
			maxVal = v
		}
	}
	sum := 0.0
	for i, v := range src {
		dst[i] = math.Exp(v - maxVal)
		sum += dst[i]
	}
	for i := range dst {
		dst[i] /= sum
	}
}

// Argmax returns the index of the largest value in a slice. Ties resolve
// to the lowest index.
func Argmax(row []float64) int {
	best, bestVal := 0, math.Inf(-1)
	for i, v := range row {
		if v > bestVal {
			best, bestVal = i, v
		}
	}
	return best
}

// ArgmaxRows returns the per-row argmax of a 2D tensor.
func (t *Tensor) ArgmaxRows() ([]int, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("argmax needs a 2D tensor, got %v", t.Shape)
	}
	rows, cols := t.Shape[0], t.Shape[1]
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		out[i] = Argmax(t.Data[i*cols : (i+1)*cols])
	}
	return out, nil
}

// Row returns the i-th row of a 2D tensor as a subslice of the data.
func (t *Tensor) Row(i int) []float64 {
	cols := t.Shape[len(t.Shape)-1]
	return t.Data[i*cols : (i+1)*cols]
}
