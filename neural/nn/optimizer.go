package nn

import (
	"math"

	"github.com/golangast/sentclass/neural/tensor"
)

// ParamGroup is a set of parameters sharing one weight-decay coefficient.
type ParamGroup struct {
	Params      []NamedParameter
	WeightDecay float64
}

// AdamW is the Adam optimizer with decoupled weight decay, applied over
// parameter groups so bias and LayerNorm scales can be exempted from
// regularization.
type AdamW struct {
	Groups []ParamGroup

	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int

	m map[*tensor.Tensor][]float64
	v map[*tensor.Tensor][]float64
}

// NewAdamW creates an AdamW optimizer with betas 0.9/0.999.
func NewAdamW(groups []ParamGroup, lr, eps float64) *AdamW {
	return &AdamW{
		Groups: groups,
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    eps,
		m:      make(map[*tensor.Tensor][]float64),
		v:      make(map[*tensor.Tensor][]float64),
	}
}

// LR returns the current learning rate.
func (o *AdamW) LR() float64 { return o.lr }

// SetLR replaces the learning rate; the schedule calls this every step.
func (o *AdamW) SetLR(lr float64) { o.lr = lr }

// Step applies one parameter update from the accumulated gradients.
// Frozen parameters and parameters without gradients are skipped.
func (o *AdamW) Step() {
	o.t++
	bc1 := 1 - math.Pow(o.beta1, float64(o.t))
	bc2 := 1 - math.Pow(o.beta2, float64(o.t))

	for _, group := range o.Groups {
		for _, np := range group.Params {
			p := np.Param
			if !p.RequiresGrad || p.Grad == nil {
				continue
			}
			m, ok := o.m[p]
			if !ok {
				m = make([]float64, len(p.Data))
				o.m[p] = m
				o.v[p] = make([]float64, len(p.Data))
			}
			v := o.v[p]

			for i, g := range p.Grad.Data {
				m[i] = o.beta1*m[i] + (1-o.beta1)*g
				v[i] = o.beta2*v[i] + (1-o.beta2)*g*g
				mHat := m[i] / bc1
				vHat := v[i] / bc2
				// Decoupled decay: regularization is applied to the
				// parameter directly, not folded into the gradient.
				p.Data[i] -= o.lr * (mHat/(math.Sqrt(vHat)+o.eps) + group.WeightDecay*p.Data[i])
			}
		}
	}
}

// ZeroGrad clears the gradients of every parameter in every group.
func (o *AdamW) ZeroGrad() {
	for _, group := range o.Groups {
		for _, np := range group.Params {
			np.Param.ZeroGrad()
		}
	}
}
