package encoder

import (
	"fmt"
	"math"

	"github.com/golangast/sentclass/neural/nn"
	"github.com/golangast/sentclass/neural/tensor"
)

// Layer is one transformer encoder block: multi-head self-attention with
// a residual connection and LayerNorm, followed by a GELU feed-forward
// network with its own residual and LayerNorm.
type Layer struct {
	Query  *nn.Linear
	Key    *nn.Linear
	Value  *nn.Linear
	Output *nn.Linear

	AttnNorm     *nn.LayerNorm
	Intermediate *nn.Linear
	FFNOut       *nn.Linear
	FFNNorm      *nn.LayerNorm

	numHeads int
	headSize int
	hidden   int

	// forward-pass caches consumed by Backward
	input    *tensor.Tensor
	q, k, v  *tensor.Tensor
	probs    []float64 // [batch*heads*seq*seq]
	attnIn   *tensor.Tensor
	interPre *tensor.Tensor
	batch    int
	seq      int
}

func newLayer(cfg Config) *Layer {
	return &Layer{
		Query:        nn.NewLinear(cfg.HiddenSize, cfg.HiddenSize),
		Key:          nn.NewLinear(cfg.HiddenSize, cfg.HiddenSize),
		Value:        nn.NewLinear(cfg.HiddenSize, cfg.HiddenSize),
		Output:       nn.NewLinear(cfg.HiddenSize, cfg.HiddenSize),
		AttnNorm:     nn.NewLayerNorm(cfg.HiddenSize),
		Intermediate: nn.NewLinear(cfg.HiddenSize, cfg.IntermediateSize),
		FFNOut:       nn.NewLinear(cfg.IntermediateSize, cfg.HiddenSize),
		FFNNorm:      nn.NewLayerNorm(cfg.HiddenSize),
		numHeads:     cfg.NumHeads,
		headSize:     cfg.HiddenSize / cfg.NumHeads,
		hidden:       cfg.HiddenSize,
	}
}

// Forward runs the block over hidden states [batch*seq, hidden]. The
// attention mask [batch, seq] zeroes out padding key positions.
func (l *Layer) Forward(hidden, attentionMask *tensor.Tensor, batch, seq int) (*tensor.Tensor, error) {
	l.input = hidden
	l.batch, l.seq = batch, seq

	var err error
	if l.q, err = l.Query.Forward(hidden); err != nil {
		return nil, err
	}
	if l.k, err = l.Key.Forward(hidden); err != nil {
		return nil, err
	}
	if l.v, err = l.Value.Forward(hidden); err != nil {
		return nil, err
	}

	ctx, err := l.attend(attentionMask)
	if err != nil {
		return nil, err
	}
	attnOut, err := l.Output.Forward(ctx)
	if err != nil {
		return nil, err
	}

	// residual + norm
	res1 := tensor.New(hidden.Shape, nil, false)
	for i := range res1.Data {
		res1.Data[i] = hidden.Data[i] + attnOut.Data[i]
	}
	attnIn, err := l.AttnNorm.Forward(res1)
	if err != nil {
		return nil, err
	}
	l.attnIn = attnIn

	interPre, err := l.Intermediate.Forward(attnIn)
	if err != nil {
		return nil, err
	}
	l.interPre = interPre
	interAct := tensor.New(interPre.Shape, nil, false)
	for i, v := range interPre.Data {
		interAct.Data[i] = nn.GELU(v)
	}
	ffnOut, err := l.FFNOut.Forward(interAct)
	if err != nil {
		return nil, err
	}

	res2 := tensor.New(attnIn.Shape, nil, false)
	for i := range res2.Data {
		res2.Data[i] = attnIn.Data[i] + ffnOut.Data[i]
	}
	return l.FFNNorm.Forward(res2)
}

// attend computes scaled dot-product attention per batch and head,
// caching the softmax probabilities for the backward pass.
func (l *Layer) attend(attentionMask *tensor.Tensor) (*tensor.Tensor, error) {
	batch, seq, hs := l.batch, l.seq, l.headSize
	scale := 1.0 / math.Sqrt(float64(hs))

	l.probs = make([]float64, batch*l.numHeads*seq*seq)
	ctx := tensor.New([]int{batch * seq, l.hidden}, nil, false)
	scores := make([]float64, seq)

	for b := 0; b < batch; b++ {
		for h := 0; h < l.numHeads; h++ {
			probBase := (b*l.numHeads + h) * seq * seq
			for i := 0; i < seq; i++ {
				qRow := l.q.Data[((b*seq+i)*l.hidden + h*hs):((b*seq+i)*l.hidden + (h+1)*hs)]
				for j := 0; j < seq; j++ {
					kRow := l.k.Data[((b*seq+j)*l.hidden + h*hs):((b*seq+j)*l.hidden + (h+1)*hs)]
					dot := 0.0
					for d := 0; d < hs; d++ {
						dot += qRow[d] * kRow[d]
					}
					scores[j] = dot * scale
					if attentionMask.Data[b*seq+j] == 0 {
						scores[j] = maskedScore
					}
				}
				tensor.SoftmaxRow(l.probs[probBase+i*seq:probBase+(i+1)*seq], scores)

				ctxRow := ctx.Data[((b*seq+i)*l.hidden + h*hs):((b*seq+i)*l.hidden + (h+1)*hs)]
				for j := 0; j < seq; j++ {
					p := l.probs[probBase+i*seq+j]
					vRow := l.v.Data[((b*seq+j)*l.hidden + h*hs):((b*seq+j)*l.hidden + (h+1)*hs)]
					for d := 0; d < hs; d++ {
						ctxRow[d] += p * vRow[d]
					}
				}
			}
		}
	}
	return ctx, nil
}

// Backward propagates the block gradient and returns the gradient with
// respect to the block input.
func (l *Layer) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.input == nil {
		return nil, fmt.Errorf("encoder layer backward called before forward")
	}

	gradRes2, err := l.FFNNorm.Backward(gradOut)
	if err != nil {
		return nil, err
	}
	gradInterAct, err := l.FFNOut.Backward(gradRes2)
	if err != nil {
		return nil, err
	}
	gradInterPre := tensor.New(gradInterAct.Shape, nil, false)
	for i, g := range gradInterAct.Data {
		gradInterPre.Data[i] = g * nn.GELUDerivative(l.interPre.Data[i])
	}
	gradAttnIn, err := l.Intermediate.Backward(gradInterPre)
	if err != nil {
		return nil, err
	}
	// residual: the FFN branch and the skip path both feed attnIn
	for i := range gradAttnIn.Data {
		gradAttnIn.Data[i] += gradRes2.Data[i]
	}

	gradRes1, err := l.AttnNorm.Backward(gradAttnIn)
	if err != nil {
		return nil, err
	}
	gradCtx, err := l.Output.Backward(gradRes1)
	if err != nil {
		return nil, err
	}

	gradQ, gradK, gradV := l.attendBackward(gradCtx)
	gradInQ, err := l.Query.Backward(gradQ)
	if err != nil {
		return nil, err
	}
	gradInK, err := l.Key.Backward(gradK)
	if err != nil {
		return nil, err
	}
	gradInV, err := l.Value.Backward(gradV)
	if err != nil {
		return nil, err
	}

	gradIn := tensor.New(l.input.Shape, nil, false)
	for i := range gradIn.Data {
		gradIn.Data[i] = gradRes1.Data[i] + gradInQ.Data[i] + gradInK.Data[i] + gradInV.Data[i]
	}
	return gradIn, nil
}

// attendBackward differentiates the scaled dot-product attention using
// the cached probabilities.
func (l *Layer) attendBackward(gradCtx *tensor.Tensor) (gradQ, gradK, gradV *tensor.Tensor) {
	batch, seq, hs := l.batch, l.seq, l.headSize
	scale := 1.0 / math.Sqrt(float64(hs))

	gradQ = tensor.New(l.q.Shape, nil, false)
	gradK = tensor.New(l.k.Shape, nil, false)
	gradV = tensor.New(l.v.Shape, nil, false)
	gradProbs := make([]float64, seq)
	gradScores := make([]float64, seq)

	for b := 0; b < batch; b++ {
		for h := 0; h < l.numHeads; h++ {
			probBase := (b*l.numHeads + h) * seq * seq
			for i := 0; i < seq; i++ {
				gCtxRow := gradCtx.Data[((b*seq+i)*l.hidden + h*hs):((b*seq+i)*l.hidden + (h+1)*hs)]
				probRow := l.probs[probBase+i*seq : probBase+(i+1)*seq]

				// dV[j] += p[i][j] * dCtx[i]; dP[i][j] = dCtx[i] . V[j]
				for j := 0; j < seq; j++ {
					vOff := (b*seq+j)*l.hidden + h*hs
					dot := 0.0
					for d := 0; d < hs; d++ {
						gradV.Data[vOff+d] += probRow[j] * gCtxRow[d]
						dot += gCtxRow[d] * l.v.Data[vOff+d]
					}
					gradProbs[j] = dot
				}

				// softmax jacobian: dS = P * (dP - sum(dP * P))
				sum := 0.0
				for j := 0; j < seq; j++ {
					sum += gradProbs[j] * probRow[j]
				}
				for j := 0; j < seq; j++ {
					gradScores[j] = probRow[j] * (gradProbs[j] - sum)
				}

				qOff := (b*seq+i)*l.hidden + h*hs
				for j := 0; j < seq; j++ {
					kOff := (b*seq+j)*l.hidden + h*hs
					g := gradScores[j] * scale
					for d := 0; d < hs; d++ {
						gradQ.Data[qOff+d] += g * l.k.Data[kOff+d]
						gradK.Data[kOff+d] += g * l.q.Data[qOff+d]
					}
				}
			}
		}
	}
	return gradQ, gradK, gradV
}

// Parameters returns the block's parameters under the upstream naming
// convention.
func (l *Layer) Parameters(prefix string) []nn.NamedParameter {
	params := l.Query.Parameters(prefix + ".attention.query")
	params = append(params, l.Key.Parameters(prefix+".attention.key")...)
	params = append(params, l.Value.Parameters(prefix+".attention.value")...)
	params = append(params, l.Output.Parameters(prefix+".attention.output.dense")...)
	params = append(params, l.AttnNorm.Parameters(prefix+".attention.output")...)
	params = append(params, l.Intermediate.Parameters(prefix+".intermediate.dense")...)
	params = append(params, l.FFNOut.Parameters(prefix+".output.dense")...)
	params = append(params, l.FFNNorm.Parameters(prefix+".output")...)
	return params
}
