package train

import (
	"fmt"
	"math"

	"github.com/golangast/sentclass/neural/tensor"
)

const logEpsilon = 1e-12

// CrossEntropy measures the divergence between raw logits and one-hot
// label vectors. Log-normalization happens internally, so callers must
// not softmax the logits first. It returns the mean loss over the batch
// and the gradient with respect to the logits.
func CrossEntropy(logits, labels *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if len(logits.Shape) != 2 || len(labels.Shape) != 2 {
		return 0, nil, fmt.Errorf("cross entropy needs 2D logits and labels, got %v and %v", logits.Shape, labels.Shape)
	}
	if logits.Shape[0] != labels.Shape[0] || logits.Shape[1] != labels.Shape[1] {
		return 0, nil, fmt.Errorf("mismatched logits %v and labels %v", logits.Shape, labels.Shape)
	}

	batch, classes := logits.Shape[0], logits.Shape[1]
	grad := tensor.New(logits.Shape, nil, false)
	probs := make([]float64, classes)

	loss := 0.0
	for i := 0; i < batch; i++ {
		tensor.SoftmaxRow(probs, logits.Row(i))
		for c := 0; c < classes; c++ {
			y := labels.Data[i*classes+c]
			if y != 0 {
				loss -= y * math.Log(probs[c]+logEpsilon)
			}
			// d(mean CE)/d(logit) = (softmax - y) / batch
			grad.Data[i*classes+c] = (probs[c] - y) / float64(batch)
		}
	}
	return loss / float64(batch), grad, nil
}
