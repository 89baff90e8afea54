package train

import "github.com/golangast/sentclass/neural/tensor"

// Task selects the accuracy mode from the class count.
type Task string

const (
	TaskBinary     Task = "binary"
	TaskMulticlass Task = "multiclass"
)

// Accuracy computes the fraction of examples whose highest-scoring class
// matches the true class. Raw logits are fine as input; the comparison
// argmax-reduces them internally.
type Accuracy struct {
	Task Task
}

// NewAccuracy picks binary mode for exactly two classes, multiclass
// otherwise.
func NewAccuracy(numClasses int) Accuracy {
	if numClasses == 2 {
		return Accuracy{Task: TaskBinary}
	}
	return Accuracy{Task: TaskMulticlass}
}

// Compute returns the batch accuracy of logits [batch, classes] against
// integer target classes.
func (a Accuracy) Compute(logits *tensor.Tensor, targets []int) (float64, error) {
	preds, err := logits.ArgmaxRows()
	if err != nil {
		return 0, err
	}
	if len(preds) == 0 {
		return 0, nil
	}
	correct := 0
	for i, p := range preds {
		if p == targets[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(preds)), nil
}
