package nn

import (
	"strings"

	"github.com/golangast/sentclass/neural/tensor"
)

// NamedParameter pairs a learnable tensor with its dot-separated path in
// the model, e.g. "encoder.layers.0.attention.output.LayerNorm.weight".
type NamedParameter struct {
	Name  string
	Param *tensor.Tensor
}

// NoDecayMarkers are the name fragments excluded from L2 regularization:
// bias terms and LayerNorm scales.
var NoDecayMarkers = []string{"bias", "LayerNorm.weight"}

// Tensors strips the names off a parameter list.
func Tensors(params []NamedParameter) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(params))
	for i, p := range params {
		out[i] = p.Param
	}
	return out
}

// GroupForDecay partitions parameters into the decayed and undecayed
// groups: any name containing a NoDecayMarker fragment gets zero weight
// decay, everything else gets weightDecay.
func GroupForDecay(params []NamedParameter, weightDecay float64) []ParamGroup {
	decayed := ParamGroup{WeightDecay: weightDecay}
	undecayed := ParamGroup{WeightDecay: 0}
	for _, p := range params {
		if noDecay(p.Name) {
			undecayed.Params = append(undecayed.Params, p)
		} else {
			decayed.Params = append(decayed.Params, p)
		}
	}
	return []ParamGroup{decayed, undecayed}
}

func noDecay(name string) bool {
	for _, marker := range NoDecayMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}
