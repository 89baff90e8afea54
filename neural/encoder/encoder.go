// Package encoder implements a transformer encoder with a classification
// head: token and sinusoidal position embeddings, stacked self-attention
// layers, a CLS pooler and a linear classifier producing logits.
package encoder

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/golangast/sentclass/neural/nn"
	"github.com/golangast/sentclass/neural/tensor"
)

const maskedScore = -1e9

// Config describes the encoder architecture.
type Config struct {
	VocabSize             int
	HiddenSize            int
	NumLayers             int
	NumHeads              int
	IntermediateSize      int
	MaxPositionEmbeddings int
	InitializerRange      float64
	NumClasses            int
}

// Model is the full sequence-classification network. Forward produces raw
// unnormalized class scores; Backward propagates a logits gradient into
// every parameter's Grad buffer.
type Model struct {
	Config     Config
	Embeddings *Embeddings
	Layers     []*Layer
	Pooler     *Pooler
	Classifier *nn.Linear

	batch int
	seq   int
}

// New creates a randomly initialized model for the given architecture.
func New(cfg Config) (*Model, error) {
	if cfg.HiddenSize%cfg.NumHeads != 0 {
		return nil, fmt.Errorf("hidden size %d is not a multiple of %d heads", cfg.HiddenSize, cfg.NumHeads)
	}
	if cfg.NumClasses < 2 {
		return nil, fmt.Errorf("classification head needs at least 2 classes, got %d", cfg.NumClasses)
	}
	layers := make([]*Layer, cfg.NumLayers)
	for i := range layers {
		layers[i] = newLayer(cfg)
	}
	return &Model{
		Config:     cfg,
		Embeddings: newEmbeddings(cfg),
		Layers:     layers,
		Pooler:     newPooler(cfg),
		Classifier: nn.NewLinear(cfg.HiddenSize, cfg.NumClasses),
	}, nil
}

// Forward runs the network on a batch of token ids and attention masks,
// both shaped [batch, seq], and returns logits shaped [batch, numClasses].
func (m *Model) Forward(inputIDs, attentionMask *tensor.Tensor) (*tensor.Tensor, error) {
	if len(inputIDs.Shape) != 2 || len(attentionMask.Shape) != 2 {
		return nil, fmt.Errorf("encoder expects 2D ids and mask, got %v and %v", inputIDs.Shape, attentionMask.Shape)
	}
	m.batch, m.seq = inputIDs.Shape[0], inputIDs.Shape[1]

	hidden, err := m.Embeddings.Forward(inputIDs)
	if err != nil {
		return nil, err
	}
	for _, layer := range m.Layers {
		hidden, err = layer.Forward(hidden, attentionMask, m.batch, m.seq)
		if err != nil {
			return nil, err
		}
	}
	pooled, err := m.Pooler.Forward(hidden, m.batch, m.seq)
	if err != nil {
		return nil, err
	}
	return m.Classifier.Forward(pooled)
}

// Backward propagates the logits gradient through the whole network.
func (m *Model) Backward(gradLogits *tensor.Tensor) error {
	gradPooled, err := m.Classifier.Backward(gradLogits)
	if err != nil {
		return err
	}
	gradHidden, err := m.Pooler.Backward(gradPooled, m.batch, m.seq)
	if err != nil {
		return err
	}
	for i := len(m.Layers) - 1; i >= 0; i-- {
		gradHidden, err = m.Layers[i].Backward(gradHidden)
		if err != nil {
			return err
		}
	}
	return m.Embeddings.Backward(gradHidden)
}

// NamedParameters returns every learnable tensor with its dot-separated
// path. The names follow the upstream transformer convention so decay
// partitioning ("bias", "LayerNorm.weight") and freezing ("classifier")
// work on name fragments.
func (m *Model) NamedParameters() []nn.NamedParameter {
	params := m.Embeddings.Parameters("embeddings")
	for i, layer := range m.Layers {
		params = append(params, layer.Parameters(fmt.Sprintf("encoder.layers.%d", i))...)
	}
	params = append(params, m.Pooler.Dense.Parameters("pooler.dense")...)
	params = append(params, m.Classifier.Parameters("classifier")...)
	return params
}

// LoadParams copies pretrained parameter data by name. Unknown names are
// ignored so a checkpoint for a smaller head still loads the encoder.
func (m *Model) LoadParams(params map[string][]float64) {
	for _, np := range m.NamedParameters() {
		data, ok := params[np.Name]
		if !ok || len(data) != len(np.Param.Data) {
			continue
		}
		copy(np.Param.Data, data)
	}
}

// SaveParams snapshots every parameter's data keyed by name.
func (m *Model) SaveParams() map[string][]float64 {
	out := make(map[string][]float64)
	for _, np := range m.NamedParameters() {
		data := make([]float64, len(np.Param.Data))
		copy(data, np.Param.Data)
		out[np.Name] = data
	}
	return out
}

// Embeddings maps token ids to hidden vectors, adds sinusoidal position
// encodings and normalizes the result.
type Embeddings struct {
	Word      *tensor.Tensor // [vocab, hidden]
	Positions []float64      // [maxPos * hidden], fixed
	Norm      *nn.LayerNorm

	hidden   int
	maxPos   int
	tokenIDs []int
}

func newEmbeddings(cfg Config) *Embeddings {
	wordData := make([]float64, cfg.VocabSize*cfg.HiddenSize)
	for i := range wordData {
		wordData[i] = rand.NormFloat64() * cfg.InitializerRange
	}
	positions := make([]float64, cfg.MaxPositionEmbeddings*cfg.HiddenSize)
	for pos := 0; pos < cfg.MaxPositionEmbeddings; pos++ {
		for i := 0; i < cfg.HiddenSize; i++ {
			angle := float64(pos) / math.Pow(10000, float64(i-i%2)/float64(cfg.HiddenSize))
			if i%2 == 0 {
				positions[pos*cfg.HiddenSize+i] = math.Sin(angle)
			} else {
				positions[pos*cfg.HiddenSize+i] = math.Cos(angle)
			}
		}
	}
	return &Embeddings{
		Word:      tensor.New([]int{cfg.VocabSize, cfg.HiddenSize}, wordData, true),
		Positions: positions,
		Norm:      nn.NewLayerNorm(cfg.HiddenSize),
		hidden:    cfg.HiddenSize,
		maxPos:    cfg.MaxPositionEmbeddings,
	}
}

// Forward looks up embeddings for ids [batch, seq] and returns hidden
// states flattened to [batch*seq, hidden].
func (e *Embeddings) Forward(inputIDs *tensor.Tensor) (*tensor.Tensor, error) {
	batch, seq := inputIDs.Shape[0], inputIDs.Shape[1]
	if seq > e.maxPos {
		return nil, fmt.Errorf("sequence length %d exceeds the %d position embeddings", seq, e.maxPos)
	}
	vocabSize := e.Word.Shape[0]

	e.tokenIDs = make([]int, batch*seq)
	out := tensor.New([]int{batch * seq, e.hidden}, nil, false)
	for i, idAsFloat := range inputIDs.Data {
		id := int(idAsFloat)
		if id < 0 || id >= vocabSize {
			return nil, fmt.Errorf("token id %d out of vocabulary range [0, %d)", id, vocabSize)
		}
		e.tokenIDs[i] = id
		copy(out.Data[i*e.hidden:(i+1)*e.hidden], e.Word.Data[id*e.hidden:(id+1)*e.hidden])
		pos := i % seq
		for d := 0; d < e.hidden; d++ {
			out.Data[i*e.hidden+d] += e.Positions[pos*e.hidden+d]
		}
	}
	return e.Norm.Forward(out)
}

// Backward accumulates word-embedding gradients through the norm. The
// position table is fixed and receives none.
func (e *Embeddings) Backward(gradOut *tensor.Tensor) error {
	grad, err := e.Norm.Backward(gradOut)
	if err != nil {
		return err
	}
	if !e.Word.RequiresGrad {
		return nil
	}
	gradWord := make([]float64, len(e.Word.Data))
	for i, id := range e.tokenIDs {
		for d := 0; d < e.hidden; d++ {
			gradWord[id*e.hidden+d] += grad.Data[i*e.hidden+d]
		}
	}
	e.Word.AccumulateGrad(gradWord)
	return nil
}

// Parameters returns the embedding table and its norm parameters.
func (e *Embeddings) Parameters(prefix string) []nn.NamedParameter {
	params := []nn.NamedParameter{
		{Name: prefix + ".word_embeddings.weight", Param: e.Word},
	}
	return append(params, e.Norm.Parameters(prefix)...)
}

// Pooler takes the CLS hidden state of each sequence through a dense
// layer and tanh.
type Pooler struct {
	Dense *nn.Linear

	hidden  int
	tanhOut []float64
}

func newPooler(cfg Config) *Pooler {
	return &Pooler{Dense: nn.NewLinear(cfg.HiddenSize, cfg.HiddenSize), hidden: cfg.HiddenSize}
}

// Forward selects position 0 of every sequence from hidden [batch*seq,
// hidden] and returns pooled output [batch, hidden].
func (p *Pooler) Forward(hidden *tensor.Tensor, batch, seq int) (*tensor.Tensor, error) {
	cls := tensor.New([]int{batch, p.hidden}, nil, false)
	for b := 0; b < batch; b++ {
		copy(cls.Data[b*p.hidden:(b+1)*p.hidden], hidden.Data[b*seq*p.hidden:(b*seq+1)*p.hidden])
	}
	dense, err := p.Dense.Forward(cls)
	if err != nil {
		return nil, err
	}
	p.tanhOut = make([]float64, len(dense.Data))
	out := tensor.New(dense.Shape, nil, false)
	for i, v := range dense.Data {
		p.tanhOut[i] = math.Tanh(v)
		out.Data[i] = p.tanhOut[i]
	}
	return out, nil
}

// Backward routes the pooled gradient back to the CLS positions of the
// sequence gradient; other positions receive zero from the pooler.
func (p *Pooler) Backward(gradPooled *tensor.Tensor, batch, seq int) (*tensor.Tensor, error) {
	gradDense := tensor.New(gradPooled.Shape, nil, false)
	for i, g := range gradPooled.Data {
		gradDense.Data[i] = g * nn.TanhDerivative(p.tanhOut[i])
	}
	gradCLS, err := p.Dense.Backward(gradDense)
	if err != nil {
		return nil, err
	}
	gradHidden := tensor.New([]int{batch * seq, p.hidden}, nil, false)
	for b := 0; b < batch; b++ {
		copy(gradHidden.Data[b*seq*p.hidden:(b*seq+1)*p.hidden], gradCLS.Data[b*p.hidden:(b+1)*p.hidden])
	}
	return gradHidden, nil
}
