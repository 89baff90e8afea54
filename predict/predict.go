// Package predict runs a trained classifier on raw sentences.
package predict

import (
	"github.com/golangast/sentclass/config"
	"github.com/golangast/sentclass/hub"
	"github.com/golangast/sentclass/neural/encoder"
	"github.com/golangast/sentclass/neural/tensor"
	"github.com/golangast/sentclass/neural/tokenizer"
	"github.com/golangast/sentclass/neural/vocab"
)

// Predictor holds a model and its tokenizer for inference.
type Predictor struct {
	model     *encoder.Model
	tok       *tokenizer.Tokenizer
	classes   []string
	maxSeqLen int
}

// New resolves the model identifier from the hub and builds a predictor
// around it.
func New(hp config.Hyperparameters) (*Predictor, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	ckpt, err := hub.Resolve(hp.UpstreamModel)
	if err != nil {
		return nil, err
	}
	arch := ckpt.Arch
	arch.NumClasses = hp.NumClasses
	if n := ckpt.Vocab.Len(); n > arch.VocabSize {
		arch.VocabSize = n
	}
	model, err := encoder.New(arch)
	if err != nil {
		return nil, err
	}
	model.LoadParams(ckpt.Params)
	return FromModel(model, ckpt.Vocab, hp)
}

// FromModel wraps an already-built model, e.g. one that just finished
// training in the same process.
func FromModel(model *encoder.Model, v *vocab.Vocabulary, hp config.Hyperparameters) (*Predictor, error) {
	tok, err := tokenizer.New(v)
	if err != nil {
		return nil, err
	}
	return &Predictor{
		model:     model,
		tok:       tok,
		classes:   hp.Classes,
		maxSeqLen: hp.MaxSeqLen,
	}, nil
}

// Predict classifies one sentence, returning the winning class name and
// the full probability distribution over classes.
func (p *Predictor) Predict(sentence string) (string, []float64, error) {
	ids, mask, err := p.tok.Encode(sentence, p.maxSeqLen)
	if err != nil {
		return "", nil, err
	}
	seq := len(ids)
	idsT := tensor.New([]int{1, seq}, nil, false)
	maskT := tensor.New([]int{1, seq}, nil, false)
	for i := range ids {
		idsT.Data[i] = float64(ids[i])
		maskT.Data[i] = float64(mask[i])
	}

	logits, err := p.model.Forward(idsT, maskT)
	if err != nil {
		return "", nil, err
	}
	probs, err := logits.Softmax()
	if err != nil {
		return "", nil, err
	}
	best := tensor.Argmax(probs.Row(0))
	return p.classes[best], probs.Row(0), nil
}
