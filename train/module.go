// Package train wraps the encoder in a sequence-classification training
// module: per-phase step functions, epoch-level metric aggregation and
// AdamW with a warmup/cosine learning-rate schedule.
package train

import (
	"fmt"
	"strings"

	"github.com/golangast/sentclass/config"
	"github.com/golangast/sentclass/errs"
	"github.com/golangast/sentclass/hub"
	"github.com/golangast/sentclass/loader"
	"github.com/golangast/sentclass/neural/encoder"
	"github.com/golangast/sentclass/neural/nn"
	"github.com/golangast/sentclass/neural/tensor"
)

const adamEpsilon = 1e-8

// Phase names the split a step or epoch belongs to; it prefixes every
// metric the module emits.
type Phase string

const (
	PhaseTrain Phase = "train"
	PhaseVal   Phase = "val"
	PhaseTest  Phase = "test"
)

// StepResult carries the loss and accuracy of one mini-batch.
type StepResult struct {
	Loss float64
	Acc  float64
}

// Module owns the model and everything needed to train it.
type Module struct {
	hp       config.Hyperparameters
	model    *encoder.Model
	accuracy Accuracy
	sink     MetricSink

	lastProbs *tensor.Tensor
}

// New resolves the upstream model, sizes the classification head for the
// configured class count and optionally freezes the encoder so only the
// head trains.
func New(hp config.Hyperparameters, sink MetricSink) (*Module, error) {
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
	if hp.MaxSeqLen > arch.MaxPositionEmbeddings {
		return nil, &errs.ConfigError{
			Field: "max_seq_len",
			Err:   fmt.Errorf("%d exceeds the %d position embeddings of %s", hp.MaxSeqLen, arch.MaxPositionEmbeddings, hp.UpstreamModel),
		}
	}
	model, err := encoder.New(arch)
	if err != nil {
		return nil, err
	}
	model.LoadParams(ckpt.Params)

	if hp.Freeze {
		// Only the classification head keeps gradients; everything else
		// stays at its pretrained values.
		for _, np := range model.NamedParameters() {
			if !strings.Contains(np.Name, "classifier") {
				np.Param.RequiresGrad = false
			}
		}
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Module{
		hp:       hp,
		model:    model,
		accuracy: NewAccuracy(hp.NumClasses),
		sink:     sink,
	}, nil
}

// Model exposes the underlying network for checkpointing and inference.
func (m *Module) Model() *encoder.Model { return m.model }

// TrainingStep runs forward and backward on one batch, leaving gradients
// accumulated for the optimizer.
func (m *Module) TrainingStep(batch *loader.Batch) (StepResult, error) {
	return m.step(batch, true)
}

// ValidationStep evaluates one batch without touching gradients.
func (m *Module) ValidationStep(batch *loader.Batch) (StepResult, error) {
	return m.step(batch, false)
}

// TestStep evaluates one batch without touching gradients.
func (m *Module) TestStep(batch *loader.Batch) (StepResult, error) {
	return m.step(batch, false)
}

func (m *Module) step(batch *loader.Batch, backprop bool) (StepResult, error) {
	logits, err := m.model.Forward(batch.InputIDs, batch.AttentionMask)
	if err != nil {
		return StepResult{}, err
	}

	// Normalized probabilities are kept around for inspection only; the
	// loss works on raw logits.
	m.lastProbs, err = logits.Softmax()
	if err != nil {
		return StepResult{}, err
	}

	targets, err := batch.Labels.ArgmaxRows()
	if err != nil {
		return StepResult{}, err
	}
	acc, err := m.accuracy.Compute(logits, targets)
	if err != nil {
		return StepResult{}, err
	}
	loss, gradLogits, err := CrossEntropy(logits, batch.Labels)
	if err != nil {
		return StepResult{}, err
	}

	if backprop {
		if err := m.model.Backward(gradLogits); err != nil {
			return StepResult{}, err
		}
	}
	return StepResult{Loss: loss, Acc: acc}, nil
}

// LastProbabilities returns the softmax output of the most recent step,
// shaped [batch, classes].
func (m *Module) LastProbabilities() *tensor.Tensor { return m.lastProbs }

// EpochEnd aggregates a phase's step results into arithmetic means and
// emits them as <phase>/loss and <phase>/acc.
func (m *Module) EpochEnd(phase Phase, epoch int, results []StepResult) {
	if len(results) == 0 {
		return
	}
	var loss, acc float64
	for _, r := range results {
		loss += r.Loss
		acc += r.Acc
	}
	n := float64(len(results))
	m.sink.Log(string(phase)+"/loss", loss/n, epoch)
	m.sink.Log(string(phase)+"/acc", acc/n, epoch)
}

// ConfigureOptimizers builds AdamW over decay-partitioned parameter
// groups and a warmup/cosine schedule spanning totalSteps optimizer
// steps. The caller supplies totalSteps because only the driver knows
// how many batches an epoch holds.
func (m *Module) ConfigureOptimizers(totalSteps int) (*nn.AdamW, *nn.WarmupCosineSchedule) {
	groups := nn.GroupForDecay(m.model.NamedParameters(), m.hp.WeightDecay)
	opt := nn.NewAdamW(groups, m.hp.LR, adamEpsilon)
	sched := nn.NewWarmupCosineSchedule(opt, m.hp.WarmupSteps, totalSteps)
	return opt, sched
}
