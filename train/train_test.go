package train

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golangast/sentclass/config"
	"github.com/golangast/sentclass/errs"
	"github.com/golangast/sentclass/hub"
	"github.com/golangast/sentclass/loader"
	"github.com/golangast/sentclass/neural/tensor"
)

type capturedMetric struct {
	name  string
	value float64
	epoch int
}

type captureSink struct {
	metrics []capturedMetric
}

func (c *captureSink) Log(name string, value float64, epoch int) {
	c.metrics = append(c.metrics, capturedMetric{name, value, epoch})
}

func testHP() config.Hyperparameters {
	return config.Hyperparameters{
		UpstreamModel: "encoder-tiny",
		NumClasses:    3,
		Classes:       []string{"positive", "negative", "neutral"},
		LR:            1e-3,
		WeightDecay:   0.01,
		Epochs:        1,
		BatchSize:     2,
		MaxSeqLen:     8,
		WarmupSteps:   5,
	}
}

func testBatch() *loader.Batch {
	return &loader.Batch{
		InputIDs:      tensor.New([]int{2, 4}, []float64{2, 10, 11, 3, 2, 12, 3, 0}, false),
		AttentionMask: tensor.New([]int{2, 4}, []float64{1, 1, 1, 1, 1, 1, 1, 0}, false),
		Labels:        tensor.New([]int{2, 3}, []float64{1, 0, 0, 0, 0, 1}, false),
	}
}

func TestAccuracyPerfect(t *testing.T) {
	logits := tensor.New([]int{2, 3}, []float64{2, 1, 0, 0, 1, 2}, false)
	acc, err := NewAccuracy(3).Compute(logits, []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)
}

func TestAccuracyPartial(t *testing.T) {
	logits := tensor.New([]int{2, 3}, []float64{2, 1, 0, 0, 1, 2}, false)
	acc, err := NewAccuracy(3).Compute(logits, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.5, acc)
}

func TestAccuracyTaskSelection(t *testing.T) {
	assert.Equal(t, TaskBinary, NewAccuracy(2).Task)
	assert.Equal(t, TaskMulticlass, NewAccuracy(3).Task)
}

func TestCrossEntropyUniformLogits(t *testing.T) {
	logits := tensor.New([]int{1, 3}, []float64{0, 0, 0}, false)
	labels := tensor.New([]int{1, 3}, []float64{0, 1, 0}, false)

	loss, grad, err := CrossEntropy(logits, labels)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(3), loss, 1e-9)

	// gradient is softmax minus one-hot, and sums to zero
	assert.InDelta(t, 1.0/3.0, grad.Data[0], 1e-9)
	assert.InDelta(t, 1.0/3.0-1.0, grad.Data[1], 1e-9)
	sum := 0.0
	for _, g := range grad.Data {
		sum += g
	}
	assert.InDelta(t, 0, sum, 1e-9)
}

func TestCrossEntropyConfidentCorrect(t *testing.T) {
	logits := tensor.New([]int{1, 3}, []float64{10, 0, 0}, false)
	labels := tensor.New([]int{1, 3}, []float64{1, 0, 0}, false)
	loss, _, err := CrossEntropy(logits, labels)
	require.NoError(t, err)
	assert.Less(t, loss, 0.01)
}

func TestCrossEntropyBatchMean(t *testing.T) {
	logits := tensor.New([]int{2, 2}, []float64{0, 0, 0, 0}, false)
	labels := tensor.New([]int{2, 2}, []float64{1, 0, 0, 1}, false)
	loss, grad, err := CrossEntropy(logits, labels)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2), loss, 1e-9)
	// per-example gradients are scaled by 1/batch
	assert.InDelta(t, (0.5-1.0)/2, grad.Data[0], 1e-9)
}

func TestCrossEntropyShapeMismatch(t *testing.T) {
	logits := tensor.New([]int{1, 3}, nil, false)
	labels := tensor.New([]int{1, 2}, nil, false)
	_, _, err := CrossEntropy(logits, labels)
	assert.Error(t, err)
}

func TestEpochEndMeans(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	sink := &captureSink{}
	m, err := New(testHP(), sink)
	require.NoError(t, err)

	m.EpochEnd(PhaseTrain, 2, []StepResult{
		{Loss: 0.2, Acc: 0.5},
		{Loss: 0.4, Acc: 0.75},
		{Loss: 0.6, Acc: 1.0},
	})

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, "train/loss", sink.metrics[0].name)
	assert.InDelta(t, 0.4, sink.metrics[0].value, 1e-9)
	assert.Equal(t, "train/acc", sink.metrics[1].name)
	assert.InDelta(t, 0.75, sink.metrics[1].value, 1e-9)
	assert.Equal(t, 2, sink.metrics[0].epoch)
}

func TestEpochEndPhaseNamespacing(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	sink := &captureSink{}
	m, err := New(testHP(), sink)
	require.NoError(t, err)

	m.EpochEnd(PhaseVal, 0, []StepResult{{Loss: 1, Acc: 1}})
	m.EpochEnd(PhaseTest, 0, []StepResult{{Loss: 1, Acc: 1}})

	names := []string{}
	for _, mt := range sink.metrics {
		names = append(names, mt.name)
	}
	assert.Equal(t, []string{"val/loss", "val/acc", "test/loss", "test/acc"}, names)
}

func TestEpochEndEmptyResults(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	sink := &captureSink{}
	m, err := New(testHP(), sink)
	require.NoError(t, err)

	m.EpochEnd(PhaseTrain, 0, nil)
	assert.Empty(t, sink.metrics)
}

func TestNewRejectsSeqLenBeyondPositionTable(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	hp := testHP()
	hp.MaxSeqLen = 300 // encoder-tiny carries 256 position embeddings

	_, err := New(hp, NopSink{})
	var ce *errs.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "max_seq_len", ce.Field)
}

func TestNewUnknownModel(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	hp := testHP()
	hp.UpstreamModel = "no-such-model"
	_, err := New(hp, NopSink{})
	assert.Error(t, err)
}

func TestTrainingStepAccumulatesGradients(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	m, err := New(testHP(), NopSink{})
	require.NoError(t, err)

	res, err := m.TrainingStep(testBatch())
	require.NoError(t, err)
	assert.Greater(t, res.Loss, 0.0)
	assert.GreaterOrEqual(t, res.Acc, 0.0)
	assert.LessOrEqual(t, res.Acc, 1.0)

	found := false
	for _, np := range m.Model().NamedParameters() {
		if np.Param.Grad != nil {
			found = true
			break
		}
	}
	assert.True(t, found, "training step left no gradients")

	probs := m.LastProbabilities()
	require.NotNil(t, probs)
	assert.Equal(t, []int{2, 3}, probs.Shape)
}

func TestValidationStepLeavesNoGradients(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	m, err := New(testHP(), NopSink{})
	require.NoError(t, err)

	_, err = m.ValidationStep(testBatch())
	require.NoError(t, err)
	for _, np := range m.Model().NamedParameters() {
		assert.Nil(t, np.Param.Grad, "validation touched %s", np.Name)
	}
}

func TestFreezeLimitsTrainingToHead(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	hp := testHP()
	hp.Freeze = true
	m, err := New(hp, NopSink{})
	require.NoError(t, err)

	_, err = m.TrainingStep(testBatch())
	require.NoError(t, err)

	for _, np := range m.Model().NamedParameters() {
		if strings.Contains(np.Name, "classifier") {
			assert.NotNil(t, np.Param.Grad, "head param %s should train", np.Name)
		} else {
			assert.Nil(t, np.Param.Grad, "frozen param %s received a gradient", np.Name)
		}
	}
}

func TestConfigureOptimizers(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	hp := testHP()
	m, err := New(hp, NopSink{})
	require.NoError(t, err)

	opt, sched := m.ConfigureOptimizers(100)
	require.NotNil(t, opt)
	require.NotNil(t, sched)

	// two groups: decayed and undecayed, both non-empty
	require.Len(t, opt.Groups, 2)
	assert.Equal(t, hp.WeightDecay, opt.Groups[0].WeightDecay)
	assert.Equal(t, 0.0, opt.Groups[1].WeightDecay)
	assert.NotEmpty(t, opt.Groups[0].Params)
	assert.NotEmpty(t, opt.Groups[1].Params)

	// schedule peaks at the configured warmup and dies at the horizon
	assert.InDelta(t, hp.LR, sched.LRAt(hp.WarmupSteps), 1e-12)
	assert.InDelta(t, 0, sched.LRAt(100), 1e-12)
}

func TestOptimizerStepChangesOnlyHeadWhenFrozen(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	hp := testHP()
	hp.Freeze = true
	m, err := New(hp, NopSink{})
	require.NoError(t, err)

	snapshot := m.Model().SaveParams()

	// two driver iterations: the first optimizer update sits at the start
	// of the warmup ramp, the second carries a non-zero rate
	opt, sched := m.ConfigureOptimizers(10)
	for i := 0; i < 2; i++ {
		_, err = m.TrainingStep(testBatch())
		require.NoError(t, err)
		opt.Step()
		sched.Step()
		opt.ZeroGrad()
	}

	after := m.Model().SaveParams()
	for name, before := range snapshot {
		if strings.Contains(name, "classifier") {
			continue
		}
		assert.Equal(t, before, after[name], "frozen param %s moved", name)
	}
	assert.NotEqual(t, snapshot["classifier.weight"], after["classifier.weight"])
}
