package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golangast/sentclass/config"
	"github.com/golangast/sentclass/hub"
	"github.com/golangast/sentclass/neural/encoder"
	"github.com/golangast/sentclass/neural/tokenizer"
	"github.com/golangast/sentclass/neural/vocab"
)

func testHP() config.Hyperparameters {
	return config.Hyperparameters{
		UpstreamModel: "encoder-tiny",
		NumClasses:    3,
		Classes:       []string{"positive", "negative", "neutral"},
		LR:            2e-5,
		Epochs:        1,
		BatchSize:     32,
		MaxSeqLen:     16,
	}
}

func TestPredictReturnsConfiguredClass(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	hp := testHP()

	v := vocab.New()
	tokenizer.Build(v, []string{"what a great film"})

	ckpt, err := hub.Resolve(hp.UpstreamModel)
	require.NoError(t, err)
	arch := ckpt.Arch
	arch.NumClasses = hp.NumClasses
	model, err := encoder.New(arch)
	require.NoError(t, err)

	p, err := FromModel(model, v, hp)
	require.NoError(t, err)

	class, probs, err := p.Predict("what a great film")
	require.NoError(t, err)
	assert.Contains(t, hp.Classes, class)
	require.Len(t, probs, hp.NumClasses)

	sum := 0.0
	for _, pr := range probs {
		sum += pr
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestNewResolvesFromHub(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())

	p, err := New(testHP())
	require.NoError(t, err)

	class, _, err := p.Predict("anything at all")
	require.NoError(t, err)
	assert.Contains(t, testHP().Classes, class)
}

func TestNewUnknownModel(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	hp := testHP()
	hp.UpstreamModel = "missing"
	_, err := New(hp)
	assert.Error(t, err)
}
