package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golangast/sentclass/config"
	"github.com/golangast/sentclass/errs"
	"github.com/golangast/sentclass/hub"
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

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const sampleCSV = `sentence,label
loved every minute of it,positive
a complete waste of time,negative
it exists,neutral
`

func TestNewAndSize(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	ds, err := New(writeCSV(t, sampleCSV), testHP())
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Size())
}

func TestAtEncodesExample(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	hp := testHP()
	ds, err := New(writeCSV(t, sampleCSV), hp)
	require.NoError(t, err)

	ex, err := ds.At(0)
	require.NoError(t, err)
	assert.Len(t, ex.InputIDs, hp.MaxSeqLen)
	assert.Len(t, ex.AttentionMask, hp.MaxSeqLen)
	assert.Equal(t, []float64{1, 0, 0}, ex.Label)

	ex, err = ds.At(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, ex.Label)

	ex, err = ds.At(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, ex.Label)
}

func TestAtOutOfBounds(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	ds, err := New(writeCSV(t, sampleCSV), testHP())
	require.NoError(t, err)

	var ie *errs.IndexError
	_, err = ds.At(3)
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 3, ie.Index)
	assert.Equal(t, 3, ie.Size)

	_, err = ds.At(-1)
	assert.ErrorAs(t, err, &ie)
}

func TestAtUnknownLabel(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	ds, err := New(writeCSV(t, "sentence,label\nfine,mixed\n"), testHP())
	require.NoError(t, err)

	var ule *errs.UnknownLabelError
	_, err = ds.At(0)
	require.ErrorAs(t, err, &ule)
	assert.Equal(t, "mixed", ule.Label)
}

func TestNewMissingFile(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	var fe *errs.FileError
	_, err := New(filepath.Join(t.TempDir(), "nope.csv"), testHP())
	assert.ErrorAs(t, err, &fe)
}

func TestNewUnknownModel(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	hp := testHP()
	hp.UpstreamModel = "no-such-model"

	var ce *errs.ConfigError
	_, err := New(writeCSV(t, sampleCSV), hp)
	assert.ErrorAs(t, err, &ce)
}

func TestCustomClassVocabulary(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	hp := testHP()
	hp.NumClasses = 2
	hp.Classes = []string{"spam", "ham"}

	ds, err := New(writeCSV(t, "sentence,label\nbuy now,spam\nsee you at lunch,ham\n"), hp)
	require.NoError(t, err)

	ex, err := ds.At(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, ex.Label)
}

func TestSentences(t *testing.T) {
	t.Setenv(hub.CacheEnv, t.TempDir())
	ds, err := New(writeCSV(t, sampleCSV), testHP())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"loved every minute of it",
		"a complete waste of time",
		"it exists",
	}, ds.Sentences())
}
