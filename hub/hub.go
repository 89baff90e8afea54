// Package hub resolves pretrained models and their tokenizer vocabularies
// by string identifier. Checkpoints are gob files in a local cache
// directory; identifiers without a checkpoint fall back to a table of
// builtin architectures, and anything else is a configuration error.
package hub

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golangast/sentclass/errs"
	"github.com/golangast/sentclass/neural/encoder"
	"github.com/golangast/sentclass/neural/vocab"
)

// CacheEnv overrides the checkpoint cache directory.
const CacheEnv = "SENTCLASS_CACHE"

// Checkpoint is everything the hub knows about a model identifier: the
// architecture, the tokenizer vocabulary and the parameter data keyed by
// parameter name. Params is nil for a never-trained builtin.
type Checkpoint struct {
	Arch   encoder.Config
	Vocab  *vocab.Vocabulary
	Params map[string][]float64
}

var builtins = map[string]encoder.Config{
	"encoder-mini": {
		VocabSize:             8192,
		HiddenSize:            128,
		NumLayers:             4,
		NumHeads:              4,
		IntermediateSize:      512,
		MaxPositionEmbeddings: 512,
		InitializerRange:      0.02,
	},
	"encoder-tiny": {
		VocabSize:             4096,
		HiddenSize:            64,
		NumLayers:             2,
		NumHeads:              2,
		IntermediateSize:      256,
		MaxPositionEmbeddings: 256,
		InitializerRange:      0.02,
	},
}

// CacheDir returns the checkpoint directory, honoring CacheEnv.
func CacheDir() string {
	if dir := os.Getenv(CacheEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sentclass"
	}
	return filepath.Join(home, ".cache", "sentclass")
}

func checkpointPath(id string) string {
	return filepath.Join(CacheDir(), id+".ckpt.gob")
}

// Resolve loads the checkpoint for a model identifier. A cached
// checkpoint wins; otherwise a builtin architecture resolves with a bare
// vocabulary and no parameter data. Unknown identifiers fail with a
// ConfigError. Only a missing checkpoint file falls through to the
// builtin table; any other open failure surfaces so a broken cache is
// never mistaken for an unknown identifier.
func Resolve(id string) (*Checkpoint, error) {
	path := checkpointPath(id)
	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		var ckpt Checkpoint
		if err := gob.NewDecoder(file).Decode(&ckpt); err != nil {
			return nil, &errs.FileError{Path: path, Err: err}
		}
		return &ckpt, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, &errs.FileError{Path: path, Err: err}
	}

	arch, ok := builtins[id]
	if !ok {
		return nil, &errs.ConfigError{
			Field: "upstream_model",
			Err:   fmt.Errorf("identifier %q has no checkpoint and is not a builtin architecture", id),
		}
	}
	return &Checkpoint{Arch: arch, Vocab: vocab.New()}, nil
}

// Save persists a checkpoint under the model identifier.
func Save(id string, ckpt *Checkpoint) error {
	dir := CacheDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &errs.FileError{Path: dir, Err: err}
	}
	path := checkpointPath(id)
	file, err := os.Create(path)
	if err != nil {
		return &errs.FileError{Path: path, Err: err}
	}
	defer file.Close()
	if err := gob.NewEncoder(file).Encode(ckpt); err != nil {
		return &errs.FileError{Path: path, Err: err}
	}
	return nil
}
