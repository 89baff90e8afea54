// Package config holds the immutable hyperparameter record shared by the
// dataset adapter and the training module. The record is owned by the
// training driver; both components hold read-only copies.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/golangast/sentclass/errs"
)

// Defaults matching the observed sentiment fine-tuning setup.
const (
	DefaultMaxSeqLen   = 128
	DefaultWarmupSteps = 5
	DefaultBatchSize   = 32
)

// DefaultClasses is the sentiment label vocabulary. Index in the slice is
// the class index.
var DefaultClasses = []string{"positive", "negative", "neutral"}

// Hyperparameters configures both the dataset adapter and the training
// module. Construct it through Load or fill it literally in tests; treat it
// as read-only afterwards.
type Hyperparameters struct {
	// UpstreamModel is the model hub identifier of the pretrained encoder.
	UpstreamModel string `yaml:"upstream_model"`
	// NumClasses is the size of the classification head, at least 2.
	NumClasses int `yaml:"num_classes"`
	// Classes is the ordered label vocabulary; position = class index.
	// Defaults to DefaultClasses when empty.
	Classes []string `yaml:"classes"`

	LR          float64 `yaml:"lr"`
	WeightDecay float64 `yaml:"weight_decay"`
	Epochs      int     `yaml:"epochs"`
	BatchSize   int     `yaml:"batch_size"`
	MaxSeqLen   int     `yaml:"max_seq_len"`
	// WarmupSteps is the linear warmup length of the LR schedule. The
	// decay horizon is supplied separately by the driver, so epochs and
	// steps are never conflated here.
	WarmupSteps int `yaml:"warmup_steps"`
	// Freeze disables gradient updates for everything except the
	// classification head.
	Freeze bool `yaml:"freeze"`
}

// Load reads hyperparameters from a YAML file, applies SENTCLASS_*
// environment overrides and validates the result.
func Load(path string) (Hyperparameters, error) {
	var hp Hyperparameters
	raw, err := os.ReadFile(path)
	if err != nil {
		return hp, &errs.FileError{Path: path, Err: err}
	}
	if err := yaml.Unmarshal(raw, &hp); err != nil {
		return hp, &errs.FileError{Path: path, Err: err}
	}
	hp.applyEnv()
	hp.applyDefaults()
	if err := hp.Validate(); err != nil {
		return hp, err
	}
	return hp, nil
}

func (hp *Hyperparameters) applyEnv() {
	if v := os.Getenv("SENTCLASS_MODEL"); v != "" {
		hp.UpstreamModel = v
	}
	if v := os.Getenv("SENTCLASS_LR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			hp.LR = f
		}
	}
	if v := os.Getenv("SENTCLASS_EPOCHS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			hp.Epochs = n
		}
	}
	if v := os.Getenv("SENTCLASS_FREEZE"); v != "" {
		hp.Freeze = v == "true"
	}
}

func (hp *Hyperparameters) applyDefaults() {
	if len(hp.Classes) == 0 {
		hp.Classes = append([]string(nil), DefaultClasses...)
	}
	if hp.NumClasses == 0 {
		hp.NumClasses = len(hp.Classes)
	}
	if hp.MaxSeqLen == 0 {
		hp.MaxSeqLen = DefaultMaxSeqLen
	}
	if hp.WarmupSteps == 0 {
		hp.WarmupSteps = DefaultWarmupSteps
	}
	if hp.BatchSize == 0 {
		hp.BatchSize = DefaultBatchSize
	}
}

// Validate checks internal consistency. The class list must line up with
// the configured head size.
func (hp Hyperparameters) Validate() error {
	if strings.TrimSpace(hp.UpstreamModel) == "" {
		return &errs.ConfigError{Field: "upstream_model", Err: fmt.Errorf("missing model identifier")}
	}
	if hp.NumClasses < 2 {
		return &errs.ConfigError{Field: "num_classes", Err: fmt.Errorf("need at least 2 classes, got %d", hp.NumClasses)}
	}
	if len(hp.Classes) != hp.NumClasses {
		return &errs.ConfigError{Field: "classes", Err: fmt.Errorf("%d class names for %d classes", len(hp.Classes), hp.NumClasses)}
	}
	if hp.LR <= 0 {
		return &errs.ConfigError{Field: "lr", Err: fmt.Errorf("learning rate must be positive, got %g", hp.LR)}
	}
	if hp.WeightDecay < 0 {
		return &errs.ConfigError{Field: "weight_decay", Err: fmt.Errorf("weight decay must not be negative, got %g", hp.WeightDecay)}
	}
	if hp.Epochs <= 0 {
		return &errs.ConfigError{Field: "epochs", Err: fmt.Errorf("epochs must be positive, got %d", hp.Epochs)}
	}
	if hp.BatchSize < 1 {
		return &errs.ConfigError{Field: "batch_size", Err: fmt.Errorf("batch size must be at least 1, got %d", hp.BatchSize)}
	}
	if hp.MaxSeqLen <= 2 {
		return &errs.ConfigError{Field: "max_seq_len", Err: fmt.Errorf("sequence length %d leaves no room for tokens", hp.MaxSeqLen)}
	}
	return nil
}
