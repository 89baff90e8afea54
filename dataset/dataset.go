// Package dataset adapts a CSV of (sentence, label) rows into model-ready
// encoded examples: fixed-length token ids, attention masks and one-hot
// label vectors.
package dataset

import (
	"os"

	"github.com/gocarina/gocsv"

	"github.com/golangast/sentclass/config"
	"github.com/golangast/sentclass/errs"
	"github.com/golangast/sentclass/hub"
	"github.com/golangast/sentclass/neural/tokenizer"
)

type row struct {
	Sentence string `csv:"sentence"`
	Label    string `csv:"label"`
}

// Example is one encoded row. InputIDs and AttentionMask are exactly
// MaxSeqLen long; Label is a one-hot vector of length NumClasses.
type Example struct {
	InputIDs      []int
	AttentionMask []int
	Label         []float64
}

// Dataset is a fixed-size, randomly indexable collection of encoded
// examples. It is read-only after construction and safe for concurrent
// reads.
type Dataset struct {
	rows       []row
	labels     map[string]int
	tok        *tokenizer.Tokenizer
	maxSeqLen  int
	numClasses int
}

// New loads the whole CSV into memory and binds a tokenizer to the
// configured upstream model. The file needs a header row with "sentence"
// and "label" columns.
func New(sourcePath string, hp config.Hyperparameters) (*Dataset, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}

	file, err := os.Open(sourcePath)
	if err != nil {
		return nil, &errs.FileError{Path: sourcePath, Err: err}
	}
	defer file.Close()

	var rows []row
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, &errs.FileError{Path: sourcePath, Err: err}
	}

	ckpt, err := hub.Resolve(hp.UpstreamModel)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.New(ckpt.Vocab)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]int, len(hp.Classes))
	for i, name := range hp.Classes {
		labels[name] = i
	}

	return &Dataset{
		rows:       rows,
		labels:     labels,
		tok:        tok,
		maxSeqLen:  hp.MaxSeqLen,
		numClasses: hp.NumClasses,
	}, nil
}

// Size returns the number of rows loaded.
func (d *Dataset) Size() int { return len(d.rows) }

// At encodes the row at index and returns it. Examples are constructed
// fresh on every call; nothing is cached. A label outside the configured
// vocabulary is a hard failure since a mislabeled row means the dataset
// is corrupt.
func (d *Dataset) At(index int) (Example, error) {
	if index < 0 || index >= len(d.rows) {
		return Example{}, &errs.IndexError{Index: index, Size: len(d.rows)}
	}
	r := d.rows[index]

	classIndex, ok := d.labels[r.Label]
	if !ok {
		return Example{}, &errs.UnknownLabelError{Label: r.Label}
	}
	oneHot := make([]float64, d.numClasses)
	oneHot[classIndex] = 1.0

	ids, mask, err := d.tok.Encode(r.Sentence, d.maxSeqLen)
	if err != nil {
		return Example{}, err
	}
	return Example{InputIDs: ids, AttentionMask: mask, Label: oneHot}, nil
}

// Sentences returns the raw sentence column, used when building a
// vocabulary for a fresh checkpoint.
func (d *Dataset) Sentences() []string {
	out := make([]string, len(d.rows))
	for i, r := range d.rows {
		out[i] = r.Sentence
	}
	return out
}
