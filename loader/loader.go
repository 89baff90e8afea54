// Package loader collates dataset examples into shuffled mini-batch
// tensors ready for the encoder.
package loader

import (
	"math/rand"

	"github.com/golangast/sentclass/dataset"
	"github.com/golangast/sentclass/neural/tensor"
)

// Batch holds one mini-batch: token ids and attention masks shaped
// [batch, seq] and one-hot labels shaped [batch, classes].
type Batch struct {
	InputIDs      *tensor.Tensor
	AttentionMask *tensor.Tensor
	Labels        *tensor.Tensor
}

// Loader iterates a dataset in mini-batches. Each epoch reshuffles the
// example order when shuffling is enabled.
type Loader struct {
	ds        *dataset.Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand

	order []int
	pos   int
}

// New creates a loader over ds. Pass shuffle=true for training splits
// and false for evaluation so results stay deterministic.
func New(ds *dataset.Dataset, batchSize int, shuffle bool, seed int64) *Loader {
	if batchSize < 1 {
		batchSize = 1
	}
	order := make([]int, ds.Size())
	for i := range order {
		order[i] = i
	}
	return &Loader{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		order:     order,
	}
}

// Steps returns the number of batches per epoch, counting the final
// partial batch.
func (l *Loader) Steps() int {
	return (l.ds.Size() + l.batchSize - 1) / l.batchSize
}

// Reset rewinds to the start of the epoch, reshuffling if enabled.
func (l *Loader) Reset() {
	l.pos = 0
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

// Next collates the next mini-batch. It returns (nil, nil) at the end of
// the epoch.
func (l *Loader) Next() (*Batch, error) {
	if l.pos >= len(l.order) {
		return nil, nil
	}
	end := l.pos + l.batchSize
	if end > len(l.order) {
		end = len(l.order)
	}
	indices := l.order[l.pos:end]
	l.pos = end

	first, err := l.ds.At(indices[0])
	if err != nil {
		return nil, err
	}
	batch := len(indices)
	seq := len(first.InputIDs)
	classes := len(first.Label)

	ids := tensor.New([]int{batch, seq}, nil, false)
	mask := tensor.New([]int{batch, seq}, nil, false)
	labels := tensor.New([]int{batch, classes}, nil, false)

	for b, idx := range indices {
		ex := first
		if b > 0 {
			ex, err = l.ds.At(idx)
			if err != nil {
				return nil, err
			}
		}
		for s, id := range ex.InputIDs {
			ids.Data[b*seq+s] = float64(id)
		}
		for s, m := range ex.AttentionMask {
			mask.Data[b*seq+s] = float64(m)
		}
		copy(labels.Data[b*classes:(b+1)*classes], ex.Label)
	}
	return &Batch{InputIDs: ids, AttentionMask: mask, Labels: labels}, nil
}
