// Package tokenizer converts raw sentences into fixed-length token-id
// sequences with attention masks, following the boundary-token convention
// of the model hub: [CLS] sentence [SEP], padded with [PAD].
package tokenizer

import (
	"errors"
	"strings"
	"unicode"

	"github.com/golangast/sentclass/neural/vocab"
)

// Tokenizer encodes text against a model-bound vocabulary.
type Tokenizer struct {
	Vocabulary *vocab.Vocabulary
}

// New creates a tokenizer over the given vocabulary.
func New(vocabulary *vocab.Vocabulary) (*Tokenizer, error) {
	if vocabulary == nil {
		return nil, errors.New("vocabulary cannot be nil")
	}
	return &Tokenizer{Vocabulary: vocabulary}, nil
}

// Split lowercases text and splits it into word and punctuation tokens.
func Split(text string) []string {
	var tokens []string
	runes := []rune(strings.ToLower(text))
	i := 0
	for i < len(runes) {
		r := runes[i]
		if unicode.IsSpace(r) {
			i++
			continue
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			tokens = append(tokens, string(r))
			i++
			continue
		}
		start := i
		for i < len(runes) && !unicode.IsSpace(runes[i]) && !unicode.IsPunct(runes[i]) && !unicode.IsSymbol(runes[i]) {
			i++
		}
		tokens = append(tokens, string(runes[start:i]))
	}
	return tokens
}

// Encode produces a token-id sequence and attention mask, both exactly
// maxLen long. The sentence is wrapped in [CLS]/[SEP], truncated when the
// natural tokenization exceeds maxLen and padded when shorter. Mask
// entries are 1 for real tokens (boundary tokens included) and 0 for
// padding.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int, err error) {
	if maxLen <= 2 {
		return nil, nil, errors.New("maxLen leaves no room for sentence tokens")
	}

	words := Split(text)
	// truncate so [CLS] and [SEP] always fit
	if len(words) > maxLen-2 {
		words = words[:maxLen-2]
	}

	ids = make([]int, 0, maxLen)
	ids = append(ids, vocab.ClsID)
	for _, w := range words {
		ids = append(ids, t.Vocabulary.ID(w))
	}
	ids = append(ids, vocab.SepID)

	mask = make([]int, maxLen)
	for i := range ids {
		mask[i] = 1
	}
	for len(ids) < maxLen {
		ids = append(ids, vocab.PadID)
	}
	return ids, mask, nil
}

// Build grows a vocabulary from a corpus of sentences.
func Build(v *vocab.Vocabulary, sentences []string) {
	for _, s := range sentences {
		for _, w := range Split(s) {
			v.Add(w)
		}
	}
}
