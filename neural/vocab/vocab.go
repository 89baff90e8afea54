// Package vocab implements the token vocabulary bound to a pretrained
// model identifier. The special tokens occupy fixed low ids so checkpoints
// stay compatible across vocabulary rebuilds.
package vocab

// Special token ids.
const (
	PadID = 0
	UnkID = 1
	ClsID = 2
	SepID = 3
)

// Special token strings.
const (
	PadToken = "[PAD]"
	UnkToken = "[UNK]"
	ClsToken = "[CLS]"
	SepToken = "[SEP]"
)

// Vocabulary maps tokens to ids and back. Fields are exported for gob
// serialization inside hub checkpoints.
type Vocabulary struct {
	WordToID map[string]int
	IDToWord []string
}

// New creates a vocabulary holding only the special tokens.
func New() *Vocabulary {
	v := &Vocabulary{WordToID: make(map[string]int)}
	for _, tok := range []string{PadToken, UnkToken, ClsToken, SepToken} {
		v.Add(tok)
	}
	return v
}

// Add inserts a token if absent and returns its id.
func (v *Vocabulary) Add(token string) int {
	if id, ok := v.WordToID[token]; ok {
		return id
	}
	id := len(v.IDToWord)
	v.WordToID[token] = id
	v.IDToWord = append(v.IDToWord, token)
	return id
}

// ID returns the id for a token, falling back to the unknown token.
func (v *Vocabulary) ID(token string) int {
	if id, ok := v.WordToID[token]; ok {
		return id
	}
	return UnkID
}

// Word returns the token for an id, or the unknown token when the id is
// out of range.
func (v *Vocabulary) Word(id int) string {
	if id < 0 || id >= len(v.IDToWord) {
		return UnkToken
	}
	return v.IDToWord[id]
}

// Len returns the vocabulary size.
func (v *Vocabulary) Len() int { return len(v.IDToWord) }
