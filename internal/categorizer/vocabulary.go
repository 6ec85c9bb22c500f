package categorizer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"civicdesk/backend/internal/models"
)

// Reserved vocabulary slots.
const (
	PadIndex = 0
	UnkIndex = 1
	PadToken = "<PAD>"
	UnkToken = "<UNK>"
)

var nonWord = regexp.MustCompile(`[^\w\s]`)

// Example is one labelled training text.
type Example struct {
	Text     string          `json:"text" yaml:"text"`
	Category models.Category `json:"category" yaml:"category"`
}

// Tokenize lower-cases text, strips punctuation and splits on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(nonWord.ReplaceAllString(strings.ToLower(text), ""))
}

// Vocabulary maps normalised tokens to dense indices. It is immutable once built
// and safe for concurrent reads.
type Vocabulary struct {
	tokens []string
	index  map[string]int
}

// BuildVocabulary ranks corpus tokens by frequency and keeps the top maxSize-2,
// breaking ties by first appearance.
func BuildVocabulary(corpus []Example, maxSize int) (*Vocabulary, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	if maxSize < 2 {
		return nil, fmt.Errorf("%w: vocabulary size %d leaves no room for reserved tokens", ErrInvalidConfig, maxSize)
	}

	counts := make(map[string]int)
	var order []string
	for _, ex := range corpus {
		for _, tok := range Tokenize(ex.Text) {
			if _, seen := counts[tok]; !seen {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}

	// order is first-seen order, so a stable sort keeps ties deterministic.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if keep := maxSize - 2; len(order) > keep {
		order = order[:keep]
	}

	return newVocabulary(append([]string{PadToken, UnkToken}, order...)), nil
}

// NewVocabulary rebuilds a vocabulary from its ordered token list, as persisted
// with a trained model.
func NewVocabulary(tokens []string) (*Vocabulary, error) {
	if len(tokens) < 2 || tokens[PadIndex] != PadToken || tokens[UnkIndex] != UnkToken {
		return nil, fmt.Errorf("%w: vocabulary must start with %s and %s", ErrCorruptModel, PadToken, UnkToken)
	}
	v := newVocabulary(append([]string(nil), tokens...))
	if len(v.index) != len(tokens) {
		return nil, fmt.Errorf("%w: vocabulary contains duplicate tokens", ErrCorruptModel)
	}
	return v, nil
}

func newVocabulary(tokens []string) *Vocabulary {
	index := make(map[string]int, len(tokens))
	for i, tok := range tokens {
		index[tok] = i
	}
	return &Vocabulary{tokens: tokens, index: index}
}

// Size is the number of indices including the reserved ones.
func (v *Vocabulary) Size() int { return len(v.tokens) }

// Index returns the token's index, or UnkIndex when it is out of vocabulary.
func (v *Vocabulary) Index(token string) int {
	if i, ok := v.index[token]; ok && i > UnkIndex {
		return i
	}
	return UnkIndex
}

// Tokens returns a copy of the ordered token list.
func (v *Vocabulary) Tokens() []string {
	return append([]string(nil), v.tokens...)
}

// WordIndex returns a copy of the token to index mapping.
func (v *Vocabulary) WordIndex() map[string]int {
	out := make(map[string]int, len(v.index))
	for k, i := range v.index {
		out[k] = i
	}
	return out
}

// MarshalJSON persists the vocabulary as its ordered token list.
func (v *Vocabulary) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.tokens)
}

// UnmarshalJSON restores a vocabulary written by MarshalJSON.
func (v *Vocabulary) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	restored, err := NewVocabulary(tokens)
	if err != nil {
		return err
	}
	*v = *restored
	return nil
}

// Encode maps text to exactly maxLen indices: unknown tokens become UnkIndex,
// short input is right-padded with PadIndex and long input is cut from the right.
func Encode(text string, vocab *Vocabulary, maxLen int) []int {
	if maxLen <= 0 {
		return []int{}
	}
	seq := make([]int, maxLen)
	for i, tok := range Tokenize(text) {
		if i == maxLen {
			break
		}
		seq[i] = vocab.Index(tok)
	}
	return seq
}
