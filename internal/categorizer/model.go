package categorizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"civicdesk/backend/internal/models"
)

// ArtifactFile is the file name used when a model is saved into a directory.
const ArtifactFile = "model.json"

// Source tells which path produced a prediction.
type Source string

const (
	SourceModel   Source = "model"
	SourceKeyword Source = "keyword"
)

// Score is one category's probability.
type Score struct {
	Category    models.Category `json:"category"`
	Probability float64         `json:"probability"`
}

// Prediction is the categorizer's answer for one text.
type Prediction struct {
	Category   models.Category `json:"category"`
	Confidence float64         `json:"confidence"`
	Ranked     []Score         `json:"ranked"`
	Source     Source          `json:"source"`
}

// Metadata describes a trained model and is persisted with it.
type Metadata struct {
	Labels         []models.Category `json:"labels"`
	MaxLen         int               `json:"maxLen"`
	EmbeddingDim   int               `json:"embeddingDim"`
	HiddenUnits    int               `json:"hiddenUnits"`
	VocabularySize int               `json:"vocabularySize"`
	DropoutRate    float64           `json:"dropoutRate"`
	TrainExamples  int               `json:"trainExamples"`
	TrainedAt      time.Time         `json:"trainedAt"`
}

// Model is a trained classifier bundled with the vocabulary it was trained on.
// It is read-only after construction and safe for concurrent use.
type Model struct {
	Meta    Metadata
	vocab   *Vocabulary
	weights *Weights
}

// Vocabulary returns the model's vocabulary.
func (m *Model) Vocabulary() *Vocabulary { return m.vocab }

// Predict encodes text and returns the most probable category together with
// every category ranked by descending probability.
func (m *Model) Predict(text string) Prediction {
	seq := Encode(text, m.vocab, m.Meta.MaxLen)
	probs := m.weights.forward(seq, 0, nil).probs

	ranked := make([]Score, len(probs))
	for i, p := range probs {
		ranked[i] = Score{Category: m.Meta.Labels[i], Probability: p}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})

	return Prediction{
		Category:   ranked[0].Category,
		Confidence: ranked[0].Probability,
		Ranked:     ranked,
		Source:     SourceModel,
	}
}

type artifact struct {
	Metadata   Metadata    `json:"metadata"`
	Vocabulary *Vocabulary `json:"vocabulary"`
	Weights    *Weights    `json:"weights"`
}

// Save writes the model as a single JSON artifact. When path is a directory the
// artifact is written to path/model.json.
func (m *Model) Save(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ArtifactFile)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	data, err := json.Marshal(artifact{Metadata: m.Meta, Vocabulary: m.vocab, Weights: m.weights})
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads an artifact written by Save and checks its dimensions.
func Load(path string) (*Model, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ArtifactFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		if errors.Is(err, ErrCorruptModel) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	if a.Vocabulary == nil || a.Weights == nil {
		return nil, fmt.Errorf("%w: missing vocabulary or weights", ErrCorruptModel)
	}
	if err := a.Weights.validate(); err != nil {
		return nil, err
	}

	meta := a.Metadata
	switch {
	case meta.MaxLen <= 0:
		return nil, fmt.Errorf("%w: maxLen must be positive", ErrCorruptModel)
	case a.Vocabulary.Size() != a.Weights.VocabSize || meta.VocabularySize != a.Weights.VocabSize:
		return nil, fmt.Errorf("%w: vocabulary size %d does not match embedding rows %d",
			ErrCorruptModel, a.Vocabulary.Size(), a.Weights.VocabSize)
	case len(meta.Labels) != a.Weights.Classes:
		return nil, fmt.Errorf("%w: %d labels for %d output units", ErrCorruptModel, len(meta.Labels), a.Weights.Classes)
	case meta.EmbeddingDim != a.Weights.EmbeddingDim || meta.HiddenUnits != a.Weights.HiddenUnits:
		return nil, fmt.Errorf("%w: metadata dimensions disagree with weights", ErrCorruptModel)
	}

	return &Model{Meta: meta, vocab: a.Vocabulary, weights: a.Weights}, nil
}
