// Package categorizer maps free-text complaint descriptions to a category,
// either with a trained bag-of-words network or with keyword rules.
package categorizer

import (
	"time"

	"civicdesk/backend/internal/models"

	"go.uber.org/zap"
)

// Service is the serving facade. It prefers the loaded model and falls back to
// keyword rules when no model is present or the model is unsure.
type Service struct {
	model           *Model
	keywordFallback bool
	minConfidence   float64
	logger          *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithModel sets the trained model. A nil model leaves the service keyword-only.
func WithModel(m *Model) Option {
	return func(s *Service) { s.model = m }
}

// WithKeywordFallback enables or disables the keyword rules.
func WithKeywordFallback(enabled bool) Option {
	return func(s *Service) { s.keywordFallback = enabled }
}

// WithMinConfidence sets the model confidence below which a keyword match wins.
func WithMinConfidence(c float64) Option {
	return func(s *Service) { s.minConfidence = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService builds a Service. The keyword fallback is on by default.
func NewService(opts ...Option) *Service {
	s := &Service{keywordFallback: true, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Categorize predicts a category for text.
func (s *Service) Categorize(text string) (Prediction, error) {
	if s.model == nil {
		if !s.keywordFallback {
			return Prediction{}, ErrPredictionUnavailable
		}
		return KeywordPrediction(text), nil
	}

	p := s.model.Predict(text)
	if s.keywordFallback && p.Confidence < s.minConfidence {
		if kw := KeywordPrediction(text); kw.Category != models.CategoryOther {
			s.logger.Debug("low-confidence prediction replaced by keyword match",
				zap.String("model_category", string(p.Category)),
				zap.Float64("model_confidence", p.Confidence),
				zap.String("keyword_category", string(kw.Category)))
			return kw, nil
		}
	}
	return p, nil
}

// Info describes the serving configuration.
type Info struct {
	Labels          []models.Category `json:"labels"`
	Source          Source            `json:"source"`
	KeywordFallback bool              `json:"keywordFallback"`
	MaxLen          int               `json:"maxLen,omitempty"`
	VocabularySize  int               `json:"vocabularySize,omitempty"`
	EmbeddingDim    int               `json:"embeddingDim,omitempty"`
	TrainedAt       *time.Time        `json:"trainedAt,omitempty"`
}

// Info reports the labels and, when a model is loaded, its shape.
func (s *Service) Info() Info {
	info := Info{
		Labels:          append([]models.Category(nil), models.Categories...),
		Source:          SourceKeyword,
		KeywordFallback: s.keywordFallback,
	}
	if s.model != nil {
		trainedAt := s.model.Meta.TrainedAt
		info.Labels = append([]models.Category(nil), s.model.Meta.Labels...)
		info.Source = SourceModel
		info.MaxLen = s.model.Meta.MaxLen
		info.VocabularySize = s.model.Meta.VocabularySize
		info.EmbeddingDim = s.model.Meta.EmbeddingDim
		info.TrainedAt = &trainedAt
	}
	return info
}
