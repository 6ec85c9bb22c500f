package categorizer

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/models"
)

// TrainConfig controls the network shape and the training loop.
type TrainConfig struct {
	MaxLen          int               `json:"maxLen" yaml:"max_len"`
	EmbeddingDim    int               `json:"embeddingDim" yaml:"embedding_dim"`
	HiddenUnits     int               `json:"hiddenUnits" yaml:"hidden_units"`
	DropoutRate     float64           `json:"dropoutRate" yaml:"dropout_rate"`
	LearningRate    float64           `json:"learningRate" yaml:"learning_rate"`
	BatchSize       int               `json:"batchSize" yaml:"batch_size"`
	Epochs          int               `json:"epochs" yaml:"epochs"`
	ValidationSplit float64           `json:"validationSplit" yaml:"validation_split"`
	Labels          []models.Category `json:"labels" yaml:"labels"`
	// Seed fixes weight initialisation, shuffling and dropout. Zero picks a random seed.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// DefaultTrainConfig returns the settings used by the trainer CLI.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		MaxLen:          config.DefaultMaxLen,
		EmbeddingDim:    config.DefaultEmbeddingDim,
		HiddenUnits:     config.DefaultHiddenUnits,
		DropoutRate:     config.DefaultDropoutRate,
		LearningRate:    config.DefaultLearningRate,
		BatchSize:       config.DefaultBatchSize,
		Epochs:          config.DefaultEpochs,
		ValidationSplit: config.DefaultValidationSplit,
		Labels:          append([]models.Category(nil), models.Categories...),
	}
}

func (c TrainConfig) validate() error {
	switch {
	case c.MaxLen <= 0, c.EmbeddingDim <= 0, c.HiddenUnits <= 0, c.BatchSize <= 0, c.Epochs <= 0:
		return fmt.Errorf("%w: dimensions, batch size and epochs must be positive", ErrInvalidConfig)
	case c.DropoutRate < 0 || c.DropoutRate >= 1:
		return fmt.Errorf("%w: dropout rate %v outside [0, 1)", ErrInvalidConfig, c.DropoutRate)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate must be positive", ErrInvalidConfig)
	case c.ValidationSplit < 0 || c.ValidationSplit >= 1:
		return fmt.Errorf("%w: validation split %v outside [0, 1)", ErrInvalidConfig, c.ValidationSplit)
	case len(c.Labels) == 0:
		return fmt.Errorf("%w: label set is empty", ErrInvalidConfig)
	}
	seen := make(map[models.Category]bool, len(c.Labels))
	for _, l := range c.Labels {
		if seen[l] {
			return fmt.Errorf("%w: duplicate label %s", ErrInvalidConfig, l)
		}
		seen[l] = true
	}
	return nil
}

// EpochMetrics are the averaged metrics of one pass over the training split.
type EpochMetrics struct {
	Epoch              int     `json:"epoch"`
	Loss               float64 `json:"loss"`
	Accuracy           float64 `json:"accuracy"`
	ValidationLoss     float64 `json:"valLoss,omitempty"`
	ValidationAccuracy float64 `json:"valAccuracy,omitempty"`
}

// TrainingReport summarises a training run.
type TrainingReport struct {
	TrainExamples      int            `json:"trainExamples"`
	ValidationExamples int            `json:"validationExamples"`
	Seed               uint64         `json:"seed"`
	Epochs             []EpochMetrics `json:"epochs"`
}

// Final returns the metrics of the last epoch.
func (r *TrainingReport) Final() EpochMetrics {
	if r == nil || len(r.Epochs) == 0 {
		return EpochMetrics{}
	}
	return r.Epochs[len(r.Epochs)-1]
}

type sample struct {
	seq   []int
	label int
}

// Train fits a classifier on corpus. The last ValidationSplit fraction of the
// corpus is held out for validation; at least one example is always trained on.
func Train(corpus []Example, vocab *Vocabulary, cfg TrainConfig) (*Model, *TrainingReport, error) {
	if len(corpus) == 0 {
		return nil, nil, ErrEmptyCorpus
	}
	if vocab == nil {
		return nil, nil, fmt.Errorf("%w: vocabulary is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	labelIndex := make(map[models.Category]int, len(cfg.Labels))
	for i, l := range cfg.Labels {
		labelIndex[l] = i
	}
	samples := make([]sample, len(corpus))
	for i, ex := range corpus {
		li, ok := labelIndex[ex.Category]
		if !ok {
			return nil, nil, fmt.Errorf("%w: example %d has label %q", ErrUnknownLabel, i, ex.Category)
		}
		samples[i] = sample{seq: Encode(ex.Text, vocab, cfg.MaxLen), label: li}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	trainN := int(float64(len(samples)) * (1 - cfg.ValidationSplit))
	if trainN < 1 {
		trainN = 1
	}
	train, val := samples[:trainN], samples[trainN:]

	weights := newWeights(vocab.Size(), cfg.EmbeddingDim, cfg.HiddenUnits, len(cfg.Labels), rng)
	opt := newAdam(cfg.LearningRate, weights.params())

	report := &TrainingReport{
		TrainExamples:      len(train),
		ValidationExamples: len(val),
		Seed:               seed,
		Epochs:             make([]EpochMetrics, 0, cfg.Epochs),
	}

	order := make([]int, len(train))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		var correct int
		for start := 0; start < len(order); start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, len(order))
			grad := weights.zerosLike()
			for _, idx := range order[start:end] {
				s := train[idx]
				act := weights.forward(s.seq, cfg.DropoutRate, rng)
				lossSum += crossEntropy(act.probs, s.label)
				if argmax(act.probs) == s.label {
					correct++
				}
				weights.backward(act, s.label, grad)
			}
			scale := 1 / float64(end-start)
			gp := grad.params()
			for _, g := range gp {
				for j := range g {
					g[j] *= scale
				}
			}
			opt.step(weights.params(), gp)
		}

		m := EpochMetrics{
			Epoch:    epoch,
			Loss:     lossSum / float64(len(train)),
			Accuracy: float64(correct) / float64(len(train)),
		}
		if len(val) > 0 {
			m.ValidationLoss, m.ValidationAccuracy = evaluate(weights, val)
		}
		report.Epochs = append(report.Epochs, m)
	}

	model := &Model{
		Meta: Metadata{
			Labels:         append([]models.Category(nil), cfg.Labels...),
			MaxLen:         cfg.MaxLen,
			EmbeddingDim:   cfg.EmbeddingDim,
			HiddenUnits:    cfg.HiddenUnits,
			VocabularySize: vocab.Size(),
			DropoutRate:    cfg.DropoutRate,
			TrainExamples:  len(train),
			TrainedAt:      time.Now().UTC(),
		},
		vocab:   vocab,
		weights: weights,
	}
	return model, report, nil
}

func evaluate(w *Weights, samples []sample) (loss, accuracy float64) {
	var correct int
	for _, s := range samples {
		act := w.forward(s.seq, 0, nil)
		loss += crossEntropy(act.probs, s.label)
		if argmax(act.probs) == s.label {
			correct++
		}
	}
	n := float64(len(samples))
	return loss / n, float64(correct) / n
}

func crossEntropy(probs []float64, label int) float64 {
	return -math.Log(math.Max(probs[label], 1e-7))
}
