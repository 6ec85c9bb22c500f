package categorizer

import "errors"

var (
	// ErrEmptyCorpus is returned when a vocabulary or model is built from zero examples.
	ErrEmptyCorpus = errors.New("categorizer: corpus has no examples")
	// ErrUnknownLabel is returned when a corpus example carries a label outside the model's label set.
	ErrUnknownLabel = errors.New("categorizer: label not in label set")
	// ErrInvalidConfig is returned for non-positive dimensions, bad rates or mismatched artifacts.
	ErrInvalidConfig = errors.New("categorizer: invalid configuration")
	// ErrCorruptModel is returned when a persisted artifact fails its dimension checks.
	ErrCorruptModel = errors.New("categorizer: corrupt model artifact")
	// ErrPredictionUnavailable is returned when no model is loaded and the keyword fallback is disabled.
	ErrPredictionUnavailable = errors.New("categorizer: prediction unavailable")
)
