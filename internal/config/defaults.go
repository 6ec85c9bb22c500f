package config

import "time"

const (
	// Classifier training defaults
	DefaultMaxWords        = 100
	DefaultMaxLen          = 50
	DefaultEmbeddingDim    = 16
	DefaultHiddenUnits     = 16
	DefaultDropoutRate     = 0.5
	DefaultLearningRate    = 0.01
	DefaultBatchSize       = 4
	DefaultEpochs          = 50
	DefaultValidationSplit = 0.2

	// Serving
	KeywordMatchConfidence = 0.8
	DefaultMinConfidence   = 0.35
	MinPredictDescription  = 5

	// Listing
	DefaultPageSize     = 10
	DefaultUserPageSize = 20
	MaxPageSize         = 100
	RecentComplaints    = 10

	// Caching and sessions
	StatsCacheTTL   = 30 * time.Second
	DefaultTokenTTL = 7 * 24 * time.Hour
)
