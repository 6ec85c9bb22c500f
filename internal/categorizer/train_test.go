package categorizer_test

import (
	"civicdesk/backend/internal/categorizer"
	"civicdesk/backend/internal/models"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separableCorpus() []categorizer.Example {
	return []categorizer.Example{
		{Text: "water supply stopped", Category: models.CategoryWater},
		{Text: "no water since morning", Category: models.CategoryWater},
		{Text: "water pipe leaking", Category: models.CategoryWater},
		{Text: "dirty water tap", Category: models.CategoryWater},
		{Text: "pothole on road", Category: models.CategoryRoad},
		{Text: "road surface broken", Category: models.CategoryRoad},
		{Text: "deep pothole near junction", Category: models.CategoryRoad},
		{Text: "road cracks everywhere", Category: models.CategoryRoad},
		{Text: "garbage not collected", Category: models.CategoryGarbage},
		{Text: "garbage bins overflowing", Category: models.CategoryGarbage},
		{Text: "garbage dumped on corner", Category: models.CategoryGarbage},
		{Text: "smelly garbage pile", Category: models.CategoryGarbage},
	}
}

func testConfig() categorizer.TrainConfig {
	cfg := categorizer.DefaultTrainConfig()
	cfg.MaxLen = 6
	cfg.EmbeddingDim = 8
	cfg.HiddenUnits = 12
	cfg.DropoutRate = 0
	cfg.LearningRate = 0.05
	cfg.Epochs = 150
	cfg.ValidationSplit = 0
	cfg.Labels = []models.Category{models.CategoryWater, models.CategoryRoad, models.CategoryGarbage}
	cfg.Seed = 42
	return cfg
}

func trainSeparable(t *testing.T) (*categorizer.Model, *categorizer.TrainingReport) {
	t.Helper()
	corpus := separableCorpus()
	vocab, err := categorizer.BuildVocabulary(corpus, 100)
	require.NoError(t, err)
	model, report, err := categorizer.Train(corpus, vocab, testConfig())
	require.NoError(t, err)
	return model, report
}

func TestTrain_EmptyCorpus(t *testing.T) {
	vocab, err := categorizer.BuildVocabulary(separableCorpus(), 100)
	require.NoError(t, err)

	_, _, err = categorizer.Train(nil, vocab, testConfig())
	assert.ErrorIs(t, err, categorizer.ErrEmptyCorpus)
}

func TestTrain_UnknownLabelIsFatal(t *testing.T) {
	corpus := append(separableCorpus(), categorizer.Example{Text: "power cut", Category: models.CategoryElectricity})
	vocab, err := categorizer.BuildVocabulary(corpus, 100)
	require.NoError(t, err)

	model, report, err := categorizer.Train(corpus, vocab, testConfig())
	assert.ErrorIs(t, err, categorizer.ErrUnknownLabel)
	assert.Nil(t, model)
	assert.Nil(t, report)
}

func TestTrain_InvalidConfig(t *testing.T) {
	corpus := separableCorpus()
	vocab, err := categorizer.BuildVocabulary(corpus, 100)
	require.NoError(t, err)

	mutations := map[string]func(*categorizer.TrainConfig){
		"zero max len":       func(c *categorizer.TrainConfig) { c.MaxLen = 0 },
		"negative embedding": func(c *categorizer.TrainConfig) { c.EmbeddingDim = -1 },
		"dropout of one":     func(c *categorizer.TrainConfig) { c.DropoutRate = 1 },
		"zero learning rate": func(c *categorizer.TrainConfig) { c.LearningRate = 0 },
		"validation split":   func(c *categorizer.TrainConfig) { c.ValidationSplit = 1 },
		"no labels":          func(c *categorizer.TrainConfig) { c.Labels = nil },
		"duplicate labels": func(c *categorizer.TrainConfig) {
			c.Labels = []models.Category{models.CategoryRoad, models.CategoryRoad}
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			_, _, err := categorizer.Train(corpus, vocab, cfg)
			assert.ErrorIs(t, err, categorizer.ErrInvalidConfig)
		})
	}

	_, _, err = categorizer.Train(corpus, nil, testConfig())
	assert.ErrorIs(t, err, categorizer.ErrInvalidConfig)
}

func TestTrain_SingleExampleDoesNotCrash(t *testing.T) {
	corpus := []categorizer.Example{{Text: "water leak", Category: models.CategoryWater}}
	vocab, err := categorizer.BuildVocabulary(corpus, 100)
	require.NoError(t, err)

	cfg := categorizer.DefaultTrainConfig()
	cfg.Epochs = 3
	cfg.Seed = 7

	model, report, err := categorizer.Train(corpus, vocab, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TrainExamples)
	assert.Equal(t, 0, report.ValidationExamples)
	assert.Len(t, report.Epochs, 3)

	p := model.Predict("anything at all")
	assert.Len(t, p.Ranked, len(models.Categories))
}

func TestTrain_ValidationSplitTakesTail(t *testing.T) {
	corpus := separableCorpus()
	vocab, err := categorizer.BuildVocabulary(corpus, 100)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Epochs = 2
	cfg.ValidationSplit = 0.25

	_, report, err := categorizer.Train(corpus, vocab, cfg)
	require.NoError(t, err)
	assert.Equal(t, 9, report.TrainExamples)
	assert.Equal(t, 3, report.ValidationExamples)
	for _, m := range report.Epochs {
		assert.False(t, math.IsNaN(m.ValidationLoss))
		assert.GreaterOrEqual(t, m.ValidationAccuracy, 0.0)
		assert.LessOrEqual(t, m.ValidationAccuracy, 1.0)
	}
}

func TestTrain_LearnsSeparableCorpus(t *testing.T) {
	model, report := trainSeparable(t)

	require.Len(t, report.Epochs, 150)
	assert.Less(t, report.Final().Loss, report.Epochs[0].Loss, "loss should go down")
	assert.GreaterOrEqual(t, report.Final().Accuracy, 0.9)

	assert.Equal(t, models.CategoryWater, model.Predict("water supply stopped").Category)
	assert.Equal(t, models.CategoryRoad, model.Predict("pothole on road").Category)
	assert.Equal(t, models.CategoryGarbage, model.Predict("garbage not collected").Category)
}

func TestTrain_SeedMakesRunsReproducible(t *testing.T) {
	a, reportA := trainSeparable(t)
	b, reportB := trainSeparable(t)

	assert.Equal(t, reportA.Epochs, reportB.Epochs)
	assert.Equal(t, a.Predict("water on the road").Ranked, b.Predict("water on the road").Ranked)
}

func TestTrainingReport_FinalOnEmpty(t *testing.T) {
	var r *categorizer.TrainingReport
	assert.Equal(t, categorizer.EpochMetrics{}, r.Final())
}
