package categorizer_test

import (
	"civicdesk/backend/internal/categorizer"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_PredictRanksAllLabels(t *testing.T) {
	model, _ := trainSeparable(t)

	for _, text := range []string{"garbage", "", "x", "completely unrelated words here"} {
		p := model.Predict(text)
		require.Len(t, p.Ranked, len(model.Meta.Labels))
		assert.Equal(t, categorizer.SourceModel, p.Source)
		assert.Equal(t, p.Ranked[0].Category, p.Category)
		assert.Equal(t, p.Ranked[0].Probability, p.Confidence)

		var sum float64
		for i, s := range p.Ranked {
			sum += s.Probability
			if i > 0 {
				assert.GreaterOrEqual(t, p.Ranked[i-1].Probability, s.Probability)
			}
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestModel_SaveAndLoadServeSamePredictions(t *testing.T) {
	model, _ := trainSeparable(t)
	dir := t.TempDir()

	require.NoError(t, model.Save(dir))
	assert.FileExists(t, filepath.Join(dir, categorizer.ArtifactFile))

	loaded, err := categorizer.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, model.Meta.Labels, loaded.Meta.Labels)
	assert.Equal(t, model.Meta.MaxLen, loaded.Meta.MaxLen)
	assert.Equal(t, model.Vocabulary().Tokens(), loaded.Vocabulary().Tokens())
	for _, text := range []string{"water pipe leaking", "deep pothole", "garbage pile", ""} {
		assert.Equal(t, model.Predict(text), loaded.Predict(text), text)
	}
}

func TestLoad_RejectsCorruptArtifacts(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"not json":        `{{{`,
		"missing weights": `{"metadata":{"maxLen":5},"vocabulary":["<PAD>","<UNK>"]}`,
		"bad vocabulary":  `{"metadata":{"maxLen":5},"vocabulary":["water"],"weights":{}}`,
		"short weights": `{"metadata":{"maxLen":5,"labels":["ROAD"],"vocabularySize":2,"embeddingDim":1,"hiddenUnits":1},
			"vocabulary":["<PAD>","<UNK>"],
			"weights":{"vocabSize":2,"embeddingDim":1,"hiddenUnits":1,"classes":1,
				"embedding":[0.1],"hidden":[0.1],"hiddenBias":[0],"output":[0.1],"outputBias":[0]}}`,
		"label mismatch": `{"metadata":{"maxLen":5,"labels":["ROAD","WATER"],"vocabularySize":2,"embeddingDim":1,"hiddenUnits":1},
			"vocabulary":["<PAD>","<UNK>"],
			"weights":{"vocabSize":2,"embeddingDim":1,"hiddenUnits":1,"classes":1,
				"embedding":[0.1,0.2],"hidden":[0.1],"hiddenBias":[0],"output":[0.1],"outputBias":[0]}}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := categorizer.Load(path)
			assert.ErrorIs(t, err, categorizer.ErrCorruptModel)
		})
	}

	_, err := categorizer.Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
