package categorizer_test

import (
	"civicdesk/backend/internal/categorizer"
	"civicdesk/backend/internal/models"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadCorpus_JSONTrainingData(t *testing.T) {
	path := writeFile(t, "dataset.json", `{"training_data":[
		{"text":"Water is not coming in my area","category":"Water"},
		{"text":"Stray dogs are creating problem","category":"Others"},
		{"text":"Street light not working","category":"street light"}
	]}`)

	corpus, err := categorizer.LoadCorpus(path)
	require.NoError(t, err)
	require.Len(t, corpus, 3)
	assert.Equal(t, models.CategoryWater, corpus[0].Category)
	assert.Equal(t, models.CategoryOther, corpus[1].Category)
	assert.Equal(t, models.CategoryStreetLight, corpus[2].Category)
}

func TestLoadCorpus_YAMLList(t *testing.T) {
	path := writeFile(t, "corpus.yaml", `
- text: Big pothole on the main road
  category: ROAD
- text: Garbage not collected for days
  category: garbage
`)

	corpus, err := categorizer.LoadCorpus(path)
	require.NoError(t, err)
	assert.Equal(t, []categorizer.Example{
		{Text: "Big pothole on the main road", Category: models.CategoryRoad},
		{Text: "Garbage not collected for days", Category: models.CategoryGarbage},
	}, corpus)
}

func TestLoadCorpus_Errors(t *testing.T) {
	_, err := categorizer.LoadCorpus(writeFile(t, "empty.json", `[]`))
	assert.ErrorIs(t, err, categorizer.ErrEmptyCorpus)

	_, err = categorizer.LoadCorpus(writeFile(t, "label.json", `[{"text":"noise at night","category":"NOISE"}]`))
	assert.ErrorIs(t, err, categorizer.ErrUnknownLabel)

	_, err = categorizer.LoadCorpus(writeFile(t, "blank.yaml", "- text: ''\n  category: ROAD\n"))
	assert.ErrorIs(t, err, categorizer.ErrInvalidConfig)

	_, err = categorizer.LoadCorpus(writeFile(t, "broken.json", `{"training_data": [`))
	assert.Error(t, err)
}
