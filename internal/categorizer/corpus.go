package categorizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"civicdesk/backend/internal/models"
	"gopkg.in/yaml.v3"
)

type corpusFile struct {
	TrainingData []rawExample `json:"training_data" yaml:"training_data"`
}

type rawExample struct {
	Text     string `json:"text" yaml:"text"`
	Category string `json:"category" yaml:"category"`
}

// LoadCorpus reads a training corpus from a JSON or YAML file. Both a bare list
// of {text, category} records and an object with a training_data list are accepted.
// Category names are case-insensitive; "Others" is read as OTHER.
func LoadCorpus(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	var raw []rawExample
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = decodeCorpus(data, yaml.Unmarshal)
	default:
		raw, err = decodeCorpus(data, json.Unmarshal)
	}
	if err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	return normaliseCorpus(raw)
}

func decodeCorpus(data []byte, unmarshal func([]byte, any) error) ([]rawExample, error) {
	var wrapped corpusFile
	if err := unmarshal(data, &wrapped); err == nil && len(wrapped.TrainingData) > 0 {
		return wrapped.TrainingData, nil
	}
	var list []rawExample
	if err := unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func normaliseCorpus(raw []rawExample) ([]Example, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyCorpus
	}
	out := make([]Example, 0, len(raw))
	for i, r := range raw {
		name := strings.TrimSpace(r.Category)
		if strings.EqualFold(name, "others") {
			name = string(models.CategoryOther)
		}
		name = strings.ReplaceAll(name, " ", "_")
		category, ok := models.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("%w: record %d has category %q", ErrUnknownLabel, i, r.Category)
		}
		if strings.TrimSpace(r.Text) == "" {
			return nil, fmt.Errorf("%w: record %d has empty text", ErrInvalidConfig, i)
		}
		out = append(out, Example{Text: r.Text, Category: category})
	}
	return out, nil
}
