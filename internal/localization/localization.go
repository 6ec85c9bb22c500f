// Package localization loads message catalogues from JSON files and renders
// localized strings with named placeholders.
package localization

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultLanguage is used when a key is missing in the requested language.
const DefaultLanguage = "en"

// Localizer holds one catalogue per language.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// NewLocalizer loads every <lang>.json file in dir.
func NewLocalizer(dir string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		l.translations[strings.TrimSuffix(file.Name(), ".json")] = translations
	}
	if len(l.translations) == 0 {
		return nil, fmt.Errorf("no localization files in %s", dir)
	}

	return l, nil
}

// NewFromMap builds a Localizer from in-memory catalogues.
func NewFromMap(translations map[string]map[string]string) *Localizer {
	return &Localizer{translations: translations}
}

// GetString returns the string for key in lang, falling back to the default
// language and then to the key itself.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}

	if lang != DefaultLanguage {
		if fallback, ok := l.translations[DefaultLanguage]; ok {
			if value, ok := fallback[key]; ok {
				return value
			}
		}
	}

	return key
}

// Format renders key with {name} placeholders replaced from args.
func (l *Localizer) Format(lang, key string, args map[string]string) string {
	text := l.GetString(lang, key)
	if len(args) == 0 {
		return text
	}
	pairs := make([]string, 0, len(args)*2)
	for name, value := range args {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Languages lists the loaded languages.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.translations))
	for lang := range l.translations {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Has reports whether lang was loaded.
func (l *Localizer) Has(lang string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.translations[lang]
	return ok
}
