// Package topic loads the secret-topic corpus that rounds draw from.
package topic

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var defaultCorpus []byte

// yamlCorpusFile is the top-level YAML structure for corpus files.
type yamlCorpusFile struct {
	Categories []yamlCategory `yaml:"categories"`
}

// yamlCategory is the YAML representation of a topic category.
type yamlCategory struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Topics []string `yaml:"topics"`
}

// Category groups related topics for operator-facing listings.
type Category struct {
	ID     string
	Name   string
	Topics []string
}

// Corpus is an immutable, de-duplicated topic list.
//
// Invariant: Topics() is non-empty and contains no empty or duplicate entries.
type Corpus struct {
	categories []Category
	topics     []string
}

// Topics returns the flattened, de-duplicated topic list in file order.
// Callers must not modify the returned slice.
func (c *Corpus) Topics() []string {
	return c.topics
}

// Categories returns the categories as loaded.
func (c *Corpus) Categories() []Category {
	return c.categories
}

// Len returns the number of distinct topics.
func (c *Corpus) Len() int {
	return len(c.topics)
}

// Default returns the corpus embedded in the binary.
//
// Postcondition: Returns a valid Corpus; panics if the embedded file is invalid.
func Default() *Corpus {
	c, err := LoadFromBytes(defaultCorpus)
	if err != nil {
		panic("topic: embedded corpus is invalid: " + err.Error())
	}
	return c
}

// LoadFromFile reads and validates a corpus YAML file.
//
// Precondition: path must point to a YAML corpus file.
// Postcondition: Returns a validated Corpus or a non-nil error.
func LoadFromFile(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topic file %s: %w", path, err)
	}
	c, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading topic file %s: %w", path, err)
	}
	return c, nil
}

// Load returns the corpus at path, or the embedded default when path is empty.
func Load(path string) (*Corpus, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFromFile(path)
}

// LoadFromBytes parses and validates a corpus from YAML bytes.
//
// Postcondition: Returns a validated Corpus or a non-nil error.
func LoadFromBytes(data []byte) (*Corpus, error) {
	var file yamlCorpusFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing topic YAML: %w", err)
	}

	corpus := &Corpus{}
	seen := make(map[string]bool)
	for i, yc := range file.Categories {
		if yc.ID == "" {
			return nil, fmt.Errorf("category %d: id must not be empty", i)
		}
		cat := Category{ID: yc.ID, Name: yc.Name}
		for j, raw := range yc.Topics {
			t := strings.TrimSpace(raw)
			if t == "" {
				return nil, fmt.Errorf("category %q: topic %d is empty", yc.ID, j)
			}
			cat.Topics = append(cat.Topics, t)
			if seen[t] {
				continue
			}
			seen[t] = true
			corpus.topics = append(corpus.topics, t)
		}
		corpus.categories = append(corpus.categories, cat)
	}

	if len(corpus.topics) == 0 {
		return nil, errors.New("topic corpus contains no topics")
	}
	return corpus, nil
}
