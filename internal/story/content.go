package story

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/tatianab/castle-adventure/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed content/castle.yaml
var castleYAML []byte

// Content is the raw, unvalidated story as authored.
type Content struct {
	Title   string          `yaml:"title"`
	Start   string          `yaml:"start"`
	Scenes  []models.Scene  `yaml:"scenes"`
	Items   []models.Item   `yaml:"items"`
	Choices []models.Choice `yaml:"choices"`
	Endings []models.Ending `yaml:"endings"`
}

// Parse decodes YAML story content.
func Parse(data []byte) (*Content, error) {
	var c Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse story YAML: %w", err)
	}
	return &c, nil
}

// LoadFile reads story content from path.
func LoadFile(path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Castle returns the built-in castle adventure.
func Castle() *Content {
	c, err := Parse(castleYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads the story at path, or the built-in castle story when path is
// empty, then indexes and validates it.
func Load(path string) (*Graph, error) {
	content := Castle()
	if path != "" {
		var err error
		if content, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	g, err := NewGraph(content)
	if err != nil {
		return nil, err
	}
	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}
