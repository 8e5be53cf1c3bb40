// Package catalog holds the immutable registry of document tools.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/doctools/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultActionLabel is used for tools whose definition carries no action text.
const DefaultActionLabel = "Process"

// ErrToolNotFound is returned by callers that treat an unknown tool id as an error.
var ErrToolNotFound = errors.New("tool not found")

//go:embed tools.yaml
var embeddedTools []byte

// Section is a titled group of tools, as shown on the landing page.
type Section struct {
	Title string        `json:"title"`
	Tools []models.Tool `json:"tools"`
}

// Catalog is a read-only tool registry. It has no mutation API once built.
type Catalog struct {
	tools    []models.Tool
	byID     map[string]int
	sections []Section
}

type document struct {
	Sections []struct {
		Title string        `yaml:"title"`
		Tools []models.Tool `yaml:"tools"`
	} `yaml:"sections"`
}

// Default returns the process-wide catalog built from the embedded tool list.
var Default = sync.OnceValue(func() *Catalog {
	c, err := Load(bytes.NewReader(embeddedTools))
	if err != nil {
		panic(fmt.Sprintf("catalog: invalid embedded tool list: %v", err))
	}
	return c
})

// Load parses and validates a YAML tool document.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]int)}
	for _, sec := range doc.Sections {
		section := Section{Title: sec.Title}
		for _, t := range sec.Tools {
			t.Section = sec.Title
			if t.ActionLabel == "" {
				t.ActionLabel = DefaultActionLabel
			}
			if err := validate(t); err != nil {
				return nil, err
			}
			if _, dup := c.byID[t.ID]; dup {
				return nil, fmt.Errorf("duplicate tool id %q", t.ID)
			}
			c.byID[t.ID] = len(c.tools)
			c.tools = append(c.tools, t)
			section.Tools = append(section.Tools, t)
		}
		c.sections = append(c.sections, section)
	}

	if len(c.tools) == 0 {
		return nil, errors.New("catalog has no tools")
	}
	return c, nil
}

func validate(t models.Tool) error {
	if t.ID == "" {
		return errors.New("tool with empty id")
	}
	if t.Name == "" {
		return fmt.Errorf("tool %q: empty name", t.ID)
	}
	if !t.Category.Valid() {
		return fmt.Errorf("tool %q: unknown category %q", t.ID, t.Category)
	}
	if t.OutputFormat == "" {
		return fmt.Errorf("tool %q: empty output format", t.ID)
	}
	if len(t.InputFormats) == 0 {
		return fmt.Errorf("tool %q: no input formats", t.ID)
	}
	for _, ext := range t.InputFormats {
		if len(ext) < 2 || !strings.HasPrefix(ext, ".") || ext != strings.ToLower(ext) {
			return fmt.Errorf("tool %q: input format %q must be a lowercase extension starting with '.'", t.ID, ext)
		}
	}
	return nil
}

// Lookup returns the tool with the given id.
func (c *Catalog) Lookup(id string) (models.Tool, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.Tool{}, false
	}
	return c.tools[i].Clone(), true
}

// Tools returns every tool in declaration order.
func (c *Catalog) Tools() []models.Tool {
	out := make([]models.Tool, len(c.tools))
	for i, t := range c.tools {
		out[i] = t.Clone()
	}
	return out
}

// Sections returns the tools grouped by landing-page section.
func (c *Catalog) Sections() []Section {
	out := make([]Section, len(c.sections))
	for i, s := range c.sections {
		tools := make([]models.Tool, len(s.Tools))
		for j, t := range s.Tools {
			tools[j] = t.Clone()
		}
		out[i] = Section{Title: s.Title, Tools: tools}
	}
	return out
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	return len(c.tools)
}
