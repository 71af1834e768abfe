// Package apmodel describes the Archaeological Prototyping structure that
// every run fills in: an ordered list of objects followed by an ordered list
// of arrows between them.
package apmodel

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Object is a node of the AP graph.
type Object struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Arrow is a directed relation between two objects.
type Arrow struct {
	Name        string `yaml:"name"`
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	Description string `yaml:"description"`
}

// Structure is the full model definition.
type Structure struct {
	Stage    string   `yaml:"stage"`
	Era      string   `yaml:"era"`
	Preamble string   `yaml:"preamble"`
	Future   string   `yaml:"future"`
	Objects  []Object `yaml:"objects"`
	Arrows   []Arrow  `yaml:"arrows"`
}

// ElementKind distinguishes objects from arrows.
type ElementKind string

const (
	KindObject ElementKind = "Object"
	KindArrow  ElementKind = "Arrow"
)

// Element is one unit of generation, in the order it must be generated.
type Element struct {
	Kind  ElementKind
	Name  string
	Arrow *Arrow
}

// Label is the identifier used in prompts, e.g. "Object: Institutions".
func (e Element) Label() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Name)
}

// Detail carries the arrow endpoints; empty for objects.
func (e Element) Detail() string {
	if e.Arrow == nil {
		return ""
	}
	return fmt.Sprintf("From '%s' to '%s'", e.Arrow.From, e.Arrow.To)
}

// Default returns the embedded 6-object / 12-arrow model.
func Default() (*Structure, error) {
	return Parse(defaultYAML)
}

// Load reads a structure from a YAML file; an empty path means Default.
func Load(path string) (*Structure, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("apmodel: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML structure.
func Parse(data []byte) (*Structure, error) {
	var s Structure
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("apmodel: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks names are unique and every arrow joins known objects.
func (s *Structure) Validate() error {
	if len(s.Objects) == 0 {
		return errors.New("apmodel: at least one object is required")
	}
	objects := make(map[string]bool, len(s.Objects))
	for i, o := range s.Objects {
		if strings.TrimSpace(o.Name) == "" {
			return fmt.Errorf("apmodel: object %d has no name", i)
		}
		if objects[o.Name] {
			return fmt.Errorf("apmodel: duplicate object %q", o.Name)
		}
		objects[o.Name] = true
	}
	arrows := make(map[string]bool, len(s.Arrows))
	for i, a := range s.Arrows {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("apmodel: arrow %d has no name", i)
		}
		if arrows[a.Name] {
			return fmt.Errorf("apmodel: duplicate arrow %q", a.Name)
		}
		arrows[a.Name] = true
		if !objects[a.From] {
			return fmt.Errorf("apmodel: arrow %q starts at unknown object %q", a.Name, a.From)
		}
		if !objects[a.To] {
			return fmt.Errorf("apmodel: arrow %q ends at unknown object %q", a.Name, a.To)
		}
	}
	return nil
}

// Elements lists objects first, then arrows, each in declaration order.
func (s *Structure) Elements() []Element {
	out := make([]Element, 0, len(s.Objects)+len(s.Arrows))
	for _, o := range s.Objects {
		out = append(out, Element{Kind: KindObject, Name: o.Name})
	}
	for i := range s.Arrows {
		a := s.Arrows[i]
		out = append(out, Element{Kind: KindArrow, Name: a.Name, Arrow: &a})
	}
	return out
}

// SystemPrompt renders the shared system message from the structure.
func (s *Structure) SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(s.Preamble))
	sb.WriteString("\n\n## Objects\n")
	for i, o := range s.Objects {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, o.Name, strings.TrimSpace(o.Description))
	}
	sb.WriteString("\n## Arrows\n")
	for i, a := range s.Arrows {
		fmt.Fprintf(&sb, "%d. %s: %s. (%s -> %s)\n", i+1, a.Name, a.Description, a.From, a.To)
	}
	if f := strings.TrimSpace(s.Future); f != "" {
		sb.WriteString("\n## ")
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	return sb.String()
}
