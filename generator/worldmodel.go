package generator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrWorldFrozen is returned when a frozen world model is mutated.
var ErrWorldFrozen = errors.New("world model is frozen")

// ElementResult is the final content of one generated object.
type ElementResult struct {
	Name     string
	Content  string
	Produced bool
}

// Relation is a generated arrow between two objects.
type Relation struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Kind     string `json:"type"`
	Content  string `json:"definition"`
	Produced bool   `json:"-"`
}

// WorldModel accumulates a run's generated elements in insertion order.
// It is owned by a single run and is not safe for concurrent mutation.
type WorldModel struct {
	Topic  string
	Stage  string
	Era    string
	nodes  []ElementResult
	index  map[string]int
	arrows []Relation
	frozen bool
}

// NewWorldModel returns an empty, writable model.
func NewWorldModel(topic, stage, era string) *WorldModel {
	return &WorldModel{Topic: topic, Stage: stage, Era: era, index: make(map[string]int)}
}

// AddObject appends an object result. Names are unique.
func (w *WorldModel) AddObject(r ElementResult) error {
	if w.frozen {
		return ErrWorldFrozen
	}
	if _, dup := w.index[r.Name]; dup {
		return fmt.Errorf("world model: object %q already generated", r.Name)
	}
	w.index[r.Name] = len(w.nodes)
	w.nodes = append(w.nodes, r)
	return nil
}

// AddRelation appends an arrow result.
func (w *WorldModel) AddRelation(r Relation) error {
	if w.frozen {
		return ErrWorldFrozen
	}
	w.arrows = append(w.arrows, r)
	return nil
}

// Freeze makes the model read-only ground truth.
func (w *WorldModel) Freeze() { w.frozen = true }

// Frozen reports whether Freeze was called.
func (w *WorldModel) Frozen() bool { return w.frozen }

// Objects returns a copy of the object results in generation order.
func (w *WorldModel) Objects() []ElementResult {
	out := make([]ElementResult, len(w.nodes))
	copy(out, w.nodes)
	return out
}

// Arrows returns a copy of the arrow results in generation order.
func (w *WorldModel) Arrows() []Relation {
	out := make([]Relation, len(w.arrows))
	copy(out, w.arrows)
	return out
}

// Object looks up an object result by name.
func (w *WorldModel) Object(name string) (ElementResult, bool) {
	i, ok := w.index[name]
	if !ok {
		return ElementResult{}, false
	}
	return w.nodes[i], true
}

// Names lists object names then arrow kinds in generation order.
func (w *WorldModel) Names() []string {
	out := make([]string, 0, len(w.nodes)+len(w.arrows))
	for _, n := range w.nodes {
		out = append(out, n.Name)
	}
	for _, a := range w.arrows {
		out = append(out, a.Kind)
	}
	return out
}

// MarshalJSON keeps "nodes" in insertion order.
func (w *WorldModel) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"stage":`)
	if err := writeJSON(&buf, w.Stage); err != nil {
		return nil, err
	}
	buf.WriteString(`,"era":`)
	if err := writeJSON(&buf, w.Era); err != nil {
		return nil, err
	}
	buf.WriteString(`,"nodes":{`)
	for i, n := range w.nodes {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, n.Name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, n.Content); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`},"arrows":`)
	arrows := w.arrows
	if arrows == nil {
		arrows = []Relation{}
	}
	if err := writeJSON(&buf, arrows); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Context renders the model as indented JSON for prompts.
func (w *WorldModel) Context() string {
	raw, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func writeJSON(buf *bytes.Buffer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(raw)
	return nil
}
