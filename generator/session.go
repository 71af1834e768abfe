package generator

// Memory holds each persona's private history for one element. Slot i
// belongs to persona i and is only ever written by the goroutine that owns
// the round, after the round's tasks have settled.
type Memory struct {
	turns [][]string
}

// NewMemory allocates empty histories for k personas.
func NewMemory(k int) *Memory {
	return &Memory{turns: make([][]string, k)}
}

// Append adds content to persona i's history.
func (m *Memory) Append(i int, content string) {
	m.turns[i] = append(m.turns[i], content)
}

// Contents returns a copy of persona i's prior outputs, oldest first.
func (m *Memory) Contents(i int) []string {
	out := make([]string, len(m.turns[i]))
	copy(out, m.turns[i])
	return out
}

// Len reports how many outputs persona i has produced.
func (m *Memory) Len(i int) int { return len(m.turns[i]) }
