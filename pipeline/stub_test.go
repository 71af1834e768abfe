package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sfstory/apmodel"
	"sfstory/generator"
	"sfstory/logging"
)

// handler answers one call; nth counts calls with the same task and actor, from 1.
type handler func(ctx context.Context, p generator.Prompt, nth int) (string, error)

// stubLLM routes prompts by task and falls back to the offline mock.
type stubLLM struct {
	mu       sync.Mutex
	handlers map[generator.Task]handler
	counts   map[string]int
	calls    []generator.Prompt
}

func newStub() *stubLLM {
	return &stubLLM{handlers: map[generator.Task]handler{}, counts: map[string]int{}}
}

func (s *stubLLM) on(task generator.Task, h handler) *stubLLM {
	s.handlers[task] = h
	return s
}

func (s *stubLLM) Complete(ctx context.Context, p generator.Prompt) (string, error) {
	s.mu.Lock()
	key := string(p.Task) + "|" + p.Actor
	s.counts[key]++
	nth := s.counts[key]
	s.calls = append(s.calls, p)
	h := s.handlers[p.Task]
	s.mu.Unlock()
	if h != nil {
		return h(ctx, p, nth)
	}
	return generator.MockLLM{}.Complete(ctx, p)
}

func (s *stubLLM) count(task generator.Task, actor string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[string(task)+"|"+actor]
}

func (s *stubLLM) total(task generator.Task) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.calls {
		if p.Task == task {
			n++
		}
	}
	return n
}

func (s *stubLLM) prompts(task generator.Task) []generator.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []generator.Prompt
	for _, p := range s.calls {
		if p.Task == task {
			out = append(out, p)
		}
	}
	return out
}

func newAgent(t *testing.T, llm generator.LLMClient, timeout time.Duration) *generator.Agent {
	t.Helper()
	a, err := generator.NewAgent(llm, "system", timeout)
	require.NoError(t, err)
	return a
}

const miniModel = `stage: Stage 3
era: Future
objects:
  - name: Values
  - name: Institutions
arrows:
  - {name: Habituation, from: Values, to: Institutions}
`

func mini(t *testing.T) *apmodel.Structure {
	t.Helper()
	s, err := apmodel.Parse([]byte(miniModel))
	require.NoError(t, err)
	return s
}

func testPersonas(names ...string) []generator.Persona {
	out := make([]generator.Persona, len(names))
	for i, n := range names {
		out[i] = generator.Persona{Name: n, Expertise: "x", Tone: "y", Stance: "z"}
	}
	return out
}

var testLogger = logging.New("test")
