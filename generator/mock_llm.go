package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MockLLM is an offline provider for local runs. It never calls a model and
// always answers in the shape the task expects.
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	switch prompt.Task {
	case TaskHire:
		n := prompt.Expect
		if n < 1 {
			n = 1
		}
		agents := make([]Persona, n)
		for i := range agents {
			agents[i] = Persona{
				Name:      fmt.Sprintf("Mock Agent %d", i+1),
				Expertise: mockFields[i%len(mockFields)],
				Tone:      "curious",
				Stance:    "the future bends toward " + mockFields[(i+1)%len(mockFields)],
			}
		}
		return marshal(map[string]any{"agents": agents})
	case TaskThink:
		return fmt.Sprintf("%s imagines a future where %s.", prompt.Actor, taskLine(prompt.User)), nil
	case TaskJudge:
		// pick the first proposal line
		for _, line := range strings.Split(prompt.User, "\n") {
			if !strings.HasPrefix(line, "Proposal 1 (") {
				continue
			}
			rest := strings.TrimPrefix(line, "Proposal 1 (")
			name, content, _ := strings.Cut(rest, "): ")
			return marshal(Judgment{Winner: name, Content: content, Rationale: "first and boldest"})
		}
		return "{}", nil
	case TaskFinal:
		for _, line := range strings.Split(prompt.User, "\n") {
			if !strings.HasPrefix(line, "Iteration ") {
				continue
			}
			_, rest, _ := strings.Cut(line, ": ")
			content, _, _ := strings.Cut(rest, " (Reason:")
			return marshal(FinalDecision{Content: content, Rationale: "consistent winner"})
		}
		return "{}", nil
	case TaskBrief:
		return marshal(map[string]string{
			"briefing_theme":       "Mock " + prompt.Actor + " brief",
			"relevant_data_points": "Institutions and Daily Spaces drive the conflict.",
		})
	case TaskReview:
		return marshal(Review{Approved: true})
	case TaskSettings:
		return marshal(Settings{
			WorldView: "A city where the old technology has dissolved into the air.",
			Characters: []Character{
				{Name: "Ada", Role: "archivist", Motivation: "remember"},
				{Name: "Bo", Role: "regulator", Motivation: "contain"},
				{Name: "Cy", Role: "artist", Motivation: "provoke"},
				{Name: "Di", Role: "founder", Motivation: "profit"},
			},
		})
	case TaskPlotStep:
		return marshal(PlotStep{Summary: fmt.Sprintf("In the %s, the characters confront what their world has become.", prompt.Actor)})
	default:
		return "", fmt.Errorf("mock llm: unknown task %q", prompt.Task)
	}
}

var mockFields = []string{"urban ecology", "labor economics", "neuroethics", "folk art", "infrastructure"}

func taskLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, "Task: ") {
			return strings.TrimPrefix(line, "Task: ")
		}
	}
	return "nothing stays the same"
}

func marshal(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
