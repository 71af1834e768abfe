package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfstory/apmodel"
	"sfstory/generator"
)

func newRefiner(t *testing.T, stub *stubLLM, rounds int) *Refiner {
	return &Refiner{
		Agent:    newAgent(t, stub, time.Second),
		Personas: testPersonas("A", "B", "C"),
		Rounds:   rounds,
		Logger:   testLogger,
	}
}

var valuesElement = apmodel.Element{Kind: apmodel.KindObject, Name: "Values"}

func TestRefine_RunsExactlyRRounds(t *testing.T) {
	stub := newStub().on(generator.TaskFinal, func(context.Context, generator.Prompt, int) (string, error) {
		return `{"final_content": "the chosen future", "reason": "best"}`, nil
	})
	out := newRefiner(t, stub, 2).Refine(context.Background(), valuesElement, "Soccer", "{}")

	assert.True(t, out.Produced)
	assert.Equal(t, "the chosen future", out.Content)
	assert.Equal(t, 2, out.RoundsRun)
	require.Len(t, out.Judgments, 2)
	assert.Equal(t, 1, out.Judgments[0].Round)
	assert.Equal(t, 2, out.Judgments[1].Round)
	assert.Equal(t, "A", out.Judgments[0].Judgment.Winner)
	assert.Equal(t, 6, stub.total(generator.TaskThink))
	assert.Equal(t, 2, stub.total(generator.TaskJudge))
	assert.Equal(t, 1, stub.total(generator.TaskFinal))
}

func TestRefine_TotalFailureYieldsSentinel(t *testing.T) {
	stub := newStub().on(generator.TaskThink, func(context.Context, generator.Prompt, int) (string, error) {
		return "", errors.New("network down")
	})
	out := newRefiner(t, stub, 3).Refine(context.Background(), valuesElement, "Soccer", "{}")

	assert.False(t, out.Produced)
	assert.Empty(t, out.Content)
	assert.Empty(t, out.Judgments)
	assert.Equal(t, []int{1, 2, 3}, out.Skipped)
	assert.Zero(t, stub.total(generator.TaskJudge))
	assert.Zero(t, stub.total(generator.TaskFinal))
}

func TestRefine_MissingJudgmentSkipsRound(t *testing.T) {
	stub := newStub().on(generator.TaskJudge, func(ctx context.Context, p generator.Prompt, nth int) (string, error) {
		if nth == 1 {
			return "this is not json", nil
		}
		return generator.MockLLM{}.Complete(ctx, p)
	})
	out := newRefiner(t, stub, 2).Refine(context.Background(), valuesElement, "Soccer", "{}")

	require.Len(t, out.Judgments, 1)
	assert.Equal(t, 2, out.Judgments[0].Round)
	assert.Equal(t, []int{1}, out.Skipped)
	assert.True(t, out.Produced)
}

func TestRefine_FinalJudgeFallback(t *testing.T) {
	stub := newStub().
		on(generator.TaskJudge, func(_ context.Context, _ generator.Prompt, nth int) (string, error) {
			if nth == 1 {
				return `{"selected_agent": "B", "selected_content": "first", "reason": "r"}`, nil
			}
			return `{"selected_agent": "nobody", "selected_content": "second", "reason": "r"}`, nil
		}).
		on(generator.TaskFinal, func(context.Context, generator.Prompt, int) (string, error) {
			return `{"final_content": ""}`, nil
		})
	out := newRefiner(t, stub, 2).Refine(context.Background(), valuesElement, "Soccer", "{}")

	assert.True(t, out.Fallback)
	assert.True(t, out.Produced)
	assert.Equal(t, "second", out.Content)
	assert.Equal(t, "B", out.Judgments[0].Judgment.Winner)
	assert.Equal(t, "", out.Judgments[1].Judgment.Winner)
}

func TestRefine_ArrowPromptCarriesEndpoints(t *testing.T) {
	stub := newStub()
	arrow := apmodel.Arrow{Name: "Habituation", From: "Values", To: "Institutions"}
	el := apmodel.Element{Kind: apmodel.KindArrow, Name: arrow.Name, Arrow: &arrow}

	newRefiner(t, stub, 1).Refine(context.Background(), el, "Soccer", "{}")

	thinks := stub.prompts(generator.TaskThink)
	require.NotEmpty(t, thinks)
	assert.Contains(t, thinks[0].User, "Arrow: Habituation (From 'Values' to 'Institutions')")
	judges := stub.prompts(generator.TaskJudge)
	require.Len(t, judges, 1)
	assert.Contains(t, judges[0].User, "Element: Arrow: Habituation (Stage 3: Future)")
}
