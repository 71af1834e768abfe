package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfstory/apmodel"
	"sfstory/generator"
)

func newPipeline(t *testing.T, stub *stubLLM, model *apmodel.Structure, opts Options) *Pipeline {
	t.Helper()
	p, err := New(newAgent(t, stub, time.Second), model, opts)
	require.NoError(t, err)
	return p
}

var defaultOpts = Options{NumAgents: 3, NumIterations: 2, MaxRetries: 3}

func TestNew_Validates(t *testing.T) {
	agent := newAgent(t, newStub(), 0)
	_, err := New(nil, mini(t), defaultOpts)
	assert.Error(t, err)
	_, err = New(agent, nil, defaultOpts)
	assert.Error(t, err)
	_, err = New(agent, mini(t), Options{NumAgents: 0, NumIterations: 1, MaxRetries: 1})
	assert.Error(t, err)
}

func TestRun_FullDefaultModel(t *testing.T) {
	model, err := apmodel.Default()
	require.NoError(t, err)
	stub := newStub()

	res, err := newPipeline(t, stub, model, defaultOpts).Run(context.Background(), "Smartphone")
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Personas, 3)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.World.Frozen())

	var want []string
	for _, el := range model.Elements() {
		want = append(want, el.Name)
	}
	if diff := cmp.Diff(want, res.World.Names()); diff != "" {
		t.Errorf("world order mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, res.Steps, 5)
	paragraphs := strings.Split(res.Outline, "\n\n")
	require.Len(t, paragraphs, 5)
	for i, s := range res.Steps {
		assert.Equal(t, PlotSteps[i].Name, s.Step.Name)
		assert.Equal(t, GateApproved, s.Status)
		assert.Equal(t, s.Draft.Summary, paragraphs[i])
	}
	assert.Equal(t, GateApproved, res.SettingsStatus)
	assert.Equal(t, 18*2, stub.total(generator.TaskJudge))
	assert.Equal(t, 18, stub.total(generator.TaskFinal))
	assert.Equal(t, 1, stub.total(generator.TaskHire))
}

func TestRun_LaterElementsSeeEarlierOnes(t *testing.T) {
	stub := newStub().on(generator.TaskFinal, func(_ context.Context, p generator.Prompt, _ int) (string, error) {
		name := strings.TrimPrefix(strings.SplitN(p.User, `"`, 3)[1], "Object: ")
		return `{"final_content": "FINAL:` + name + `", "reason": "r"}`, nil
	})

	res, err := newPipeline(t, stub, mini(t), defaultOpts).Run(context.Background(), "Grocery")
	require.NoError(t, err)

	for _, p := range stub.prompts(generator.TaskThink) {
		switch {
		case strings.Contains(p.User, "Object: Values"):
			assert.NotContains(t, p.User, "FINAL:")
		case strings.Contains(p.User, "Object: Institutions"):
			assert.Contains(t, p.User, "FINAL:Values")
			assert.NotContains(t, p.User, "FINAL:Institutions")
		case strings.Contains(p.User, "Arrow: Habituation"):
			assert.Contains(t, p.User, "FINAL:Values")
			assert.Contains(t, p.User, "FINAL:Institutions")
		}
	}

	got, ok := res.World.Object("Institutions")
	require.True(t, ok)
	assert.Equal(t, "FINAL:Institutions", got.Content)
	arrows := res.World.Arrows()
	require.Len(t, arrows, 1)
	assert.Equal(t, "Values", arrows[0].Source)
	assert.Equal(t, "Institutions", arrows[0].Target)
}

func TestRun_PlotStepsThreadAcceptedSteps(t *testing.T) {
	stub := newStub()
	_, err := newPipeline(t, stub, mini(t), defaultOpts).Run(context.Background(), "Password")
	require.NoError(t, err)

	drafts := stub.prompts(generator.TaskPlotStep)
	require.Len(t, drafts, 5)
	assert.Contains(t, drafts[0].User, "This is the beginning of the story.")
	for i := 1; i < 5; i++ {
		for j := 0; j < i; j++ {
			assert.Contains(t, drafts[i].User, PlotSteps[j].Name+": In the "+PlotSteps[j].Name)
		}
		for j := i + 1; j < 5; j++ {
			assert.NotContains(t, drafts[i].User, PlotSteps[j].Name+": ")
		}
	}
}

func TestRun_SingleStepApprovedOnSecondAttempt(t *testing.T) {
	target := PlotSteps[2].Name
	stub := newStub().on(generator.TaskReview, func(_ context.Context, p generator.Prompt, nth int) (string, error) {
		if p.Actor == target && nth == 1 {
			return `{"approved": false, "feedback": "raise the stakes"}`, nil
		}
		return `{"approved": true, "feedback": ""}`, nil
	})

	res, err := newPipeline(t, stub, mini(t), defaultOpts).Run(context.Background(), "Soccer")
	require.NoError(t, err)

	assert.Equal(t, 2, stub.count(generator.TaskPlotStep, target))
	step := res.Steps[2]
	require.Len(t, step.Attempts, 2)
	assert.False(t, step.Attempts[0].Approved)
	assert.Equal(t, "raise the stakes", step.Attempts[0].Feedback)
	assert.True(t, step.Attempts[1].Approved)

	retry := stub.prompts(generator.TaskPlotStep)
	var sawFeedback bool
	for _, p := range retry {
		if p.Actor == target && strings.Contains(p.User, "raise the stakes") {
			sawFeedback = true
		}
	}
	assert.True(t, sawFeedback)
	assert.Empty(t, res.Warnings)
}

func TestRun_ExhaustedReviewsStillCompile(t *testing.T) {
	stub := newStub().
		on(generator.TaskReview, func(context.Context, generator.Prompt, int) (string, error) {
			return `{"approved": false, "feedback": "try again"}`, nil
		}).
		on(generator.TaskPlotStep, func(_ context.Context, p generator.Prompt, nth int) (string, error) {
			return `{"summary": "` + p.Actor + ` draft ` + string(rune('0'+nth)) + `"}`, nil
		})

	res, err := newPipeline(t, stub, mini(t), defaultOpts).Run(context.Background(), "Soccer")
	require.NoError(t, err)

	assert.Equal(t, GateExhausted, res.SettingsStatus)
	unapproved := 0
	for _, w := range res.Warnings {
		if w.Kind == WarnUnapproved {
			unapproved++
		}
	}
	assert.Equal(t, 6, unapproved)
	for _, s := range res.Steps {
		assert.Equal(t, GateExhausted, s.Status)
		assert.Len(t, s.Attempts, 3)
		assert.Equal(t, s.Step.Name+" draft 3", s.Draft.Summary)
	}
	assert.Equal(t, 4, strings.Count(res.Outline, "\n\n"))
}

func TestRun_StrictReviewFails(t *testing.T) {
	stub := newStub().on(generator.TaskReview, func(context.Context, generator.Prompt, int) (string, error) {
		return `{"approved": false, "feedback": "no"}`, nil
	})
	opts := defaultOpts
	opts.StrictReview = true

	res, err := newPipeline(t, stub, mini(t), opts).Run(context.Background(), "Soccer")
	require.ErrorIs(t, err, ErrReviewRejected)
	require.NotNil(t, res)
	assert.Empty(t, res.Steps)
	assert.Zero(t, stub.total(generator.TaskPlotStep))
}

func TestRun_MalformedReviewRetries(t *testing.T) {
	stub := newStub().on(generator.TaskReview, func(_ context.Context, p generator.Prompt, nth int) (string, error) {
		if p.Actor == "Story Settings" && nth == 1 {
			return `{"approved": `, nil
		}
		return `{"approved": true}`, nil
	})

	res, err := newPipeline(t, stub, mini(t), defaultOpts).Run(context.Background(), "Soccer")
	require.NoError(t, err)
	assert.Equal(t, GateApproved, res.SettingsStatus)
	assert.Equal(t, 2, stub.count(generator.TaskSettings, "setting"))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnMalformedReview, res.Warnings[0].Kind)
}

func TestRun_ElementFailureIsAQualityFlag(t *testing.T) {
	stub := newStub().on(generator.TaskThink, func(ctx context.Context, p generator.Prompt, _ int) (string, error) {
		if strings.Contains(p.User, "Object: Institutions") {
			return "", errors.New("provider down")
		}
		return generator.MockLLM{}.Complete(ctx, p)
	})

	res, err := newPipeline(t, stub, mini(t), defaultOpts).Run(context.Background(), "Soccer")
	require.NoError(t, err)

	assert.Equal(t, []string{"Object: Institutions"}, res.MissingElements())
	got, ok := res.World.Object("Institutions")
	require.True(t, ok)
	assert.False(t, got.Produced)
	assert.Empty(t, got.Content)
	assert.NotEmpty(t, res.Outline)
}

func TestRun_BriefFailureFallsBackToTopic(t *testing.T) {
	stub := newStub().on(generator.TaskBrief, func(context.Context, generator.Prompt, int) (string, error) {
		return "", errors.New("overloaded")
	})
	res, err := newPipeline(t, stub, mini(t), defaultOpts).Run(context.Background(), "Soccer")
	require.NoError(t, err)
	assert.Equal(t, "Soccer", res.SettingsBrief.Theme)
	assert.Equal(t, "Soccer", res.PlotBrief.Theme)
	kinds := map[WarningKind]int{}
	for _, w := range res.Warnings {
		kinds[w.Kind]++
	}
	assert.Equal(t, 2, kinds[WarnNoBrief])
}

func TestRun_PersonaShortfallAborts(t *testing.T) {
	stub := newStub().on(generator.TaskHire, func(context.Context, generator.Prompt, int) (string, error) {
		return `{"agents": [{"name": "Only"}]}`, nil
	})
	_, err := newPipeline(t, stub, mini(t), defaultOpts).Run(context.Background(), "Soccer")
	require.ErrorIs(t, err, generator.ErrPersonaShortfall)
	assert.Equal(t, 3, stub.total(generator.TaskHire))
	assert.Zero(t, stub.total(generator.TaskThink))
}

func TestRun_EmptyTopic(t *testing.T) {
	_, err := newPipeline(t, newStub(), mini(t), defaultOpts).Run(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyTopic)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stub := newStub().on(generator.TaskHire, func(ctx context.Context, p generator.Prompt, _ int) (string, error) {
		defer cancel()
		return generator.MockLLM{}.Complete(ctx, p)
	})
	_, err := newPipeline(t, stub, mini(t), defaultOpts).Run(ctx, "Soccer")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_IndependentConcurrentRuns(t *testing.T) {
	p := newPipeline(t, newStub(), mini(t), defaultOpts)
	results := make(chan *Result, 4)
	for i := 0; i < 4; i++ {
		go func() {
			res, err := p.Run(context.Background(), "Grocery")
			assert.NoError(t, err)
			results <- res
		}()
	}
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		res := <-results
		require.NotNil(t, res)
		assert.False(t, seen[res.RunID])
		seen[res.RunID] = true
		assert.Len(t, res.World.Names(), 3)
	}
}
