package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sfstory/logging"
)

// ErrPersonaShortfall means the provider kept returning fewer usable
// personas than the run was configured for.
var ErrPersonaShortfall = errors.New("not enough personas")

// Agent issues every role-specific call to the content provider. It holds
// no per-run state and can be shared by concurrent runs.
type Agent struct {
	llm     LLMClient
	system  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewAgent wires a provider with the shared system prompt. A zero timeout
// disables the per-request deadline.
func NewAgent(llm LLMClient, system string, timeout time.Duration) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	return &Agent{llm: llm, system: system, timeout: timeout, logger: logging.New("agent")}, nil
}

func (a *Agent) complete(ctx context.Context, p Prompt) (string, error) {
	llm := a.llm
	// Throttled calls wait for a token before the request deadline starts.
	if rl, ok := llm.(*RateLimited); ok {
		if err := rl.limiter.Wait(ctx); err != nil {
			return "", err
		}
		llm = rl.next
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	start := time.Now()
	raw, err := llm.Complete(ctx, p)
	a.logger.Debug("provider call", "task", p.Task, "actor", p.Actor, "elapsed", time.Since(start), "error", err)
	return raw, err
}

// HirePersonas asks for n personas, retrying up to attempts times when the
// provider returns fewer usable ones. Extra personas are dropped and
// duplicate names are disambiguated.
func (a *Agent) HirePersonas(ctx context.Context, topic string, n, attempts int) ([]Persona, error) {
	if n < 1 {
		return nil, fmt.Errorf("hire personas: count must be positive, got %d", n)
	}
	if attempts < 1 {
		attempts = 1
	}
	type roster struct {
		Agents []Persona `json:"agents"`
	}
	var lastErr error
	best := 0
	for i := 1; i <= attempts; i++ {
		raw, err := a.complete(ctx, BuildHirePrompt(a.system, topic, n))
		if err != nil {
			lastErr = err
			a.logger.Warn("persona hiring failed", "attempt", i, "error", err)
			continue
		}
		parsed := Decode[roster](raw)
		if !parsed.OK {
			lastErr = parsed.Err
			a.logger.Warn("persona hiring returned malformed output", "attempt", i, "error", parsed.Err)
			continue
		}
		personas := usablePersonas(parsed.Value.Agents)
		if len(personas) >= n {
			personas = personas[:n]
			for _, p := range personas {
				a.logger.Info("agent hired", "name", p.Name, "expertise", p.Expertise)
			}
			return personas, nil
		}
		best = max(best, len(personas))
		lastErr = fmt.Errorf("got %d of %d", len(personas), n)
		a.logger.Warn("persona hiring came up short", "attempt", i, "got", len(personas), "want", n)
	}
	return nil, fmt.Errorf("%w: best attempt returned %d of %d: %v", ErrPersonaShortfall, best, n, lastErr)
}

func usablePersonas(in []Persona) []Persona {
	seen := make(map[string]int, len(in))
	out := make([]Persona, 0, len(in))
	for _, p := range in {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			continue
		}
		key := strings.ToLower(p.Name)
		seen[key]++
		if c := seen[key]; c > 1 {
			p.Name = fmt.Sprintf("%s #%d", p.Name, c)
		}
		out = append(out, p)
	}
	return out
}

// Think asks one persona for a proposal on element.
func (a *Agent) Think(ctx context.Context, p Persona, element, worldContext string, history []string) (string, error) {
	raw, err := a.complete(ctx, BuildThinkPrompt(a.system, p, element, worldContext, history))
	if err != nil {
		return "", err
	}
	return CleanText(raw)
}

// Judge selects exactly one proposal. Provider errors and malformed or
// empty selections come back as a failed Parsed.
func (a *Agent) Judge(ctx context.Context, proposals []Proposal, element, topic string) Parsed[Judgment] {
	if len(proposals) == 0 {
		return Failed[Judgment](errors.New("judge: no proposals"))
	}
	raw, err := a.complete(ctx, BuildJudgePrompt(a.system, proposals, element, topic))
	if err != nil {
		return Failed[Judgment](err)
	}
	parsed := Decode[Judgment](raw)
	if parsed.OK && strings.TrimSpace(parsed.Value.Content) == "" {
		return Failed[Judgment](errors.New("judge: empty selected_content"))
	}
	return parsed
}

// FinalJudge picks the best content across the recorded rounds.
func (a *Agent) FinalJudge(ctx context.Context, rounds []RoundJudgment, element, topic string) Parsed[FinalDecision] {
	if len(rounds) == 0 {
		return Failed[FinalDecision](errors.New("final judge: no round judgments"))
	}
	raw, err := a.complete(ctx, BuildFinalPrompt(a.system, rounds, element, topic))
	if err != nil {
		return Failed[FinalDecision](err)
	}
	parsed := Decode[FinalDecision](raw)
	if parsed.OK && strings.TrimSpace(parsed.Value.Content) == "" {
		return Failed[FinalDecision](errors.New("final judge: empty final_content"))
	}
	return parsed
}

// PrepareBrief distills the frozen world model for one consumer.
func (a *Agent) PrepareBrief(ctx context.Context, world *WorldModel, target BriefTarget) Parsed[Brief] {
	raw, err := a.complete(ctx, BuildBriefPrompt(a.system, world, target))
	if err != nil {
		return Failed[Brief](err)
	}
	return Decode[Brief](raw)
}

// Review asks the overseer whether draft is acceptable.
func (a *Agent) Review(ctx context.Context, label string, draft any, supporting string, world *WorldModel, criteria string) Parsed[Review] {
	raw, err := a.complete(ctx, BuildReviewPrompt(a.system, label, draft, supporting, world, criteria))
	if err != nil {
		return Failed[Review](err)
	}
	return Decode[Review](raw)
}

// DraftSettings produces a settings draft, injecting the last feedback.
func (a *Agent) DraftSettings(ctx context.Context, brief Brief, feedback string) (Settings, error) {
	raw, err := a.complete(ctx, BuildSettingsPrompt(brief, feedback))
	if err != nil {
		return Settings{}, err
	}
	parsed := Decode[Settings](raw)
	if !parsed.OK {
		return Settings{}, parsed.Err
	}
	if strings.TrimSpace(parsed.Value.WorldView) == "" {
		return Settings{}, errors.New("settings: empty world_view")
	}
	return parsed.Value, nil
}

// DraftPlotStep produces one outline step given the steps accepted so far.
func (a *Agent) DraftPlotStep(ctx context.Context, step Step, settings Settings, brief Brief, previous []AcceptedStep, feedback string) (PlotStep, error) {
	raw, err := a.complete(ctx, BuildPlotStepPrompt(step, settings, brief, previous, feedback))
	if err != nil {
		return PlotStep{}, err
	}
	parsed := Decode[PlotStep](raw)
	if !parsed.OK {
		return PlotStep{}, parsed.Err
	}
	if strings.TrimSpace(parsed.Value.Summary) == "" {
		return PlotStep{}, errors.New("plot step: empty summary")
	}
	return parsed.Value, nil
}
