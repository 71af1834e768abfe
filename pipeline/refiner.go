package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"sfstory/apmodel"
	"sfstory/generator"
)

// ElementOutcome is what the refiner settled on for one element.
type ElementOutcome struct {
	Content   string
	Produced  bool
	Fallback  bool
	RoundsRun int
	Judgments []generator.RoundJudgment
	Skipped   []int
}

// Refiner runs up to Rounds proposal/selection rounds for an element and
// then a final cross-round selection.
type Refiner struct {
	Agent    *generator.Agent
	Personas []generator.Persona
	Rounds   int
	Logger   *slog.Logger
}

// Refine generates one element. It never fails: if no round yields a
// judgment the outcome has Produced=false and empty content.
func (r *Refiner) Refine(ctx context.Context, el apmodel.Element, topic, worldContext string) ElementOutcome {
	label := el.Label()
	prompt := label
	if d := el.Detail(); d != "" {
		prompt = label + " (" + d + ")"
	}
	r.Logger.Info("generating element", "element", label)

	mem := generator.NewMemory(len(r.Personas))
	var out ElementOutcome
	for round := 1; round <= r.Rounds; round++ {
		if ctx.Err() != nil {
			break
		}
		out.RoundsRun = round
		proposals := ProposalRound(ctx, r.Agent, r.Personas, prompt, worldContext, mem, round, r.Logger)
		if len(proposals) == 0 {
			r.Logger.Warn("round produced no proposals", "element", label, "round", round)
			out.Skipped = append(out.Skipped, round)
			continue
		}
		verdict := r.Agent.Judge(ctx, proposals, label, topic)
		if !verdict.OK {
			r.Logger.Warn("no judgment for round", "element", label, "round", round, "error", verdict.Err)
			out.Skipped = append(out.Skipped, round)
			continue
		}
		j := verdict.Value
		j.Winner = resolveWinner(proposals, j.Winner)
		out.Judgments = append(out.Judgments, generator.RoundJudgment{Round: round, Judgment: j})
	}

	if len(out.Judgments) == 0 {
		r.Logger.Warn("no content produced", "element", label)
		return out
	}

	final := r.Agent.FinalJudge(ctx, out.Judgments, label, topic)
	if final.OK {
		out.Content = strings.TrimSpace(final.Value.Content)
	} else {
		last := out.Judgments[len(out.Judgments)-1]
		out.Content = strings.TrimSpace(last.Judgment.Content)
		out.Fallback = true
		r.Logger.Warn("final judge unavailable, using last round winner", "element", label, "round", last.Round, "error", final.Err)
	}
	out.Produced = out.Content != ""
	r.Logger.Info("final decision", "element", label, "preview", preview(out.Content, 50))
	return out
}

// resolveWinner maps the judge's pick to a proposal author, or "" when the
// name matches nobody in the round.
func resolveWinner(proposals []generator.Proposal, name string) string {
	name = strings.TrimSpace(name)
	for _, p := range proposals {
		if strings.EqualFold(p.Author.Name, name) {
			return p.Author.Name
		}
	}
	return ""
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
