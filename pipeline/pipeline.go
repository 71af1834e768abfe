// Package pipeline runs one story generation end to end: hire personas,
// refine every AP element in order, then draft settings and five plot steps
// behind a review gate and compile the outline.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"sfstory/apmodel"
	"sfstory/config"
	"sfstory/generator"
	"sfstory/logging"
)

var (
	// ErrEmptyTopic is returned when Run is given a blank topic.
	ErrEmptyTopic = errors.New("topic must not be empty")
	// ErrReviewRejected is returned in strict mode when a gate runs out of attempts.
	ErrReviewRejected = errors.New("draft not approved within retry budget")
)

// PlotSteps is the fixed narrative order of the outline.
var PlotSteps = []generator.Step{
	{Name: "1. Exposition", Goal: "The story begins in the setting, introducing the characters and the setting of the story."},
	{Name: "2. Rising Action", Goal: "An event or conflict is introduced and the characters begin to face a series of challenges or conflicts."},
	{Name: "3. Climax", Goal: "This is the most exciting moment or a turning point in the story."},
	{Name: "4. Falling Action", Goal: "After the climax, the story begins to transition to the ending."},
	{Name: "5. Resolution", Goal: "The ending of the story."},
}

const (
	settingsCriteria = "Check if the 'World View' and 'Characters' logically reflect the Director's Brief provided AND do not contradict the Future AP Model."
	plotCriteria     = "Consistency Check: Does this outline step follow the Director's Plot Brief AND remain consistent with the Future AP Model?"
)

// Options are the per-run knobs.
type Options struct {
	NumAgents     int
	NumIterations int
	MaxRetries    int
	StrictReview  bool
}

// OptionsFromConfig copies the pipeline knobs out of the run config.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		NumAgents:     cfg.NumAgents,
		NumIterations: cfg.NumIterations,
		MaxRetries:    cfg.MaxRetries,
		StrictReview:  cfg.StrictReview,
	}
}

// Pipeline is immutable after New and safe for concurrent Runs; every Run
// owns its personas, world model and histories.
type Pipeline struct {
	agent  *generator.Agent
	model  *apmodel.Structure
	opts   Options
	logger *slog.Logger
}

// New validates the options and builds a pipeline.
func New(agent *generator.Agent, model *apmodel.Structure, opts Options) (*Pipeline, error) {
	if agent == nil {
		return nil, errors.New("pipeline: agent is required")
	}
	if model == nil {
		return nil, errors.New("pipeline: AP model is required")
	}
	if opts.NumAgents < 1 || opts.NumIterations < 1 || opts.MaxRetries < 1 {
		return nil, fmt.Errorf("pipeline: agents, iterations and retries must be positive (got %d, %d, %d)",
			opts.NumAgents, opts.NumIterations, opts.MaxRetries)
	}
	return &Pipeline{agent: agent, model: model, opts: opts, logger: logging.New("pipeline")}, nil
}

// Options returns the knobs the pipeline was built with.
func (p *Pipeline) Options() Options { return p.opts }

// StepResult is one gated plot step.
type StepResult struct {
	Step     generator.Step     `json:"step"`
	Draft    generator.PlotStep `json:"draft"`
	Status   GateStatus         `json:"status"`
	Attempts []ReviewRecord     `json:"attempts"`
}

// Result is everything a run produced. Outline is the compiled artifact.
type Result struct {
	RunID          string                `json:"run_id"`
	Topic          string                `json:"topic"`
	Personas       []generator.Persona   `json:"personas"`
	World          *generator.WorldModel `json:"world"`
	SettingsBrief  generator.Brief       `json:"settings_brief"`
	PlotBrief      generator.Brief       `json:"plot_brief"`
	Settings       generator.Settings    `json:"settings"`
	SettingsStatus GateStatus            `json:"settings_status"`
	Steps          []StepResult          `json:"steps"`
	Outline        string                `json:"outline"`
	Warnings       []Warning             `json:"warnings"`
}

// MissingElements lists elements that ended with no content.
func (r *Result) MissingElements() []string {
	var out []string
	for _, w := range r.Warnings {
		if w.Kind == WarnNoContent {
			out = append(out, w.Element)
		}
	}
	return out
}

type run struct {
	*Pipeline
	res    *Result
	warn   *warnings
	logger *slog.Logger
}

// Run generates one story for topic. Transient and malformed provider
// output only produce warnings on the result. Errors are returned for a
// blank topic, persona hiring failure, context cancellation, and, in strict
// mode, a gate that ran out of attempts (the partial result is returned too).
func (p *Pipeline) Run(ctx context.Context, topic string) (*Result, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	id := uuid.NewString()
	logger := p.logger.With("run_id", id, "topic", topic)
	r := &run{
		Pipeline: p,
		res:      &Result{RunID: id, Topic: topic},
		warn:     &warnings{logger: logger},
		logger:   logger,
	}

	logger.Info("hiring agents", "count", p.opts.NumAgents)
	personas, err := p.agent.HirePersonas(ctx, topic, p.opts.NumAgents, p.opts.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("persona init: %w", err)
	}
	r.res.Personas = personas

	if err := r.buildWorld(ctx); err != nil {
		return nil, err
	}
	if err := r.buildStory(ctx); err != nil {
		r.res.Warnings = r.warn.list
		return r.res, err
	}

	r.res.Warnings = r.warn.list
	logger.Info("run complete", "paragraphs", len(r.res.Steps), "warnings", len(r.res.Warnings))
	return r.res, nil
}

func (r *run) buildWorld(ctx context.Context) error {
	topic := r.res.Topic
	world := generator.NewWorldModel(topic, r.model.Stage, r.model.Era)
	base := fmt.Sprintf("## Theme: %s\n## Era: %s\n", topic, r.model.Era)
	refiner := &Refiner{
		Agent:    r.agent,
		Personas: r.res.Personas,
		Rounds:   r.opts.NumIterations,
		Logger:   r.logger,
	}

	for _, el := range r.model.Elements() {
		if err := ctx.Err(); err != nil {
			return err
		}
		worldContext := base + "\n## " + r.model.Stage + " (Generated so far):\n" + world.Context()
		out := refiner.Refine(ctx, el, topic, worldContext)
		label := el.Label()
		for _, round := range out.Skipped {
			r.warn.add("elements", label, WarnNoJudgment, "round %d yielded no judgment", round)
		}
		if out.Fallback {
			r.warn.add("elements", label, WarnFinalFallback, "final judge unavailable; kept the last round winner")
		}
		if !out.Produced {
			r.warn.add("elements", label, WarnNoContent, "no round produced a judgment")
		}

		var err error
		switch el.Kind {
		case apmodel.KindObject:
			err = world.AddObject(generator.ElementResult{Name: el.Name, Content: out.Content, Produced: out.Produced})
		case apmodel.KindArrow:
			err = world.AddRelation(generator.Relation{
				Source:   el.Arrow.From,
				Target:   el.Arrow.To,
				Kind:     el.Name,
				Content:  out.Content,
				Produced: out.Produced,
			})
		}
		if err != nil {
			return fmt.Errorf("world model: %w", err)
		}
	}
	world.Freeze()
	r.res.World = world
	return nil
}

func (r *run) brief(ctx context.Context, target generator.BriefTarget) generator.Brief {
	parsed := r.agent.PrepareBrief(ctx, r.res.World, target)
	if !parsed.OK {
		r.warn.add("brief", string(target), WarnNoBrief, "brief unavailable: %v", parsed.Err)
		return generator.Brief{Theme: r.res.Topic}
	}
	r.logger.Info("brief prepared", "target", target, "theme", parsed.Value.Theme)
	return parsed.Value
}

func (r *run) gate(stage string) Gate {
	return Gate{Budget: r.opts.MaxRetries, Logger: r.logger, warn: r.warn, stage: stage}
}

func (r *run) buildStory(ctx context.Context) error {
	world := r.res.World

	r.res.SettingsBrief = r.brief(ctx, generator.BriefSetting)
	settingsContext := mustJSON(r.res.SettingsBrief)
	settings := RunGate(ctx, r.gate("settings"), "Story Settings",
		func(ctx context.Context, feedback string) (generator.Settings, error) {
			return r.agent.DraftSettings(ctx, r.res.SettingsBrief, feedback)
		},
		func(ctx context.Context, draft generator.Settings) generator.Parsed[generator.Review] {
			return r.agent.Review(ctx, "Story Settings", draft, settingsContext, world, settingsCriteria)
		})
	r.res.Settings = settings.Draft
	r.res.SettingsStatus = settings.Status
	if err := r.strict(settings.Status, "Story Settings"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.res.PlotBrief = r.brief(ctx, generator.BriefPlot)
	var accepted []generator.AcceptedStep
	steps := make([]generator.PlotStep, 0, len(PlotSteps))
	for _, step := range PlotSteps {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.logger.Info("processing plot step", "step", step.Name)
		previous := make([]generator.AcceptedStep, len(accepted))
		copy(previous, accepted)
		reviewContext := fmt.Sprintf("PLOT BRIEF: %s\nPREVIOUS PLOT: %s", mustJSON(r.res.PlotBrief), mustJSON(previous))
		res := RunGate(ctx, r.gate("plot"), step.Name,
			func(ctx context.Context, feedback string) (generator.PlotStep, error) {
				return r.agent.DraftPlotStep(ctx, step, r.res.Settings, r.res.PlotBrief, previous, feedback)
			},
			func(ctx context.Context, draft generator.PlotStep) generator.Parsed[generator.Review] {
				return r.agent.Review(ctx, step.Name, draft, reviewContext, world, plotCriteria)
			})
		r.res.Steps = append(r.res.Steps, StepResult{Step: step, Draft: res.Draft, Status: res.Status, Attempts: res.Attempts})
		steps = append(steps, res.Draft)
		if res.HasDraft {
			accepted = append(accepted, generator.AcceptedStep{Name: step.Name, Summary: res.Draft.Summary})
		}
		if err := r.strict(res.Status, step.Name); err != nil {
			return err
		}
	}

	r.res.Outline = Compile(steps)
	return nil
}

func (r *run) strict(status GateStatus, label string) error {
	if !r.opts.StrictReview || status == GateApproved {
		return nil
	}
	return fmt.Errorf("%w: %s (%s)", ErrReviewRejected, label, status)
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
