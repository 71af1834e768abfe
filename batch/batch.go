// Package batch generates many independent stories per theme on a bounded
// pool and writes each outline into a per-theme folder.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sfstory/logging"
	"sfstory/pipeline"
	"sfstory/publisher"
	"sfstory/workpool"
)

// Generator is the part of the pipeline a batch needs.
type Generator interface {
	Run(ctx context.Context, topic string) (*pipeline.Result, error)
	Options() pipeline.Options
}

// Story is the outcome of one run in a batch.
type Story struct {
	Index    int    `json:"index"`
	RunID    string `json:"run_id,omitempty"`
	Path     string `json:"path,omitempty"`
	Warnings int    `json:"warnings"`
	Err      string `json:"error,omitempty"`
}

// ThemeSummary aggregates the stories of one theme.
type ThemeSummary struct {
	Theme     string        `json:"theme"`
	Dir       string        `json:"dir"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
	Stories   []Story       `json:"stories"`
}

// Summary is the result of a whole batch.
type Summary struct {
	Themes []ThemeSummary `json:"themes"`
}

// Succeeded counts successful stories across themes.
func (s Summary) Succeeded() int {
	n := 0
	for _, t := range s.Themes {
		n += t.Succeeded
	}
	return n
}

// Failed counts failed stories across themes.
func (s Summary) Failed() int {
	n := 0
	for _, t := range s.Themes {
		n += t.Failed
	}
	return n
}

// Runner runs batches. Concurrency bounds runs in flight within a theme and
// is independent of the per-round persona pool inside each run.
type Runner struct {
	gen         Generator
	root        *publisher.DirSink
	concurrency int
	logger      *slog.Logger
}

// New creates a Runner writing under root.
func New(gen Generator, root *publisher.DirSink, concurrency int) (*Runner, error) {
	if gen == nil {
		return nil, errors.New("batch: generator is required")
	}
	if root == nil {
		return nil, errors.New("batch: output sink is required")
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("batch: concurrency must be positive, got %d", concurrency)
	}
	return &Runner{gen: gen, root: root, concurrency: concurrency, logger: logging.New("batch")}, nil
}

// Run generates the given number of outlines per theme. A failed story is counted
// and logged; only cancellation or an unusable output folder stops the batch.
func (r *Runner) Run(ctx context.Context, themes []string, stories int) (Summary, error) {
	if stories < 1 {
		return Summary{}, fmt.Errorf("batch: stories must be positive, got %d", stories)
	}
	opts := r.gen.Options()
	var sum Summary
	for _, theme := range themes {
		theme = strings.TrimSpace(theme)
		if theme == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		ts, err := r.runTheme(ctx, theme, stories, opts)
		if err != nil {
			return sum, err
		}
		sum.Themes = append(sum.Themes, ts)
	}
	return sum, ctx.Err()
}

func (r *Runner) runTheme(ctx context.Context, theme string, stories int, opts pipeline.Options) (ThemeSummary, error) {
	dir, err := r.root.Sub(publisher.BatchDir(theme, opts.NumAgents, opts.NumIterations))
	if err != nil {
		return ThemeSummary{}, err
	}
	logger := r.logger.With("theme", theme)
	logger.Info("starting theme", "stories", stories, "concurrency", r.concurrency, "dir", dir.Root)
	start := time.Now()

	outcomes := workpool.Run(ctx, r.concurrency, stories, func(ctx context.Context, i int) (Story, error) {
		story := Story{Index: i + 1}
		res, err := r.gen.Run(ctx, theme)
		if err != nil {
			return story, err
		}
		story.RunID = res.RunID
		story.Warnings = len(res.Warnings)
		story.Path, err = dir.Write(publisher.StoryFile(theme, i+1), []byte(res.Outline))
		return story, err
	})

	ts := ThemeSummary{Theme: theme, Dir: dir.Root}
	for _, o := range outcomes {
		story := o.Value
		story.Index = o.Index + 1
		if o.OK() {
			ts.Succeeded++
			logger.Info("story saved", "index", story.Index, "path", story.Path, "warnings", story.Warnings)
		} else {
			ts.Failed++
			story.Err = o.Err.Error()
			logger.Error("story failed", "index", story.Index, "error", o.Err)
		}
		ts.Stories = append(ts.Stories, story)
	}
	ts.Elapsed = time.Since(start)
	logger.Info("theme complete", "succeeded", ts.Succeeded, "failed", ts.Failed, "elapsed", ts.Elapsed.Round(time.Millisecond))
	return ts, nil
}
