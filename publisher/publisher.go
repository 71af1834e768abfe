// Package publisher turns a finished run into artifacts: the plain-text
// outline, the world model dump and an optional HTML report.
package publisher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"sfstory/generator"
	"sfstory/logging"
	"sfstory/pipeline"
)

// Published lists the paths written for one run.
type Published struct {
	Outline    string `json:"outline"`
	WorldModel string `json:"world_model,omitempty"`
	Report     string `json:"report,omitempty"`
}

// Publisher writes run artifacts to a sink.
type Publisher struct {
	sink   Sink
	html   bool
	logger *slog.Logger
}

// New creates a Publisher. With html set, every publish also renders the
// Markdown report.
func New(sink Sink, html bool) (*Publisher, error) {
	if sink == nil {
		return nil, errors.New("publisher: sink is required")
	}
	return &Publisher{sink: sink, html: html, logger: logging.New("publisher")}, nil
}

// Publish writes the outline, the world model and, if enabled, the report.
func (p *Publisher) Publish(res *pipeline.Result) (Published, error) {
	if res == nil {
		return Published{}, errors.New("publisher: nil result")
	}
	var out Published
	var err error
	if out.Outline, err = p.sink.Write(OutlineFile(res.Topic), []byte(res.Outline)); err != nil {
		return out, fmt.Errorf("write outline: %w", err)
	}
	p.logger.Info("outline written", "path", out.Outline)

	if res.World != nil {
		raw, err := WorldModelJSON(res.World)
		if err != nil {
			return out, err
		}
		if out.WorldModel, err = p.sink.Write(WorldModelFile(res.Topic), raw); err != nil {
			return out, fmt.Errorf("write world model: %w", err)
		}
		p.logger.Info("world model written", "path", out.WorldModel)
	}

	if p.html {
		page, err := RenderHTML(res)
		if err != nil {
			return out, err
		}
		if out.Report, err = p.sink.Write(ReportFile(res.Topic), page); err != nil {
			return out, fmt.Errorf("write report: %w", err)
		}
		p.logger.Info("report written", "path", out.Report)
	}
	return out, nil
}

// WorldModelJSON wraps the model under its stage name, indented.
func WorldModelJSON(world *generator.WorldModel) ([]byte, error) {
	raw, err := json.MarshalIndent(map[string]*generator.WorldModel{world.Stage: world}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode world model: %w", err)
	}
	return raw, nil
}

// Markdown renders a run as a readable report.
func Markdown(res *pipeline.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", res.Topic)
	if res.Outline != "" {
		fmt.Fprintf(&b, "> %s\n\n", digest(res.Outline, 160))
	}

	if res.World != nil {
		fmt.Fprintf(&b, "## %s: %s\n\n", res.World.Stage, res.World.Era)
		for _, obj := range res.World.Objects() {
			content := obj.Content
			if !obj.Produced {
				content = "_not generated_"
			}
			fmt.Fprintf(&b, "- **%s**: %s\n", obj.Name, content)
		}
		for _, a := range res.World.Arrows() {
			content := a.Content
			if !a.Produced {
				content = "_not generated_"
			}
			fmt.Fprintf(&b, "- **%s** (%s → %s): %s\n", a.Kind, a.Source, a.Target, content)
		}
		b.WriteString("\n")
	}

	if res.Settings.WorldView != "" {
		fmt.Fprintf(&b, "## Setting\n\n%s\n\n", res.Settings.WorldView)
		for _, c := range res.Settings.Characters {
			fmt.Fprintf(&b, "- **%s**, %s. %s\n", c.Name, c.Role, c.Motivation)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Outline\n\n")
	for _, s := range res.Steps {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", s.Step.Name, strings.TrimSpace(s.Draft.Summary))
		if s.Status != pipeline.GateApproved {
			fmt.Fprintf(&b, "_review: %s_\n\n", s.Status)
		}
	}

	if len(res.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "- %s\n", w.String())
		}
	}
	return b.String()
}

// RenderHTML converts the Markdown report into a standalone page.
func RenderHTML(res *pipeline.Result) ([]byte, error) {
	body, err := mdToHTML(Markdown(res))
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", html.EscapeString(res.Topic))
	page.WriteString(body)
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM, extension.Typographer))

func mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func digest(text string, limit int) string {
	joined := strings.Join(strings.Fields(text), " ")
	runes := []rune(joined)
	if len(runes) <= limit {
		return joined
	}
	return string(runes[:limit]) + "…"
}
