package pipeline

import (
	"fmt"
	"log/slog"
)

// WarningKind classifies a non-fatal quality issue in a run.
type WarningKind string

const (
	WarnNoContent       WarningKind = "no_content"
	WarnNoJudgment      WarningKind = "no_judgment"
	WarnFinalFallback   WarningKind = "final_judge_fallback"
	WarnNoBrief         WarningKind = "no_brief"
	WarnMalformedReview WarningKind = "malformed_review"
	WarnDraftFailed     WarningKind = "draft_failed"
	WarnUnapproved      WarningKind = "unapproved"
	WarnNoDraft         WarningKind = "no_draft"
)

// Warning is a per-stage quality flag surfaced with the run result.
type Warning struct {
	Stage   string      `json:"stage"`
	Element string      `json:"element,omitempty"`
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.Element == "" {
		return fmt.Sprintf("[%s] %s: %s", w.Stage, w.Kind, w.Message)
	}
	return fmt.Sprintf("[%s/%s] %s: %s", w.Stage, w.Element, w.Kind, w.Message)
}

// warnings collects flags for one run; it is owned by the run goroutine.
type warnings struct {
	list   []Warning
	logger *slog.Logger
}

func (ws *warnings) add(stage, element string, kind WarningKind, format string, args ...any) {
	w := Warning{Stage: stage, Element: element, Kind: kind, Message: fmt.Sprintf(format, args...)}
	ws.list = append(ws.list, w)
	if ws.logger != nil {
		ws.logger.Warn("quality warning", "stage", stage, "element", element, "kind", kind, "message", w.Message)
	}
}
