package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"sfstory/generator"
)

// GateStatus is the terminal state of a gated draft.
type GateStatus int

const (
	// GateApproved: a draft passed review.
	GateApproved GateStatus = iota
	// GateExhausted: the budget ran out; the last draft is kept unapproved.
	GateExhausted
	// GateNoDraft: no attempt produced a draft at all.
	GateNoDraft
)

func (s GateStatus) String() string {
	switch s {
	case GateApproved:
		return "approved"
	case GateExhausted:
		return "accepted_unapproved"
	case GateNoDraft:
		return "no_draft"
	default:
		return "unknown"
	}
}

func (s GateStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *GateStatus) UnmarshalText(b []byte) error {
	for _, v := range []GateStatus{GateApproved, GateExhausted, GateNoDraft} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown gate status %q", b)
}

// ReviewRecord is one attempt through the gate.
type ReviewRecord struct {
	Attempt   int    `json:"attempt"`
	Approved  bool   `json:"approved"`
	Feedback  string `json:"feedback,omitempty"`
	Malformed bool   `json:"malformed,omitempty"`
	DraftErr  string `json:"draft_error,omitempty"`
}

// GateResult carries the kept draft and the attempt history.
type GateResult[T any] struct {
	Draft    T
	HasDraft bool
	Status   GateStatus
	Attempts []ReviewRecord
}

// Rejections counts reviewed attempts that were not approved.
func (g GateResult[T]) Rejections() int {
	n := 0
	for _, a := range g.Attempts {
		if a.DraftErr == "" && !a.Approved {
			n++
		}
	}
	return n
}

// Gate bounds the produce/review loop.
type Gate struct {
	Budget int
	Logger *slog.Logger
	warn   *warnings
	stage  string
}

// Producer drafts an artifact, given the feedback from the last rejection.
type Producer[T any] func(ctx context.Context, feedback string) (T, error)

// Reviewer judges a draft. A failed Parsed counts as a rejection with no feedback.
type Reviewer[T any] func(ctx context.Context, draft T) generator.Parsed[generator.Review]

// RunGate loops produce -> review at most g.Budget times. An approved draft
// stops the loop. When the budget runs out the last produced draft is kept
// and a quality warning is logged; this is never an error.
func RunGate[T any](ctx context.Context, g Gate, label string, produce Producer[T], review Reviewer[T]) GateResult[T] {
	budget := max(g.Budget, 1)
	var res GateResult[T]
	feedback := ""
	for attempt := 1; attempt <= budget; attempt++ {
		if ctx.Err() != nil {
			break
		}
		draft, err := produce(ctx, feedback)
		if err != nil {
			res.Attempts = append(res.Attempts, ReviewRecord{Attempt: attempt, DraftErr: err.Error()})
			g.flag(label, WarnDraftFailed, "attempt %d produced no draft: %v", attempt, err)
			continue
		}
		res.Draft, res.HasDraft = draft, true

		rec := ReviewRecord{Attempt: attempt}
		verdict := review(ctx, draft)
		switch {
		case !verdict.OK:
			rec.Malformed = true
			feedback = ""
			g.flag(label, WarnMalformedReview, "attempt %d review unreadable, treating as rejection: %v", attempt, verdict.Err)
		case verdict.Value.Approved:
			rec.Approved = true
			res.Attempts = append(res.Attempts, rec)
			res.Status = GateApproved
			g.logger().Info("draft approved", "label", label, "attempt", attempt)
			return res
		default:
			feedback = verdict.Value.Feedback
			rec.Feedback = feedback
			g.logger().Info("draft rejected", "label", label, "attempt", attempt, "feedback", feedback)
		}
		res.Attempts = append(res.Attempts, rec)
	}

	if !res.HasDraft {
		res.Status = GateNoDraft
		g.flag(label, WarnNoDraft, "no draft after %d attempts", len(res.Attempts))
		return res
	}
	res.Status = GateExhausted
	g.flag(label, WarnUnapproved, "accepting last draft without approval after %d attempts", len(res.Attempts))
	return res
}

func (g Gate) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g Gate) flag(label string, kind WarningKind, format string, args ...any) {
	if g.warn != nil {
		g.warn.add(g.stage, label, kind, format, args...)
		return
	}
	g.logger().Warn("quality warning", "label", label, "kind", kind, "message", fmt.Sprintf(format, args...))
}
