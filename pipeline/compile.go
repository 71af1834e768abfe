package pipeline

import (
	"strings"

	"sfstory/generator"
)

// ParagraphSeparator joins compiled outline paragraphs.
const ParagraphSeparator = "\n\n"

// Compile joins the step summaries, in order, as plain paragraphs. Empty
// summaries are skipped and no other field is carried over.
func Compile(steps []generator.PlotStep) string {
	paragraphs := make([]string, 0, len(steps))
	for _, s := range steps {
		if text := strings.TrimSpace(s.Summary); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return strings.Join(paragraphs, ParagraphSeparator)
}
