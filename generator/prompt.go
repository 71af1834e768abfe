package generator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Task identifies which role a prompt is for.
type Task string

const (
	TaskHire     Task = "hire"
	TaskThink    Task = "think"
	TaskJudge    Task = "judge"
	TaskFinal    Task = "final"
	TaskBrief    Task = "brief"
	TaskReview   Task = "review"
	TaskSettings Task = "settings"
	TaskPlotStep Task = "plot_step"
)

// Prompt is one request to the content provider. Task, Actor and Expect
// are routing metadata for logs and stubs; they are never sent.
type Prompt struct {
	Task        Task
	Actor       string
	Expect      int
	System      string
	User        string
	History     []Message
	JSON        bool
	Temperature *float64
}

// Message is a role-tagged history entry.
type Message struct {
	Role    string
	Content string
}

// Temp returns a pointer for Prompt.Temperature.
func Temp(v float64) *float64 { return &v }

const creativeSystem = "You are an award-winning Science Fiction author. Your goal is to write compelling, logical, and creative narratives based on given data."

// BuildHirePrompt asks for n personas with clashing disciplines.
func BuildHirePrompt(system, topic string, n int) Prompt {
	user := fmt.Sprintf(`You are the architect of a Sci-Fi Think Tank. Your goal is to predict the wild, mature future (Stage 3) of %q.

Task: Create %d distinct expert agents.
These %d agents must hold completely different views or come from completely different disciplines.

Output in JSON format:
{ "agents": [ { "name": "Creative Name", "expertise": "Field of expertise", "personality": "Personality/Tone", "perspective": "Their core belief about the future of %s" } ] }`, topic, n, n, topic)
	return Prompt{
		Task:        TaskHire,
		Expect:      n,
		System:      system,
		User:        user,
		JSON:        true,
		Temperature: Temp(1.0),
	}
}

// BuildThinkPrompt asks one persona for a bold idea. The persona's own
// earlier outputs for this element are replayed as private history.
func BuildThinkPrompt(system string, p Persona, element, worldContext string, history []string) Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are **%s**.\nExpertise: %s\nPerspective: %s\n\n", p.Name, p.Expertise, p.Stance)
	fmt.Fprintf(&sb, "Task: Brainstorm the AP Model element %q for the Future (Stage 3).\n\n", element)
	sb.WriteString("## Context (Previous Future Generations):\n")
	sb.WriteString(worldContext)
	sb.WriteString("\n\n## Instruction\n")
	sb.WriteString("Imagine how this technology has mutated, evolved, or merged into society in the future.\n")
	fmt.Fprintf(&sb, "Your idea should reflect your perspective: %q. Your tone: %s. Be bold. Be weird.\n", p.Stance, p.Tone)
	if len(history) > 0 {
		sb.WriteString("Do not repeat your earlier ideas; push further.\n")
	}
	sb.WriteString("\nOutput a unique, bold idea (max 50 words). TEXT ONLY.")

	var msgs []Message
	for _, h := range history {
		msgs = append(msgs, Message{Role: "assistant", Content: h})
	}
	return Prompt{
		Task:        TaskThink,
		Actor:       p.Name,
		System:      system,
		User:        sb.String(),
		History:     msgs,
		Temperature: Temp(1.2),
	}
}

// BuildJudgePrompt asks the editor to pick exactly one proposal.
func BuildJudgePrompt(system string, proposals []Proposal, element, topic string) Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\nElement: %s (Stage 3: Future)\n\n", topic, element)
	sb.WriteString("You are a Sci-Fi Editor selecting the most interesting concept for a story setting.\n")
	sb.WriteString("Selection criteria: creativity and novelty, depth of social change, consistency with the context (prefer interesting over safe).\n\n")
	for i, p := range proposals {
		fmt.Fprintf(&sb, "Proposal %d (%s): %s\n", i+1, p.Author.Name, p.Content)
	}
	sb.WriteString("\nOutput JSON:\n{ \"selected_agent\": \"Name\", \"selected_content\": \"Content\", \"reason\": \"Reason for selection\" }")
	return Prompt{
		Task:        TaskJudge,
		Actor:       "editor",
		System:      system,
		User:        sb.String(),
		JSON:        true,
		Temperature: Temp(0),
	}
}

// RoundJudgment pairs a round index with its winning judgment.
type RoundJudgment struct {
	Round    int
	Judgment Judgment
}

// BuildFinalPrompt asks for the single best content across rounds.
func BuildFinalPrompt(system string, rounds []RoundJudgment, element, topic string) Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Final Decision for %q in %q (Stage 3).\nHere are the winners of separate brainstorming iterations:\n", element, topic)
	for _, r := range rounds {
		fmt.Fprintf(&sb, "Iteration %d: %s (Reason: %s)\n", r.Round, r.Judgment.Content, r.Judgment.Rationale)
	}
	sb.WriteString("\nChoose the absolute best final content for this element.\nOutput JSON:\n{ \"final_content\": \"The final refined content text\", \"reason\": \"Final justification\" }")
	return Prompt{
		Task:        TaskFinal,
		Actor:       "editor",
		System:      system,
		User:        sb.String(),
		JSON:        true,
		Temperature: Temp(0),
	}
}

// BuildBriefPrompt asks the overseer to distill the world model for one consumer.
func BuildBriefPrompt(system string, world *WorldModel, target BriefTarget) Prompt {
	focus := "Extract ONLY the dynamic elements relevant to Plot."
	if target == BriefSetting {
		focus = "Extract ONLY the static elements relevant to World Building."
	}
	user := fmt.Sprintf(`You are the Global Overseer. You hold the full Sociological Model (AP Model) for the FUTURE WORLD.
Give the %s agent the information it needs to write a creative science fiction story set in this future.

## The Future World Model (Master File)
%s

## Task
Create a Concept Brief for the %s agent.
%s

## Output Format (JSON)
{ "briefing_theme": "A short theme title", "relevant_data_points": "A summary of the AP model nodes/arrows this agent should focus on." }`,
		target, world.Context(), target, focus)
	return Prompt{
		Task:   TaskBrief,
		Actor:  string(target),
		System: system,
		User:   user,
		JSON:   true,
	}
}

// BuildReviewPrompt asks the overseer to approve or reject a draft.
func BuildReviewPrompt(system, label string, draft any, supporting string, world *WorldModel, criteria string) Prompt {
	user := fmt.Sprintf(`You are a strict Global Overseer. Ensure the content follows the logic of the AP Model and the instructions provided.

## Reference Material 1: The Future Sociological Model (Ground Truth)
%s

## Reference Material 2: Instructions provided to the Agent
%s

## Review Criteria
%s

## The Content to Review (%s)
%s

## Output Format (JSON)
{ "approved": true/false, "feedback": "Empty if approved. If rejected, specific advice on how to fix the contradiction." }`,
		world.Context(), supporting, criteria, label, indentJSON(draft))
	return Prompt{
		Task:   TaskReview,
		Actor:  label,
		System: system,
		User:   user,
		JSON:   true,
	}
}

// BuildSettingsPrompt asks the setting agent for a world view and cast.
func BuildSettingsPrompt(brief Brief, feedback string) Prompt {
	user := fmt.Sprintf(`You are the Setting Agent. Design creative World & Character settings for a sci-fi story.

## Director's Brief
%s

## Instructions
1. World View: describe the year, the background, the state of the product or concept.
2. Characters: create EXACTLY 4 key characters.

## Previous Feedback (if any, you MUST fix this)
%s

## Output Format (JSON)
{ "world_view": "Description", "characters": [ { "name": "...", "role": "...", "motivation": "..." } ] }`,
		indentJSON(brief), feedback)
	return Prompt{
		Task:   TaskSettings,
		Actor:  "setting",
		System: creativeSystem,
		User:   user,
		JSON:   true,
	}
}

// AcceptedStep is a plot step already fixed in the outline.
type AcceptedStep struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// BuildPlotStepPrompt asks the outline agent for one narrative step.
func BuildPlotStepPrompt(step Step, settings Settings, brief Brief, previous []AcceptedStep, feedback string) Prompt {
	history := "This is the beginning of the story."
	if len(previous) > 0 {
		lines := make([]string, 0, len(previous))
		for _, p := range previous {
			lines = append(lines, fmt.Sprintf("%s: %s", p.Name, p.Summary))
		}
		history = strings.Join(lines, "\n")
	}
	user := fmt.Sprintf(`You are the Outline Agent. Write the %s of the story.

## The Story Settings
%s

## Director's Plot Instructions
%s

## Current Plot History
%s

## Step Goal
%s

## Previous Feedback (if any, fix this)
%s

## Output Format (JSON)
{ "summary": "Detailed narrative paragraph of what happens, focused on character actions and plot progression (about 100 words)." }`,
		step.Name, indentJSON(settings), indentJSON(brief), history, step.Goal, feedback)
	return Prompt{
		Task:   TaskPlotStep,
		Actor:  step.Name,
		System: creativeSystem,
		User:   user,
		JSON:   true,
	}
}

func indentJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
