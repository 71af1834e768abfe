package generator

// Persona is one synthetic viewpoint hired for a run. The JSON names follow
// what the hiring prompt asks the model to emit.
type Persona struct {
	Name      string `json:"name"`
	Expertise string `json:"expertise"`
	Tone      string `json:"personality"`
	Stance    string `json:"perspective"`
}

// Proposal is one persona's candidate content for an element.
type Proposal struct {
	Author  Persona
	Content string
}

// Judgment is the selector's pick for a single round.
type Judgment struct {
	Winner    string `json:"selected_agent"`
	Content   string `json:"selected_content"`
	Rationale string `json:"reason"`
}

// FinalDecision is the cross-round pick for an element.
type FinalDecision struct {
	Content   string `json:"final_content"`
	Rationale string `json:"reason"`
}

// Brief is the overseer's digest of the world model for one consumer.
type Brief struct {
	Theme          string   `json:"briefing_theme"`
	RelevantPoints FlexText `json:"relevant_data_points"`
}

// Character belongs to the story settings.
type Character struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Motivation string `json:"motivation"`
}

// Settings is the world view and cast drafted by the setting agent.
type Settings struct {
	WorldView  string      `json:"world_view"`
	Characters []Character `json:"characters"`
}

// PlotStep is one drafted outline paragraph.
type PlotStep struct {
	Summary string `json:"summary"`
}

// Review is the overseer's verdict on a draft.
type Review struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// Step names one narrative stage and what it must accomplish.
type Step struct {
	Name string
	Goal string
}

// BriefTarget selects which consumer a brief is written for.
type BriefTarget string

const (
	BriefSetting BriefTarget = "setting"
	BriefPlot    BriefTarget = "plot"
)
