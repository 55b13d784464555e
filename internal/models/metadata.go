package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AssistantMetadata accumulates the structured parts of a streamed assistant
// reply. Keys are merged frame by frame and never cleared by a later frame.
// The structured payloads are kept as raw JSON; use the typed accessors to
// read them.
type AssistantMetadata struct {
	Phase              string            `json:"phase,omitempty"`
	RequiresApproval   *bool             `json:"requiresApproval,omitempty"`
	DesignPlan         json.RawMessage   `json:"designPlan,omitempty"`
	GenerationProgress json.RawMessage   `json:"generationProgress,omitempty"`
	GeneratedScreens   []json.RawMessage `json:"generatedScreens,omitempty"`
	HumanFeedback      json.RawMessage   `json:"humanFeedback,omitempty"`
	Error              bool              `json:"error,omitempty"`
}

func (m AssistantMetadata) Clone() AssistantMetadata {
	out := m
	if m.RequiresApproval != nil {
		v := *m.RequiresApproval
		out.RequiresApproval = &v
	}
	out.DesignPlan = cloneRaw(m.DesignPlan)
	out.GenerationProgress = cloneRaw(m.GenerationProgress)
	out.HumanFeedback = cloneRaw(m.HumanFeedback)
	if m.GeneratedScreens != nil {
		out.GeneratedScreens = make([]json.RawMessage, len(m.GeneratedScreens))
		for i, s := range m.GeneratedScreens {
			out.GeneratedScreens[i] = cloneRaw(s)
		}
	}
	return out
}

// NormalizedPhase maps the free-form phase tag onto the phases the UI renders.
func (m AssistantMetadata) NormalizedPhase() Phase {
	return NormalizePhase(m.Phase)
}

// PlannedScreen is one artifact of a design plan.
type PlannedScreen struct {
	ScreenID        string `json:"screen_id"`
	ScreenType      string `json:"screen_type"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	EstimatedTokens int    `json:"estimated_tokens"`
	GenerationOrder int    `json:"generation_order"`
}

type DesignPlan struct {
	PlanID               string          `json:"plan_id"`
	Screens              []PlannedScreen `json:"screens"`
	TotalEstimatedTokens int             `json:"total_estimated_tokens"`
	GenerationStrategy   string          `json:"generation_strategy"`
	UserContext          string          `json:"user_context"`
}

type GenerationProgress struct {
	CurrentScreen int     `json:"current_screen"`
	TotalScreens  int     `json:"total_screens"`
	Percentage    float64 `json:"percentage"`
	CurrentItem   string  `json:"current_item"`
	Status        string  `json:"status"`
}

type GeneratedScreen struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Plan decodes DesignPlan. ok is false when no plan has been received.
func (m AssistantMetadata) Plan() (plan DesignPlan, ok bool, err error) {
	if len(m.DesignPlan) == 0 {
		return plan, false, nil
	}
	if err := json.Unmarshal(m.DesignPlan, &plan); err != nil {
		return plan, true, fmt.Errorf("decode design plan: %w", err)
	}
	return plan, true, nil
}

func (m AssistantMetadata) Progress() (progress GenerationProgress, ok bool, err error) {
	if len(m.GenerationProgress) == 0 {
		return progress, false, nil
	}
	if err := json.Unmarshal(m.GenerationProgress, &progress); err != nil {
		return progress, true, fmt.Errorf("decode generation progress: %w", err)
	}
	return progress, true, nil
}

// Screens decodes every generated screen; entries that are not objects are
// reported as an error.
func (m AssistantMetadata) Screens() ([]GeneratedScreen, error) {
	out := make([]GeneratedScreen, 0, len(m.GeneratedScreens))
	for i, raw := range m.GeneratedScreens {
		var s GeneratedScreen
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode generated screen %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return bytes.Clone(r)
}
