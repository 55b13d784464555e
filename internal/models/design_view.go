package models

import "errors"

// DesignView is the decoded design state of one assistant reply, shaped for
// the phase panels of the UI.
type DesignView struct {
	MessageID        string              `json:"messageId"`
	Phase            Phase               `json:"phase"`
	RequiresApproval bool                `json:"requiresApproval"`
	Plan             *DesignPlan         `json:"plan,omitempty"`
	Progress         *GenerationProgress `json:"progress,omitempty"`
	Screens          []GeneratedScreen   `json:"screens"`
}

// NewDesignView decodes msg's metadata. Payloads that fail to decode are left
// out of the view and reported together in the returned error.
func NewDesignView(msg ConversationMessage) (DesignView, error) {
	view := DesignView{MessageID: msg.ID, Phase: PhaseInitial, Screens: []GeneratedScreen{}}
	md := msg.Metadata
	if md == nil {
		return view, nil
	}
	view.Phase = md.NormalizedPhase()
	view.RequiresApproval = md.RequiresApproval != nil && *md.RequiresApproval

	var errs []error
	if plan, ok, err := md.Plan(); err != nil {
		errs = append(errs, err)
	} else if ok {
		view.Plan = &plan
	}
	if progress, ok, err := md.Progress(); err != nil {
		errs = append(errs, err)
	} else if ok {
		view.Progress = &progress
	}
	if screens, err := md.Screens(); err != nil {
		errs = append(errs, err)
	} else {
		view.Screens = screens
	}
	return view, errors.Join(errs...)
}

// LatestDesignMessage returns the newest assistant reply that is not an error
// notice.
func LatestDesignMessage(msgs []ConversationMessage) (ConversationMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != RoleAssistant || (m.Metadata != nil && m.Metadata.Error) {
			continue
		}
		return m, true
	}
	return ConversationMessage{}, false
}
