package models

import "strings"

type Phase string

const (
	PhaseInitial          Phase = "initial"
	PhaseAwaitingApproval Phase = "awaiting_approval"
	PhaseGenerating       Phase = "generating"
	PhaseComplete         Phase = "complete"
)

// NormalizePhase folds backend phase tags onto the known phases by substring
// match. Unrecognised tags come back unchanged; an empty tag is initial.
func NormalizePhase(raw string) Phase {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case v == "":
		return PhaseInitial
	case strings.Contains(v, "initial"):
		return PhaseInitial
	case strings.Contains(v, "await"), strings.Contains(v, "approval"):
		return PhaseAwaitingApproval
	case strings.Contains(v, "generat"):
		return PhaseGenerating
	case strings.Contains(v, "complete"):
		return PhaseComplete
	}
	return Phase(raw)
}
