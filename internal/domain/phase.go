package domain

import "strings"

// Property phases in pipeline order.
const (
	PhaseIntro         = "intro"
	PhaseSiteSelection = "site_selection"
	PhaseLOI           = "loi"
	PhaseLease         = "lease"
	PhaseClosed        = "closed"
)

// PhaseOrder is the fixed pipeline ordering; a higher index is further along.
var PhaseOrder = []string{PhaseIntro, PhaseSiteSelection, PhaseLOI, PhaseLease, PhaseClosed}

// PhaseRank returns the case-insensitive position of phase in PhaseOrder, or -1.
func PhaseRank(phase string) int {
	p := strings.ToLower(phase)
	for i, known := range PhaseOrder {
		if p == known {
			return i
		}
	}
	return -1
}

// FurthestPhase returns the phase with the highest rank, keeping its original casing.
// Ties go to the first one seen. Unrecognized phases rank below every known phase,
// so the first unrecognized phase is returned only when nothing is recognized.
// ok is false for empty input.
func FurthestPhase(phases []string) (phase string, ok bool) {
	best := -1
	for _, p := range phases {
		rank := PhaseRank(p)
		if !ok || rank > best {
			phase, best, ok = p, rank, true
		}
	}
	return phase, ok
}

// DistinctPhases returns the non-empty phases of props in first-seen order.
func DistinctPhases(props []Property) []string {
	seen := make(map[string]bool, len(props))
	out := make([]string, 0, len(props))
	for _, p := range props {
		if p.Phase == "" || seen[p.Phase] {
			continue
		}
		seen[p.Phase] = true
		out = append(out, p.Phase)
	}
	return out
}
