package portal

import (
	"strings"

	"franchisor-portal/internal/domain"
)

// PropertyFilter narrows a property list. Zero values match everything.
type PropertyFilter struct {
	Phase  string
	Search string
}

func (f PropertyFilter) match(p domain.Property) bool {
	if f.Phase != "" && !strings.EqualFold(p.Phase, f.Phase) {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	for _, field := range []*string{p.Title, p.Address, p.City} {
		if field != nil && strings.Contains(strings.ToLower(*field), q) {
			return true
		}
	}
	return false
}

// FilterProperties keeps the properties matching f, preserving order.
func FilterProperties(props []domain.Property, f PropertyFilter) []domain.Property {
	out := make([]domain.Property, 0, len(props))
	for _, p := range props {
		if f.match(p) {
			out = append(out, p)
		}
	}
	return out
}

// MarketFilter narrows the markets table. Phase compares against the market's
// furthest phase.
type MarketFilter struct {
	Phase  string
	Search string
}

func (f MarketFilter) IsZero() bool {
	return strings.TrimSpace(f.Phase) == "" && strings.TrimSpace(f.Search) == ""
}

func FilterMarkets(markets []domain.MarketWithDetails, f MarketFilter) []domain.MarketWithDetails {
	q := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]domain.MarketWithDetails, 0, len(markets))
	for _, m := range markets {
		if f.Phase != "" && !strings.EqualFold(m.FurthestPhase(), f.Phase) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(m.Name), q) {
			continue
		}
		out = append(out, m)
	}
	return out
}
