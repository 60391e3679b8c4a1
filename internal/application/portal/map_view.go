package portal

import (
	"context"

	"franchisor-portal/internal/domain"
	"franchisor-portal/internal/pkg/geo"

	"github.com/google/uuid"
)

// mapPadding is the pixel margin kept around the outermost pins.
const mapPadding = 48

// MapViewForMarket returns the pins and viewport for one market's map.
func (s *Service) MapViewForMarket(ctx context.Context, marketID uuid.UUID, style geo.Style) (*domain.MapView, error) {
	if _, err := s.GetMarket(ctx, marketID); err != nil {
		return nil, err
	}
	props, err := s.ListPropertiesByMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return s.mapView(props, style), nil
}

// MapViewForClient returns every located property of the client on one map.
func (s *Service) MapViewForClient(ctx context.Context, style geo.Style) (*domain.MapView, error) {
	props, err := s.ListProperties(ctx)
	if err != nil {
		return nil, err
	}
	return s.mapView(props, style), nil
}

func (s *Service) mapView(props []domain.Property, style geo.Style) *domain.MapView {
	pins := make([]geo.Pin, 0, len(props))
	for _, p := range props {
		if !p.HasLocation() {
			continue
		}
		pins = append(pins, geo.Pin{
			ID:    p.ID.String(),
			Lat:   *p.Lat,
			Lng:   *p.Lng,
			Label: p.Label(),
			Phase: p.Phase,
		})
	}
	style = geo.ParseStyle(string(style))
	return &domain.MapView{
		Pins:     pins,
		Viewport: geo.Fit(pins, s.MapSize, mapPadding, s.MapDefault),
		Style:    style,
		StyleURL: style.URL(),
	}
}
