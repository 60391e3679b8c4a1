package portal

import (
	"context"
	"errors"
	"time"

	"franchisor-portal/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const recentPropertiesLimit = 5

// ListProperties returns every property in this client's markets, newest first.
func (s *Service) ListProperties(ctx context.Context) ([]domain.Property, error) {
	start := time.Now()
	props := []domain.Property{}
	err := s.clientProperties(ctx).
		Order("properties.created_at DESC").
		Find(&props).Error
	if err != nil {
		return []domain.Property{}, s.observe("list_properties", start, err)
	}
	s.observe("list_properties", start, nil)
	return props, nil
}

// ListPropertiesByMarket returns the market's properties, newest first. A
// market of another client yields an empty list.
func (s *Service) ListPropertiesByMarket(ctx context.Context, marketID uuid.UUID) ([]domain.Property, error) {
	start := time.Now()
	props := []domain.Property{}
	err := s.clientProperties(ctx).
		Where("properties.market_id = ?", marketID).
		Order("properties.created_at DESC").
		Find(&props).Error
	if err != nil {
		return []domain.Property{}, s.observe("list_properties_by_market", start, err)
	}
	s.observe("list_properties_by_market", start, nil)
	return props, nil
}

// GetProperty returns one property of this client.
func (s *Service) GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	start := time.Now()
	var prop domain.Property
	err := s.clientProperties(ctx).
		Where("properties.id = ?", id).
		Take(&prop).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrPropertyNotFound
	}
	if err != nil {
		return nil, s.observe("get_property", start, err)
	}
	s.observe("get_property", start, nil)
	return &prop, nil
}

// GetDashboardStats summarizes markets and properties. Per-market counts come
// from one grouped query; markets without properties report zero.
func (s *Service) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	markets, err := s.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}
	props, err := s.ListProperties(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var counts []struct {
		MarketID uuid.UUID
		Count    int
	}
	err = s.clientProperties(ctx).
		Select("properties.market_id AS market_id, COUNT(*) AS count").
		Group("properties.market_id").
		Scan(&counts).Error
	if err != nil {
		return nil, s.observe("count_properties_by_market", start, err)
	}
	s.observe("count_properties_by_market", start, nil)

	byMarket := make(map[uuid.UUID]int, len(counts))
	for _, c := range counts {
		byMarket[c.MarketID] = c.Count
	}
	stats := &domain.DashboardStats{
		TotalMarkets:       len(markets),
		TotalProperties:    len(props),
		RecentProperties:   props[:min(len(props), recentPropertiesLimit)],
		PropertiesByMarket: make([]domain.MarketPropertyCount, 0, len(markets)),
	}
	for _, m := range markets {
		stats.PropertiesByMarket = append(stats.PropertiesByMarket, domain.MarketPropertyCount{
			MarketID: m.ID,
			Name:     m.Name,
			Count:    byMarket[m.ID],
		})
	}
	return stats, nil
}
