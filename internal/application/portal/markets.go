package portal

import (
	"context"
	"errors"
	"time"

	"franchisor-portal/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ListMarkets returns this client's markets ordered by name.
func (s *Service) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	start := time.Now()
	markets := []domain.Market{}
	err := s.DB.WithContext(ctx).
		Where("client_id = ?", s.ClientID).
		Order("name ASC").
		Find(&markets).Error
	if err != nil {
		return []domain.Market{}, s.observe("list_markets", start, err)
	}
	s.observe("list_markets", start, nil)
	return markets, nil
}

// GetMarket returns one of this client's markets.
func (s *Service) GetMarket(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	start := time.Now()
	var market domain.Market
	err := s.DB.WithContext(ctx).
		Where("id = ? AND client_id = ?", id, s.ClientID).
		First(&market).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrMarketNotFound
	}
	if err != nil {
		return nil, s.observe("get_market", start, err)
	}
	s.observe("get_market", start, nil)
	return &market, nil
}

// ListMarketFranchisees returns users linked to one of this client's markets as
// franchisees. Only users whose own role is franchisee are included.
func (s *Service) ListMarketFranchisees(ctx context.Context, marketID uuid.UUID) ([]domain.User, error) {
	start := time.Now()
	users := []domain.User{}
	err := s.DB.WithContext(ctx).
		Table("market_users").
		Select("users.*").
		Joins("INNER JOIN users ON users.id = market_users.user_id").
		Joins("INNER JOIN markets ON markets.id = market_users.market_id").
		Where("markets.client_id = ?", s.ClientID).
		Where("market_users.market_id = ? AND market_users.role = ? AND users.role = ?",
			marketID, domain.RoleFranchisee, domain.RoleFranchisee).
		Order("users.email ASC").
		Scan(&users).Error
	if err != nil {
		return []domain.User{}, s.observe("list_market_franchisees", start, err)
	}
	s.observe("list_market_franchisees", start, nil)
	return users, nil
}

// ListMarketsWithDetails attaches property count, furthest phase and
// franchisees to every market. Per-market fetches run concurrently, capped
// by FanoutLimit; output order matches ListMarkets.
func (s *Service) ListMarketsWithDetails(ctx context.Context) ([]domain.MarketWithDetails, error) {
	markets, err := s.ListMarkets(ctx)
	if err != nil {
		return []domain.MarketWithDetails{}, err
	}

	details := make([]domain.MarketWithDetails, len(markets))
	g, gctx := errgroup.WithContext(ctx)
	limit := s.FanoutLimit
	if limit <= 0 {
		limit = defaultFanoutLimit
	}
	g.SetLimit(limit)
	for i := range markets {
		i := i
		g.Go(func() error {
			d, err := s.marketDetails(gctx, markets[i])
			if err != nil {
				return err
			}
			details[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return []domain.MarketWithDetails{}, err
	}
	return details, nil
}

func (s *Service) marketDetails(ctx context.Context, m domain.Market) (domain.MarketWithDetails, error) {
	var (
		props       []domain.Property
		franchisees []domain.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		props, err = s.ListPropertiesByMarket(gctx, m.ID)
		return err
	})
	g.Go(func() error {
		var err error
		franchisees, err = s.ListMarketFranchisees(gctx, m.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.MarketWithDetails{}, err
	}

	phases := []string{}
	if p, ok := domain.FurthestPhase(domain.DistinctPhases(props)); ok {
		phases = append(phases, p)
	}
	return domain.MarketWithDetails{
		Market:        m,
		PropertyCount: len(props),
		Phases:        phases,
		Franchisees:   franchisees,
	}, nil
}

// FurthestPhase exposes domain.FurthestPhase on the layer.
func (s *Service) FurthestPhase(phases []string) (string, bool) {
	return domain.FurthestPhase(phases)
}
