package portal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"franchisor-portal/internal/domain"
	"franchisor-portal/internal/realtime"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListMarketUpdates returns updates for this client's markets, newest first,
// optionally narrowed to one market.
func (s *Service) ListMarketUpdates(ctx context.Context, marketID *uuid.UUID) ([]domain.MarketUpdate, error) {
	start := time.Now()
	updates := []domain.MarketUpdate{}
	q := s.clientUpdates(ctx)
	if marketID != nil {
		q = q.Where("market_updates.market_id = ?", *marketID)
	}
	err := q.Order("market_updates.created_at DESC").Find(&updates).Error
	if err != nil {
		return []domain.MarketUpdate{}, s.observe("list_market_updates", start, err)
	}
	s.observe("list_market_updates", start, nil)
	return updates, nil
}

// CreateMarketUpdate posts a note on one of this client's markets.
func (s *Service) CreateMarketUpdate(ctx context.Context, marketID uuid.UUID, author, message string) (*domain.MarketUpdate, error) {
	author = strings.TrimSpace(author)
	message = strings.TrimSpace(message)
	if author == "" || message == "" {
		return nil, ErrInvalidUpdate
	}
	if _, err := s.GetMarket(ctx, marketID); err != nil {
		return nil, err
	}

	start := time.Now()
	u := &domain.MarketUpdate{MarketID: marketID, Author: author, Message: message}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, s.observe("create_market_update", start, err)
	}
	s.observe("create_market_update", start, nil)
	s.publish(ctx, realtime.EventInsert, u, nil)
	return u, nil
}

// UpdateMarketUpdate replaces the message of an existing update.
func (s *Service) UpdateMarketUpdate(ctx context.Context, id uuid.UUID, message string) (*domain.MarketUpdate, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrInvalidUpdate
	}
	old, err := s.getMarketUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	updated := *old
	updated.Message = message
	updated.UpdatedAt = time.Now().UTC()
	err = s.DB.WithContext(ctx).
		Model(&domain.MarketUpdate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"message": updated.Message, "updated_at": updated.UpdatedAt}).Error
	if err != nil {
		return nil, s.observe("update_market_update", start, err)
	}
	s.observe("update_market_update", start, nil)
	s.publish(ctx, realtime.EventUpdate, &updated, old)
	return &updated, nil
}

// DeleteMarketUpdate removes an update. It reports false with
// ErrUpdateNotFound when nothing matched.
func (s *Service) DeleteMarketUpdate(ctx context.Context, id uuid.UUID) (bool, error) {
	old, err := s.getMarketUpdate(ctx, id)
	if err != nil {
		return false, err
	}

	start := time.Now()
	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&domain.MarketUpdate{})
	if res.Error != nil {
		return false, s.observe("delete_market_update", start, res.Error)
	}
	s.observe("delete_market_update", start, nil)
	if res.RowsAffected == 0 {
		return false, ErrUpdateNotFound
	}
	s.publish(ctx, realtime.EventDelete, nil, old)
	return true, nil
}

func (s *Service) getMarketUpdate(ctx context.Context, id uuid.UUID) (*domain.MarketUpdate, error) {
	start := time.Now()
	var u domain.MarketUpdate
	err := s.clientUpdates(ctx).Where("market_updates.id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrUpdateNotFound
	}
	if err != nil {
		return nil, s.observe("get_market_update", start, err)
	}
	s.observe("get_market_update", start, nil)
	return &u, nil
}

func (s *Service) clientUpdates(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).
		Table("market_updates").
		Select("market_updates.*").
		Joins("INNER JOIN markets ON markets.id = market_updates.market_id").
		Where("markets.client_id = ?", s.ClientID)
}

// publish forwards a write to live views. Failures are logged, never returned:
// the row is already committed.
func (s *Service) publish(ctx context.Context, typ realtime.EventType, row, old *domain.MarketUpdate) {
	if s.Publisher == nil {
		return
	}
	marketID := uuid.Nil
	ev := realtime.ChangeEvent{
		Schema:          "public",
		Table:           "market_updates",
		Type:            typ,
		CommitTimestamp: time.Now().UTC(),
	}
	if row != nil {
		marketID = row.MarketID
		ev.Record = toRecord(row)
	}
	if old != nil {
		marketID = old.MarketID
		ev.OldRecord = toRecord(old)
	}
	f := realtime.Filter{Table: "market_updates", Column: "market_id", Value: marketID.String()}
	if err := s.Publisher.Publish(ctx, f, ev); err != nil {
		s.Log.Warn().Err(err).Str("channel", f.Channel()).Msg("publish market update event")
	}
}

func toRecord(u *domain.MarketUpdate) map[string]interface{} {
	b, err := json.Marshal(u)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
