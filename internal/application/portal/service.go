// Package portal is the read/aggregate layer behind the franchisor portal. It
// scopes every query to one client, shapes rows into view-models, and reports
// backend failures explicitly while still handing back an empty value.
package portal

import (
	"context"
	"errors"
	"time"

	"franchisor-portal/internal/infrastructure/metrics"
	"franchisor-portal/internal/pkg/geo"
	"franchisor-portal/internal/realtime"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const defaultFanoutLimit = 8

var (
	ErrMarketNotFound   = errors.New("Market not found")
	ErrPropertyNotFound = errors.New("Property not found")
	ErrUpdateNotFound   = errors.New("Market update not found")
	ErrInvalidUpdate    = errors.New("author and message are required")
	ErrMissingClient    = errors.New("client id is required")
)

// BackendError marks a failure of the hosted database, as opposed to a
// not-found or validation outcome.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }

// IsBackend reports whether err came from the database rather than the caller.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

type Service struct {
	DB          *gorm.DB
	ClientID    uuid.UUID
	FanoutLimit int
	Publisher   realtime.Publisher
	Metrics     *metrics.Collectors
	Log         zerolog.Logger

	// MapDefault is shown when a map has no located properties.
	MapDefault geo.Viewport
	MapSize    geo.Size
}

// NewService returns a Service scoped to clientID.
func NewService(db *gorm.DB, clientID uuid.UUID, opts ...Option) (*Service, error) {
	if clientID == uuid.Nil {
		return nil, ErrMissingClient
	}
	s := &Service{
		DB:          db,
		ClientID:    clientID,
		FanoutLimit: defaultFanoutLimit,
		Log:         zerolog.Nop(),
		MapDefault:  geo.Viewport{Center: geo.LatLng{Lat: 39.8283, Lng: -98.5795}, Zoom: 3.5},
		MapSize:     geo.Size{Width: 1024, Height: 640},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

type Option func(*Service)

func WithFanoutLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.FanoutLimit = n
		}
	}
}

func WithPublisher(p realtime.Publisher) Option {
	return func(s *Service) { s.Publisher = p }
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(s *Service) { s.Metrics = m }
}

func WithMapDefault(v geo.Viewport) Option {
	return func(s *Service) { s.MapDefault = v }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.Log = l.With().Str("component", "portal").Logger() }
}

// observe logs and counts a backend failure and wraps it as a BackendError.
// Not-found, validation and cancellation errors pass through untouched.
func (s *Service) observe(op string, start time.Time, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var be error
	if err != nil && !isCallerError(err) {
		be = &BackendError{Op: op, Err: err}
		s.Log.Error().Err(err).Str("op", op).Msg("backend query failed")
	}
	s.Metrics.ObserveQuery(op, start, be)
	if be != nil {
		return be
	}
	return err
}

func isCallerError(err error) bool {
	return errors.Is(err, ErrMarketNotFound) ||
		errors.Is(err, ErrPropertyNotFound) ||
		errors.Is(err, ErrUpdateNotFound) ||
		errors.Is(err, ErrInvalidUpdate) ||
		IsBackend(err)
}

// clientProperties joins properties to markets so only this client's rows are visible.
func (s *Service) clientProperties(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).
		Table("properties").
		Select("properties.*").
		Joins("INNER JOIN markets ON markets.id = properties.market_id").
		Where("markets.client_id = ?", s.ClientID)
}
