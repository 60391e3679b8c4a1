package portal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"franchisor-portal/internal/domain"
	"franchisor-portal/internal/infrastructure/metrics"
	"franchisor-portal/internal/middleware"
	"franchisor-portal/internal/pkg/response"
	"franchisor-portal/internal/pkg/validation"
	"franchisor-portal/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultKeepAlive = 15 * time.Second

// LiveConfig wires the server-sent event endpoints to a change feed.
type LiveConfig struct {
	Subscriber realtime.Subscriber
	Debounce   time.Duration
	KeepAlive  time.Duration
	Metrics    *metrics.Collectors
	Log        zerolog.Logger
	// Context ends every open stream when cancelled (server shutdown).
	Context context.Context
}

// GET /api/v1/markets/:id/live/properties
func (h *Handlers) LiveProperties(c *fiber.Ctx) error {
	return serveLive(c, h, realtime.Options[domain.Property]{
		Table:  "properties",
		Column: "market_id",
		Fetch:  h.Service.ListPropertiesByMarket,
		ID:     func(p domain.Property) uuid.UUID { return p.ID },
	})
}

// GET /api/v1/markets/:id/live/updates
func (h *Handlers) LiveUpdates(c *fiber.Ctx) error {
	return serveLive(c, h, realtime.Options[domain.MarketUpdate]{
		Table:  "market_updates",
		Column: "market_id",
		Fetch: func(ctx context.Context, marketID uuid.UUID) ([]domain.MarketUpdate, error) {
			return h.Service.ListMarketUpdates(ctx, &marketID)
		},
		ID: func(u domain.MarketUpdate) uuid.UUID { return u.ID },
	})
}

// serveLive mounts one LiveView for the connection and streams a snapshot on
// mount and after every applied re-fetch. The view is unmounted when the
// client goes away.
func serveLive[T any](c *fiber.Ctx, h *Handlers, opts realtime.Options[T]) error {
	marketID, ok := validation.ParseID(c.Params("id"))
	if !ok {
		return response.BadRequest(c, "Invalid market id")
	}
	if h.Live.Subscriber == nil {
		return response.Error(c, "Live updates are disabled", fiber.StatusServiceUnavailable, nil)
	}
	if _, err := h.Service.GetMarket(c.UserContext(), marketID); err != nil {
		return fail(c, err)
	}

	base := h.Live.Context
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)

	log := h.Live.Log.With().
		Str("table", opts.Table).
		Str("market_id", marketID.String()).
		Str("trace_id", middleware.GetTraceID(c)).
		Logger()

	// latest snapshot wins; OnChange calls are serialized by the view
	snaps := make(chan realtime.Snapshot[T], 1)
	opts.Subscriber = h.Live.Subscriber
	opts.Debounce = h.Live.Debounce
	opts.Metrics = h.Live.Metrics
	opts.Log = log
	opts.OnChange = func(s realtime.Snapshot[T]) {
		select {
		case <-snaps:
		default:
		}
		snaps <- s
	}

	view := realtime.NewLiveView(opts)
	if err := view.Mount(ctx, marketID); err != nil {
		cancel()
		log.Error().Err(err).Msg("live view mount failed")
		return response.BadGateway(c)
	}

	keepAlive := h.Live.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer view.Unmount()
		log.Debug().Msg("live stream opened")

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snaps:
				if err := writeEvent(w, "snapshot", s); err != nil {
					log.Debug().Err(err).Msg("live stream closed")
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					log.Debug().Err(err).Msg("live stream closed")
					return
				}
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, event string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	return w.Flush()
}
