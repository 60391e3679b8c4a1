package router

import (
	"context"
	"errors"
	"net/http"

	healthsvc "franchisor-portal/internal/application/health"
	portalsvc "franchisor-portal/internal/application/portal"
	"franchisor-portal/internal/config"
	"franchisor-portal/internal/infrastructure/database"
	"franchisor-portal/internal/infrastructure/metrics"
	healthhandler "franchisor-portal/internal/interfaces/handlers/health"
	portalhandler "franchisor-portal/internal/interfaces/handlers/portal"
	"franchisor-portal/internal/middleware"
	"franchisor-portal/internal/pkg/geo"
	"franchisor-portal/internal/pkg/logger"
	"franchisor-portal/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the long-lived resources behind the app. Close releases them and
// ends any open live streams.
type Deps struct {
	DB      *gorm.DB
	Rdb     *redis.Client
	Metrics *metrics.Collectors
	Service *portalsvc.Service

	cancel context.CancelFunc
}

// StopStreams ends open live streams so their connections can drain.
func (d *Deps) StopStreams() {
	if d != nil && d.cancel != nil {
		d.cancel()
	}
}

func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	d.StopStreams()
	var errs []error
	if d.Rdb != nil {
		errs = append(errs, d.Rdb.Close())
	}
	if d.DB != nil {
		if sqlDB, err := d.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

// CreateApp wires configuration, storage, the change feed and all routes.
// Redis is optional: without it traffic stats are off and writes fan out
// in-process only.
func CreateApp(cfg *config.Config) (*fiber.App, *Deps, error) {
	log := logger.Component("router")
	deps := &Deps{Metrics: metrics.New()}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		deps.Rdb = redis.NewClient(opt)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.NewErrorHandler(deps.Rdb),
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger(logger.Component("http")))
	app.Use(middleware.HealthMarker(deps.Rdb))

	var dbPinger healthsvc.DBPinger
	if cfg.DatabaseURL != "" {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			deps.Close()
			return nil, nil, err
		}
		deps.DB = db
		dbPinger = &database.Pinger{DB: db}
	}

	hh := &healthhandler.Handlers{
		Rdb:            deps.Rdb,
		DB:             dbPinger,
		HealthAdminKey: cfg.HealthAdminKey,
		External:       supabaseEndpoints(cfg),
	}
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{})))

	if deps.DB == nil {
		log.Warn().Msg("no database configured; portal routes disabled")
		return app, deps, nil
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	deps.cancel = cancel

	publisher, subscriber := changeFeed(cfg, deps.Rdb)
	svc, err := portalsvc.NewService(deps.DB, cfg.ClientID,
		portalsvc.WithFanoutLimit(cfg.FanoutLimit),
		portalsvc.WithPublisher(publisher),
		portalsvc.WithMetrics(deps.Metrics),
		portalsvc.WithLogger(logger.Component("portal")),
		portalsvc.WithMapDefault(geo.Viewport{
			Center: geo.LatLng{Lat: cfg.MapDefaultLat, Lng: cfg.MapDefaultLng},
			Zoom:   cfg.MapDefaultZoom,
		}),
	)
	if err != nil {
		deps.Close()
		return nil, nil, err
	}
	deps.Service = svc

	ph := &portalhandler.Handlers{
		Service: svc,
		Live: portalhandler.LiveConfig{
			Subscriber: subscriber,
			Debounce:   cfg.RealtimeDebounce,
			Metrics:    deps.Metrics,
			Log:        logger.Component("live"),
			Context:    streamCtx,
		},
	}

	api := app.Group("/api/v1")

	mg := api.Group("/markets")
	mg.Get("/", ph.ListMarkets)
	mg.Get("/details", ph.ListMarketsWithDetails)
	mg.Get("/:id", ph.GetMarket)
	mg.Get("/:id/properties", ph.ListMarketProperties)
	mg.Get("/:id/franchisees", ph.ListMarketFranchisees)
	mg.Get("/:id/map", ph.MarketMap)
	mg.Get("/:id/live/properties", ph.LiveProperties)
	mg.Get("/:id/live/updates", ph.LiveUpdates)

	api.Get("/properties", ph.ListProperties)
	api.Get("/properties/:id", ph.GetProperty)
	api.Get("/map", ph.ClientMap)
	api.Get("/dashboard/stats", ph.DashboardStats)

	ug := api.Group("/market-updates")
	ug.Get("/", ph.ListMarketUpdates)
	ug.Post("/", ph.CreateMarketUpdate)
	ug.Put("/:id", ph.UpdateMarketUpdate)
	ug.Delete("/:id", ph.DeleteMarketUpdate)

	return app, deps, nil
}

// changeFeed picks where portal writes are published and where live views
// listen. Writes go over Redis when available so every instance sees them;
// live views additionally follow the hosted Supabase feed when configured.
func changeFeed(cfg *config.Config, rdb *redis.Client) (realtime.Publisher, realtime.Subscriber) {
	var (
		publisher realtime.Publisher
		local     realtime.Subscriber
	)
	if rdb != nil {
		bus := &realtime.RedisBus{Rdb: rdb, Log: logger.Component("realtime")}
		publisher, local = bus, bus
	} else {
		hub := realtime.NewHub()
		publisher, local = hub, hub
	}
	if !cfg.RealtimeEnabled {
		return publisher, nil
	}

	feed := realtime.Fanout{local}
	if u := cfg.RealtimeURL(); u != "" {
		feed = append(feed, &realtime.SupabaseClient{
			URL:    u,
			APIKey: cfg.SupabaseAnonKey,
			Log:    logger.Component("supabase"),
		})
	}
	return publisher, feed
}

func supabaseEndpoints(cfg *config.Config) []healthsvc.Endpoint {
	if cfg.SupabaseURL == "" {
		return nil
	}
	return []healthsvc.Endpoint{{
		Name:   "supabase",
		URL:    cfg.SupabaseURL + "/rest/v1/",
		Header: http.Header{"Apikey": []string{cfg.SupabaseAnonKey}},
	}}
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
