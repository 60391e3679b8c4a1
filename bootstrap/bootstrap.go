package bootstrap

import (
	"franchisor-portal/internal/config"
	"franchisor-portal/internal/interfaces/router"
	"franchisor-portal/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// New creates the Fiber app for serverless hosting (the api handler imports
// this package, not internal).
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Env, cfg.LogLevel)
	app, _, err := router.CreateApp(cfg)
	return app, err
}
