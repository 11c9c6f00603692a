package bootstrap

import (
	"net/http"
	"os"
	"strings"

	"giftsplit-backend/internal/config"
	"giftsplit-backend/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New creates the Fiber app for Vercel serverless (api handler imports this package, not internal).
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	ConfigureLogging(cfg)
	app, _, _, err := router.CreateApp(cfg)
	return app, err
}

// HTTPHandler adapts the app to net/http.
func HTTPHandler(app *fiber.App) http.Handler {
	return router.Handler(app)
}

// ConfigureLogging sets the global zerolog level and, outside production,
// a human-readable console writer.
func ConfigureLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}
