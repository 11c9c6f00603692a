package router

import (
	"context"
	"net/http"

	"giftsplit-backend/internal/application/checkout"
	"giftsplit-backend/internal/application/emails"
	giftsvc "giftsplit-backend/internal/application/gifts"
	healthsvc "giftsplit-backend/internal/application/health"
	paysvc "giftsplit-backend/internal/application/payments"
	"giftsplit-backend/internal/application/provider"
	"giftsplit-backend/internal/config"
	"giftsplit-backend/internal/infrastructure/cache"
	"giftsplit-backend/internal/infrastructure/database"
	"giftsplit-backend/internal/infrastructure/stripecheckout"
	checkouthandler "giftsplit-backend/internal/interfaces/handlers/checkout"
	gifthandler "giftsplit-backend/internal/interfaces/handlers/gifts"
	healthhandler "giftsplit-backend/internal/interfaces/handlers/health"
	joinhandler "giftsplit-backend/internal/interfaces/handlers/join"
	payhandler "giftsplit-backend/internal/interfaces/handlers/payments"
	"giftsplit-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP app is built from. Redis, Sender and
// Locker are optional.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Provider provider.Checkout
	Verifier provider.EventVerifier
	Sender   emails.Sender
	Locker   checkout.Locker
}

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) PingContext(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateApp opens Postgres and Redis from cfg, wires Stripe and Brevo, and
// returns the app plus the opened connections for the caller to verify.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, nil, nil, err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = cache.Open(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		log.Warn().Msg("REDIS_URL not set; checkout locking falls back to the database index and health counters are off")
	}

	stripeClient := stripecheckout.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.AppBaseURL)
	deps := Deps{
		DB:       db,
		Redis:    rdb,
		Provider: stripeClient,
		Verifier: stripeClient,
		Sender:   emails.NewBrevoClient(cfg.SendinblueAPIKey, cfg.MailFrom),
	}
	return New(cfg, deps), db, rdb, nil
}

// New registers middleware and routes over deps.
func New(cfg *config.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	// Stripe webhook is mounted before CORS and reads the raw body.
	reconciler := &paysvc.Reconciler{DB: deps.DB, Verifier: deps.Verifier}
	stripeWebhook := &payhandler.WebhookHandler{Reconciler: reconciler}
	app.Post("/api/stripe/webhook", stripeWebhook.HandleWebhook)

	app.Use(middleware.HealthMarker(deps.Redis))
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}, cfg.IsProduction()))

	var dbPinger healthsvc.DBPinger
	if deps.DB != nil {
		dbPinger = &gormDBPinger{db: deps.DB}
	}
	hh := &healthhandler.Handlers{
		Rdb:            deps.Redis,
		Collector:      &healthsvc.Collector{Redis: deps.Redis, DB: dbPinger},
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/reset", hh.Reset)
	app.Get("/health/errors", hh.Errors)

	locker := deps.Locker
	if locker == nil && deps.Redis != nil {
		// A waiting caller usually finds the holder's session and reuses it.
		locker = &cache.RedisLocker{Client: deps.Redis, Prefix: "lock:checkout:", Wait: cfg.ProviderTimeout, TTL: 2 * cfg.ProviderTimeout}
	}
	gs := &giftsvc.Service{DB: deps.DB}
	sessions := &checkout.Repository{DB: deps.DB}
	orch := &checkout.Orchestrator{
		Gifts:    gs,
		Sessions: sessions,
		Provider: deps.Provider,
		Sender:   deps.Sender,
		Locker:   locker,
		Timeout:  cfg.ProviderTimeout,
	}

	api := app.Group("/api")

	gh := &gifthandler.Handlers{Service: gs, Checkout: orch, AppBaseURL: cfg.AppBaseURL}
	gg := api.Group("/gifts")
	gg.Post("/", gh.CreateGift)
	gg.Get("/", gh.ListGifts)
	gg.Get("/:giftId", gh.GetGift)
	gg.Post("/:giftId/invitees", gh.AddInvitees)
	gg.Post("/:giftId/invitation-links", gh.CreateLink)
	gg.Get("/:giftId/invitation-links/latest", gh.LatestLink)
	gg.Delete("/:giftId/invitation-links/:linkId", gh.RevokeLink)
	gg.Post("/:giftId/lock-and-send", gh.LockAndSend)

	jh := &joinhandler.Handlers{Service: gs}
	jg := api.Group("/join")
	jg.Get("/:token", jh.Preview)
	jg.Get("/:token/invitee", jh.Invitee)
	jg.Post("/:token/respond", jh.Respond)

	ch := &checkouthandler.Handlers{Sessions: sessions}
	api.Get("/checkout-sessions/:sessionId/status", ch.Status)

	return app
}

// Handler adapts the app to net/http for serverless runtimes.
func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
