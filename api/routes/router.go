package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/cartwatch/api/controllers"
	"github.com/angelmondragon/cartwatch/api/middleware"
	"github.com/angelmondragon/cartwatch/internal/cart"
	"github.com/angelmondragon/cartwatch/pkg/config"
	"github.com/angelmondragon/cartwatch/pkg/logger"
	"github.com/angelmondragon/cartwatch/pkg/redis"
)

// Params carries the dependencies the HTTP surface needs. Backups, Scheduler
// and Redis may be nil.
type Params struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        controllers.Pinger
	Redis     *redis.Client
	Carts     cart.Service
	Backups   controllers.BackupInspector
	Scheduler controllers.BackupRunner
	Gatherer  prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	deps := map[string]controllers.Pinger{"db": p.DB}
	var limiter middleware.WindowLimiter
	if p.Redis != nil {
		deps["redis"] = p.Redis
		limiter = p.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, deps))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/carts", func(r chi.Router) {
			r.Get("/", controllers.ListCarts(p.Carts, logg))
			r.Post("/", controllers.CreateCart(p.Carts, logg))
			r.Get("/{cartID}", controllers.GetCart(p.Carts, logg))
			r.Delete("/{cartID}", controllers.DeleteCart(p.Carts, logg))
			r.Get("/{cartID}/offers", controllers.ListCartOffers(p.Carts, logg))
		})
		r.Route("/offers", func(r chi.Router) {
			r.Post("/", controllers.AddOffer(p.Carts, logg))
			r.Delete("/{offerID}", controllers.DeleteOffer(p.Carts, logg))
		})
		r.Route("/backups", func(r chi.Router) {
			r.Get("/", controllers.BackupStatus(p.Backups, logg))
			r.With(middleware.RateLimit(limiter, "backup-run", cfg.Backup.ManualRunLimit, cfg.Backup.ManualRunWindow, logg)).
				Post("/run", controllers.RunBackup(p.Scheduler, p.Backups, logg))
		})
	})

	return r
}
