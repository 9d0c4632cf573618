package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/msourial/platefull/api/controllers"
	"github.com/msourial/platefull/api/middleware"
	"github.com/msourial/platefull/internal/conversation"
	"github.com/msourial/platefull/internal/history"
	"github.com/msourial/platefull/pkg/config"
	"github.com/msourial/platefull/pkg/logger"
)

// NewRouter mounts the health, metrics and turn endpoints. redisP and
// idempotency may be nil when Redis is not configured; metricsHandler may be
// nil to skip /metrics.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	idempotency middleware.IdempotencyStore,
	turns conversation.TurnHandler,
	historySvc history.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisP,
		}))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
		if idempotency != nil {
			r.Use(middleware.Idempotency(idempotency, logg))
		}
		r.Post("/turns", controllers.PostTurn(turns, logg))
		r.Get("/users/{userID}/profile", controllers.UserProfile(historySvc, logg))
	})

	return r
}
