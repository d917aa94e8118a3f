package web

import (
	"net/http"
	"time"

	"codevault/internal/config"
	"codevault/internal/infra/logging"
	red "codevault/internal/infra/redis"
	"codevault/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Server exposes the code operation surface over HTTP. All coordination is
// delegated to the store; handlers here are stateless and safe for
// concurrent invocation.
type Server struct {
	codeUC  usecase.CodeUseCase
	statsUC usecase.StatsUseCase
	auth    *AuthManager
	limiter *red.RateLimiter

	redeemLimit  int
	redeemWindow time.Duration

	log *zerolog.Logger
}

func NewServer(codeUC usecase.CodeUseCase, statsUC usecase.StatsUseCase, auth *AuthManager, limiter *red.RateLimiter, codesCfg config.CodesConfig, logger *zerolog.Logger) *Server {
	return &Server{
		codeUC:       codeUC,
		statsUC:      statsUC,
		auth:         auth,
		limiter:      limiter,
		redeemLimit:  codesCfg.RedeemLimit,
		redeemWindow: codesCfg.RedeemWindow(),
		log:          logger,
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(traceID)
	r.Use(requestLog(s.log))
	r.Use(recoverer(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1/codes", func(r chi.Router) {
		r.Use(s.requireActor)
		r.Post("/generate", s.handleGenerate)
		r.Post("/redeem", s.handleRedeem)
		r.Post("/delete", s.handleDeleteMany)
		r.Get("/stats", s.handleStats)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Delete("/{id}", s.handleDelete)
	})

	return r
}

// requireActor authenticates the bearer token and stores the actor identity
// in the request context.
func (s *Server) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := withActor(r.Context(), actor)
		ctx = logging.WithActorID(ctx, actor.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
