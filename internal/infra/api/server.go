package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
	"entitlement-service/internal/infra/i18n"
	"entitlement-service/internal/pkg/clock"
	"entitlement-service/internal/usecase"
)

// Deps is everything the HTTP layer needs. Accounts backs GET /me and may be
// the cached decorator.
type Deps struct {
	Redeem   usecase.RedeemUseCase
	Admin    usecase.CodeAdminUseCase
	Accounts repository.AccountRepository
	Auth     *Authenticator
	Catalog  *i18n.Catalog
	Clock    clock.Clock
	Logger   *zerolog.Logger
	Timeout  time.Duration
	// Ready reports backend health for /health; nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	d      Deps
	server *http.Server
}

func NewServer(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = clock.NewRealClock()
	}
	if d.Catalog == nil {
		d.Catalog = i18n.MustDefaultCatalog()
	}
	if d.Logger == nil {
		nop := zerolog.Nop()
		d.Logger = &nop
	}
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	return &Server{d: d}
}

// Router builds the chi mux with every route and middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.d.Logger), Recover(s.d.Logger))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.d.Timeout), Authenticate(s.d.Auth, s.d.Catalog))

		r.Post("/redeem", s.handleRedeem)
		r.Post("/codes/check", s.handleCheck)
		r.Get("/me", s.handleMe)

		r.Route("/admin/codes", func(r chi.Router) {
			r.Use(RequireRole(model.RoleAdmin, s.d.Catalog))
			r.Post("/", s.handleIssue)
			r.Get("/", s.handleListActive)
			r.Get("/{code}", s.handleGetCode)
			r.Post("/{code}/deactivate", s.handleSetActive(false))
			r.Post("/{code}/reactivate", s.handleSetActive(true))
			r.Post("/{code}/reapply", s.handleReapply)
		})
	})
	return r
}

func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.d.Logger.Info().Int("port", port).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.d.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.d.Ready(ctx); err != nil {
			s.d.Logger.Warn().Err(err).Msg("health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("UNAVAILABLE"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
