// Package http serves the JSON API. Every signed-in client owns a session
// whose store is the single authoritative snapshot for that client.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"carteira/internal/advice"
	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/middleware/ratelimit"
	"carteira/internal/middleware/security"
	"carteira/internal/middleware/trace"
	"carteira/internal/session"
)

// Archiver stores a CSV export remotely. export.GCSUploader satisfies it.
type Archiver interface {
	Upload(ctx context.Context, userID string, txs []core.Transaction, now time.Time) (string, error)
}

// Deps are the collaborators the handlers need. Sessions and Advice are
// required.
type Deps struct {
	Sessions *session.Manager
	Advice   *advice.Service
	Archiver Archiver
	Logger   *log.Logger

	Currency      string
	Location      *time.Location
	AuthRateLimit int // sign-in/sign-up attempts per minute per IP
	Clock         func() time.Time
}

type Server struct {
	http.Server

	sessions *session.Manager
	advice   *advice.Service
	archiver Archiver
	logger   *log.Logger
	currency string
	loc      *time.Location
	clock    func() time.Time

	authLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	s := &Server{
		sessions: deps.Sessions,
		advice:   deps.Advice,
		archiver: deps.Archiver,
		logger:   logger.WithComponent(log.ComponentHTTP),
		currency: deps.Currency,
		loc:      deps.Location,
		clock:    deps.Clock,
		authLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: deps.AuthRateLimit,
		}),
		detector: security.NewDetector(logger),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(s.tracer.Middleware)
	r.Use(chiMiddleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)

	r.Get("/healthz", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", s.handleCategories)

		r.Route("/auth", func(r chi.Router) {
			r.With(
				chiMiddleware.AllowContentType("application/json"),
				s.authLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit),
			).Group(func(r chi.Router) {
				r.Post("/signup", s.handleSignUp)
				r.Post("/signin", s.handleSignIn)
			})
			r.Post("/signout", s.handleSignOut)
		})

		// Protected group: requires a live session
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Get("/snapshot", s.handleSnapshot)
			r.Patch("/profile", s.handleUpdateProfile)

			r.Post("/transactions", s.handleAddTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)

			r.Post("/goals", s.handleAddGoal)
			r.Post("/goals/{id}/contributions", s.handleContribute)

			r.Put("/budgets/{category}", s.handleUpdateBudget)

			r.Get("/reports", s.handleReport)
			r.Get("/export.csv", s.handleExportCSV)
			r.Post("/exports", s.handleArchiveExport)
			r.Get("/advice", s.handleAdvice)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "Recurso não encontrado."})
	})
	return r
}

// Shutdown stops accepting requests, then closes every session so queued
// writes are flushed.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.authLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.sessions.CloseAll(ctx)
	})
	return shutdownErr
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		"client_ip", s.detector.ExtractClientIP(r), "path", r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error:   "rate_limited",
		Message: "Muitas tentativas. Aguarde um minuto e tente novamente.",
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
