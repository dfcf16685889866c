package http

import (
	"context"
	"html/template"
	"io/fs"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portfolio/internal/content"
	"portfolio/internal/contrib"
	"portfolio/internal/github"
	"portfolio/internal/log"
	appweb "portfolio/web"
)

// ContributionsService produces the monthly contribution summary for an identity.
type ContributionsService interface {
	GetContributionSummary(ctx context.Context, identity string, now time.Time) (contrib.Result, error)
}

// StatsFetcher reads public profile figures for the hero section.
type StatsFetcher interface {
	FetchUserStats(ctx context.Context, login string) (github.UserStats, error)
}

type Options struct {
	Addr string
	// Identity is the default GitHub login; the profile's github_login is used when empty.
	Identity      string
	Contributions ContributionsService
	Content       content.Repository
	// Stats is optional; the hero section omits GitHub figures without it.
	Stats StatsFetcher
	// Registry enables /metrics and HTTP metrics when set.
	Registry       *prometheus.Registry
	RateLimitRPS   float64
	RateLimitBurst int
	FetchTimeout   time.Duration
	Headers        *HeadersConfig
	Logger         *log.Logger
	Now            func() time.Time
	NewRand        func() *rand.Rand
}

type Server struct {
	http.Server
	templates     *template.Template
	contributions ContributionsService
	content       content.Repository
	stats         StatsFetcher
	identity      string
	fetchTimeout  time.Duration
	logger        *log.Logger
	now           func() time.Time
	newRand       func() *rand.Rand
	limiter       *ipRateLimiter
	ready         bool

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentHTTP})
	}
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		contributions: opts.Contributions,
		content:       opts.Content,
		stats:         opts.Stats,
		identity:      strings.TrimSpace(opts.Identity),
		fetchTimeout:  opts.FetchTimeout,
		logger:        logger,
		now:           opts.Now,
		newRand:       opts.NewRand,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newRand == nil {
		s.newRand = func() *rand.Rand { return nil }
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = 7 * time.Second
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
		s.ready = true
	}

	headers := DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}

	chain := []mux.MiddlewareFunc{
		withRequestID,
		log.Middleware(logger),
		log.RequestIDMiddleware(func(r *http.Request) string { return requestIDFrom(r.Context()) }),
		accessLog,
		securityHeaders(headers),
	}
	if opts.Registry != nil {
		chain = append(chain, newHTTPMetrics(opts.Registry).middleware)
	}

	r := mux.NewRouter()
	r.Use(chain...)
	if opts.RateLimitRPS > 0 {
		s.limiter = newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
		go s.limiter.run(5 * time.Minute)
	}
	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.PathPrefix("/static/").Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	pages := r.NewRoute().Subrouter()
	if s.limiter != nil {
		pages.Use(s.limiter.middleware)
	}
	pages.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	pages.HandleFunc("/ui/contributions", s.handleContributionsPartial).Methods(http.MethodGet)
	pages.HandleFunc("/ui/clock", s.handleClock).Methods(http.MethodGet)
	pages.HandleFunc("/api/contributions", s.handleContributionsAPI).Methods(http.MethodGet)
	pages.HandleFunc("/projects", s.handleProjects).Methods(http.MethodGet)
	pages.HandleFunc("/projects/{id:[0-9]+}", s.handleProject).Methods(http.MethodGet)
	pages.HandleFunc("/blogs", s.handleBlogs).Methods(http.MethodGet)
	pages.HandleFunc("/blogs/{id}", s.handleBlog).Methods(http.MethodGet)

	// mux skips router middleware for unmatched requests.
	r.NotFoundHandler = wrap(http.HandlerFunc(s.handleNotFound), chain)
	r.MethodNotAllowedHandler = wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}), chain)

	s.Handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: logger}),
		handlers.PrintRecoveryStack(false),
	)(handlers.CompressHandler(r))
	return s
}

// wrap applies mws so that mws[0] runs first.
func wrap(h http.Handler, mws []mux.MiddlewareFunc) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Shutdown stops the rate limiter janitor and drains the HTTP server once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.close()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.ready || s.content == nil || s.contributions == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	if _, err := s.content.Profile(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	_, _ = w.Write([]byte("ready"))
}
