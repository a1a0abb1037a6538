// Package http serves the JSON API: account selection, wallets,
// transactions, capture drafts and analytics.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/session"
	"fintrack/internal/storage"
)

// Store is what the handlers read and write directly; transaction and
// analytics flows go through the services.
type Store interface {
	Ping(ctx context.Context) error
	GetAccountType(ctx context.Context, userID string) (core.AccountType, error)
	SetAccountType(ctx context.Context, userID string, accountType core.AccountType) error
	ListWallets(ctx context.Context, userID string, accountType core.AccountType) ([]core.Wallet, error)
	CreateWallet(ctx context.Context, w core.Wallet) (core.Wallet, error)
	SetActiveWallet(ctx context.Context, userID string, accountType core.AccountType, id string) (core.Wallet, error)
}

type Deps struct {
	Store        Store
	Transactions *services.TransactionService
	Analytics    *services.AnalyticsService
	Capture      *services.CaptureService
	Logger       *log.Logger
}

type Options struct {
	RateLimitPerMinute int
	TrustedProxies     []string
	MaxUploadBytes     int64
}

type Server struct {
	http.Server
	store        Store
	transactions *services.TransactionService
	analytics    *services.AnalyticsService
	capture      *services.CaptureService
	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	maxUpload    int64
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware into a ready-to-run http.Server.
func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	clientIP, err := security.NewClientIP(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Capture == nil {
		deps.Capture = services.NewCaptureService(nil, nil, nil, 0)
	}

	s := &Server{
		store:        deps.Store,
		transactions: deps.Transactions,
		analytics:    deps.Analytics,
		capture:      deps.Capture,
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:       trace.NewMiddleware(clientIP.Extract),
		maxUpload:    opts.MaxUploadBytes,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/categories", handleCategories)
	mux.HandleFunc("GET /api/account", s.handleGetAccount)
	mux.HandleFunc("PUT /api/account", s.handleSetAccount)

	mux.HandleFunc("GET /api/wallets", s.handleListWallets)
	mux.HandleFunc("POST /api/wallets", s.handleCreateWallet)
	mux.HandleFunc("POST /api/wallets/{id}/activate", s.handleActivateWallet)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)

	mux.HandleFunc("POST /api/capture/receipt", s.handleCaptureReceipt)
	mux.HandleFunc("POST /api/capture/voice", s.handleCaptureVoice)
	mux.HandleFunc("POST /api/capture/text", s.handleCaptureText)

	mux.HandleFunc("GET /api/analytics", s.handleAnalytics)

	var h http.Handler = mux
	h = session.Middleware(storePreferences{deps.Store}, isPublic, writeError)(h)
	h = s.limiter.Middleware(clientIP.Extract, ratelimit.Mutating, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldComponent, log.ComponentRateLimit,
			log.FieldClientIP, clientIP.Extract(r),
			log.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:     "rate limit exceeded, try again later",
			RequestID: trace.RequestID(r.Context()),
		})
	})(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Handler(h)
	h = log.Middleware(deps.Logger.WithComponent(log.ComponentHTTP))(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func isPublic(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/api/categories":
		return true
	}
	return false
}

// Shutdown stops the limiter and drains the server; safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// storePreferences treats a user without a stored selection as no preference.
type storePreferences struct {
	store Store
}

func (p storePreferences) GetAccountType(ctx context.Context, userID string) (core.AccountType, error) {
	at, err := p.store.GetAccountType(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	return at, err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		slog.WarnContext(ctx, "Readiness check failed",
			log.FieldComponent, log.ComponentHTTP,
			log.FieldError, err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"capture":  s.capture.Enabled(),
		"requests": s.tracer.Stats(),
	})
}

// currentSession is set by the session middleware on every non-public route.
func currentSession(r *http.Request) (session.Session, error) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return session.Session{}, session.ErrNoSession
	}
	return sess, nil
}
