package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"crosslend/native/crosschain"
	"crosslend/native/lending"
	"crosslend/observability"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// Server exposes the lending engine and cross-chain reconciler over HTTP.
type Server struct {
	engine     *lending.Engine
	reconciler *crosschain.Reconciler
	logger     *slog.Logger
	limiter    *rate.Limiter
	jwtSecret  []byte
}

// Options configures the server surface.
type Options struct {
	Logger             *slog.Logger
	JWTSecret          string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// NewServer wires the HTTP surface over the engine and reconciler.
func NewServer(engine *lending.Engine, reconciler *crosschain.Reconciler, opts Options) *Server {
	limit := opts.RateLimitPerSecond
	if limit <= 0 {
		limit = 50
	}
	burst := opts.RateLimitBurst
	if burst <= 0 {
		burst = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:     engine,
		reconciler: reconciler,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		jwtSecret:  []byte(strings.TrimSpace(opts.JWTSecret)),
	}
}

// Router builds the route tree. Admin endpoints require a bearer token when a
// JWT secret is configured.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.throttle)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pools", s.handleListPools)
		r.Get("/pools/{asset}", s.handleGetPool)
		r.Get("/positions/{user}/{asset}", s.handleGetPosition)
		r.Get("/accounts/{user}/health", s.handleHealthFactor)
		r.Get("/accounts/{user}/borrow-limit", s.handleBorrowLimit)

		r.Post("/supply", s.handleSupply)
		r.Post("/borrow", s.handleBorrow)
		r.Post("/repay", s.handleRepay)
		r.Post("/withdraw", s.handleWithdraw)
		r.Post("/liquidate", s.handleLiquidate)

		r.Get("/crosschain/domains", s.handleListDomains)
		r.Get("/crosschain/requests/{id}", s.handleGetRequest)
		r.Post("/crosschain/ops", s.handleInitiateOp)

		r.Get("/upkeep", s.handleCheckUpkeep)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/pools", s.handleInitializePool)
			r.Post("/pools/{asset}/active", s.handleSetPoolActive)
			r.Post("/crosschain/domains", s.handleAddDomain)
			r.Post("/upkeep/perform", s.handlePerformUpkeep)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// throttle applies the process-wide request budget.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			observability.ModuleMetrics().RecordThrottle(moduleForPath(r.URL.Path), "rate_limit")
			writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe records latency and outcome metrics plus an access log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)
		observability.ModuleMetrics().Observe(moduleForPath(r.URL.Path), r.Method+" "+r.URL.Path, recorder.status, duration)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"durationMs", duration.Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func moduleForPath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/crosschain"):
		return "crosschain"
	case strings.HasPrefix(path, "/v1"):
		return "lending"
	default:
		return "system"
	}
}

func decodeRequest(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestBodyLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
