package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"go.uber.org/zap"

	"bargain-engine/internal/config"
	"bargain-engine/internal/engine"
	"bargain-engine/internal/metrics"
	"bargain-engine/internal/negotiation"
)

// Service drives negotiation turns. Implemented by negotiation.Service.
type Service interface {
	Start(ctx context.Context, productID, buyerName, buyerIP, language string) (*negotiation.Response, error)
	Negotiate(ctx context.Context, sessionID, buyerMessage string, buyerPrice float64) (*negotiation.Response, error)
	LoadSession(ctx context.Context, sessionID string) (*engine.Session, error)
}

// Gate is the admission control the cache provides: per-IP quota and the
// per-session reply cooldown.
type Gate interface {
	AllowIP(ctx context.Context, ip string, limit int) (bool, error)
	InCooldown(ctx context.Context, sessionID string) (bool, error)
	SetCooldown(ctx context.Context, sessionID string, d time.Duration) error
}

// Catalog is the record-store slice the read and admin routes need.
type Catalog interface {
	CreateProduct(ctx context.Context, p *engine.Product) error
	GetProduct(ctx context.Context, productID string) (*engine.Product, error)
	ListProducts(ctx context.Context, skip, limit int64) ([]engine.Product, error)
	ListAudit(ctx context.Context, sessionID string, skip, limit int64) ([]engine.AuditEntry, error)
}

// Pinger reports backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server tying the negotiation service, admission
// gate and catalogue together.
type Server struct {
	cfg     *config.Config
	svc     Service
	gate    Gate
	catalog Catalog
	metrics *metrics.Collector
	log     *zap.Logger

	// health probes, registered by the composition root
	probes []probe
}

type probe struct {
	name string
	p    Pinger
}

// NewServer creates a Server with the given config and collaborators.
func NewServer(cfg *config.Config, svc Service, gate Gate, catalog Catalog, m *metrics.Collector, log *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		svc:     svc,
		gate:    gate,
		catalog: catalog,
		metrics: m,
		log:     log,
	}
}

// RegisterHealthCheck adds a named backend to the /health probe set.
func (s *Server) RegisterHealthCheck(name string, p Pinger) {
	s.probes = append(s.probes, probe{name: name, p: p})
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/negotiate/start", s.handleStart)
	mux.HandleFunc("POST /api/v1/negotiate/{sid}/offer", s.handleOffer)
	mux.HandleFunc("GET /api/v1/negotiate/{sid}/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/sessions/{sid}", s.handleGetSession)
	mux.HandleFunc("GET /api/v1/sessions/{sid}/history", s.handleGetHistory)
	mux.HandleFunc("POST /api/v1/products", s.handleCreateProduct)
	mux.HandleFunc("GET /api/v1/products/{id}", s.handleGetProduct)
	mux.HandleFunc("GET /api/v1/products", s.handleListProducts)
	mux.HandleFunc("POST /beckn/select", s.handleBecknSelect)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	var h http.Handler = mux
	h = bodyLimitMiddleware(h, s.cfg.MaxRequestBodyBytes)
	h = corsMiddleware(h, s.cfg.CORSAllowedOrigins)
	h = s.recoverMiddleware(h)
	h = s.accessLogMiddleware(h)
	h = requestIDMiddleware(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	result := map[string]string{"status": "ok"}
	healthy := true
	for _, pr := range s.probes {
		if err := pr.p.Ping(ctx); err != nil {
			result[pr.name] = "down"
			healthy = false
			s.log.Warn("health probe failed", zap.String("backend", pr.name), zap.Error(err))
		} else {
			result[pr.name] = "up"
		}
	}
	if !healthy {
		result["status"] = "degraded"
		writeJSONStatus(w, http.StatusServiceUnavailable, result)
		return
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeErr maps a registered error kind to its HTTP status.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case sdkerrors.IsOf(err, engine.ErrInvalidInput):
		return http.StatusBadRequest
	case sdkerrors.IsOf(err, engine.ErrNotFound):
		return http.StatusNotFound
	case sdkerrors.IsOf(err, engine.ErrForbidden):
		return http.StatusForbidden
	case sdkerrors.IsOf(err, engine.ErrConflict):
		return http.StatusConflict
	case sdkerrors.IsOf(err, engine.ErrRateLimited):
		return http.StatusTooManyRequests
	case sdkerrors.IsOf(err, engine.ErrTerminal):
		return http.StatusBadRequest
	case sdkerrors.IsOf(err, engine.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case sdkerrors.IsOf(err, engine.ErrDegraded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a request body, mapping an oversize body to the
// payload-too-large kind so writeErr answers 413.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return engine.ErrPayloadTooLarge.Wrapf("limit %d bytes", maxErr.Limit)
		}
		return engine.ErrInvalidInput.Wrap("invalid json body")
	}
	return nil
}

// clientIP is the connecting peer's address, without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
