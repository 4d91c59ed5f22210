package cookiejard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	nativecommon "cookiejar/native/common"
	"cookiejar/native/cookiejar"
	"cookiejar/observability"
	"cookiejar/observability/indexer"
)

// HistoryReader returns indexed events for a member.
type HistoryReader interface {
	History(ctx context.Context, member common.Address, limit int) ([]indexer.Record, error)
}

// AdminServer exposes HTTP endpoints for operator controls. Requests act as
// the roster operator identity, so the jar's own role checks still apply.
type AdminServer struct {
	guard    *cookiejar.Guard
	operator common.Address
	pause    *nativecommon.PauseSwitch
	history  HistoryReader
	auth     *Authenticator
	limiter  *RateLimiter
	metrics  *observability.CookieJarMetrics
	logger   *slog.Logger
	router   chi.Router
}

// AdminOption customises the admin server.
type AdminOption func(*AdminServer)

// WithHistory enables GET /history/{member}.
func WithHistory(h HistoryReader) AdminOption {
	return func(s *AdminServer) { s.history = h }
}

// WithAuthenticator requires bearer authentication on every admin route.
func WithAuthenticator(a *Authenticator) AdminOption {
	return func(s *AdminServer) { s.auth = a }
}

// WithRateLimiter throttles admin routes per client.
func WithRateLimiter(l *RateLimiter) AdminOption {
	return func(s *AdminServer) { s.limiter = l }
}

// WithAdminLogger sets the request logger.
func WithAdminLogger(l *slog.Logger) AdminOption {
	return func(s *AdminServer) { s.logger = l }
}

// NewAdminServer constructs a server wrapping the provided guard.
func NewAdminServer(guard *cookiejar.Guard, operator common.Address, pause *nativecommon.PauseSwitch, opts ...AdminOption) *AdminServer {
	server := &AdminServer{
		guard:    guard,
		operator: operator,
		pause:    pause,
		metrics:  observability.CookieJar(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.pause == nil {
		server.pause = nativecommon.NewPauseSwitch()
	}
	server.router = server.buildRouter()
	return server
}

// ServeHTTP implements http.Handler.
func (s *AdminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *AdminServer) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(admin chi.Router) {
		if s.limiter != nil {
			admin.Use(s.limiter.Middleware)
		}
		if s.auth != nil {
			admin.Use(s.auth.Middleware)
		}
		admin.Get("/status", s.handleStatus)
		admin.Get("/allowance/{member}", s.handleAllowance)
		admin.Get("/history/{member}", s.handleHistory)
		admin.Post("/members/{member}", s.handleGrant)
		admin.Delete("/members/{member}", s.handleRevoke)
		admin.Post("/pause", s.handlePause)
		admin.Post("/resume", s.handleResume)
		admin.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})
	return r
}

type policyView struct {
	CookieValue   string `json:"cookie_value"`
	PeriodSeconds uint64 `json:"period_seconds"`
	MaxPerPeriod  uint64 `json:"max_per_period"`
}

type statusResponse struct {
	Paused             bool       `json:"paused"`
	Pool               string     `json:"pool"`
	PoolBalanceUnits   string     `json:"pool_balance_units"`
	PoolBalanceCookies string     `json:"pool_balance_cookies"`
	Policy             policyView `json:"policy"`
}

func (s *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	balance, err := s.guard.PoolBalance(r.Context(), s.operator)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	policy := s.guard.Policy()
	writeJSON(w, http.StatusOK, statusResponse{
		Paused:             s.pause.IsPaused(cookiejar.ModuleName),
		Pool:               strings.ToLower(s.guard.Pool().Hex()),
		PoolBalanceUnits:   balance.String(),
		PoolBalanceCookies: policy.UnitsToCookies(balance).String(),
		Policy: policyView{
			CookieValue:   policy.CookieValue.String(),
			PeriodSeconds: policy.WindowSeconds(),
			MaxPerPeriod:  policy.MaxPerPeriod,
		},
	})
}

type allowanceResponse struct {
	Member    string `json:"member"`
	Remaining uint64 `json:"remaining"`
}

func (s *AdminServer) handleAllowance(w http.ResponseWriter, r *http.Request) {
	member, ok := memberParam(w, r)
	if !ok {
		return
	}
	remaining, err := s.guard.RemainingAllowance(r.Context(), s.operator, member)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, allowanceResponse{Member: strings.ToLower(member.Hex()), Remaining: remaining})
}

func (s *AdminServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "indexer disabled", http.StatusNotFound)
		return
	}
	member, ok := memberParam(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	records, err := s.history.History(r.Context(), member, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []indexer.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *AdminServer) handleGrant(w http.ResponseWriter, r *http.Request) {
	member, ok := memberParam(w, r)
	if !ok {
		return
	}
	if err := s.guard.GrantMember(r.Context(), s.operator, member); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdminServer) handleRevoke(w http.ResponseWriter, r *http.Request) {
	member, ok := memberParam(w, r)
	if !ok {
		return
	}
	if err := s.guard.RevokeMember(r.Context(), s.operator, member); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdminServer) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.setPaused(true)
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdminServer) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.setPaused(false)
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdminServer) setPaused(paused bool) {
	s.pause.SetPaused(cookiejar.ModuleName, paused)
	s.metrics.SetPause(paused)
	s.logger.Info("pause toggled", slog.Bool("paused", paused))
}

func memberParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "member"))
	if !common.IsHexAddress(raw) {
		http.Error(w, "invalid member address", http.StatusBadRequest)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *AdminServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cookiejar.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, cookiejar.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("admin request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
