package cookiejard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cookiejar/config"
	"cookiejar/core/events"
	"cookiejar/core/state"
	nativecommon "cookiejar/native/common"
	"cookiejar/native/cookiejar"
	"cookiejar/observability"
	"cookiejar/observability/indexer"
	"cookiejar/state/bank"
	"cookiejar/storage"
)

// Service bundles the wired jar and its admin surface.
type Service struct {
	Guard    *cookiejar.Guard
	Admin    *AdminServer
	Pause    *nativecommon.PauseSwitch
	Operator common.Address

	closers []func() error
}

// Build wires storage, roles, custody, the ledger, notification sinks and the
// guard according to cfg, then applies the roster.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (svc *Service, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.RosterFile) == "" {
		return nil, fmt.Errorf("RosterFile must be configured")
	}
	roster, err := LoadRoster(cfg.RosterFile)
	if err != nil {
		return nil, err
	}
	policy, err := policyFromConfig(cfg.Policy)
	if err != nil {
		return nil, err
	}

	svc = &Service{Operator: roster.OperatorAddress()}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	db, claims, err := svc.openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	metrics := observability.CookieJar()
	ledger := cookiejar.NewLedger(claims, cookiejar.WithPruneObserver(func(_ common.Address, pruned int) {
		metrics.AddPruned(pruned)
	}))

	emitter := events.MultiEmitter{logEmitter{logger: logger}, metricsEmitter{}}
	var history HistoryReader
	if path := strings.TrimSpace(cfg.Indexer.Path); path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.DataDir, path)
		}
		idx, err := indexer.Open(path, indexer.WithLogger(logger), indexer.WithQueueSize(cfg.Indexer.QueueSize))
		if err != nil {
			return nil, fmt.Errorf("open indexer: %w", err)
		}
		svc.closers = append(svc.closers, idx.Close)
		emitter = append(emitter, idx)
		history = idx
	}

	svc.Pause = nativecommon.NewPauseSwitch()
	svc.Pause.SetPaused(cookiejar.ModuleName, cfg.PauseOnStart)
	metrics.SetPause(cfg.PauseOnStart)

	roles := state.NewRoles(db)
	custody := bank.New(db)
	svc.Guard, err = cookiejar.NewGuard(policy, cfg.Policy.Pool(), ledger, roles, custody,
		cookiejar.WithEmitter(emitter),
		cookiejar.WithPauseView(svc.Pause),
		cookiejar.WithMetrics(metrics),
		cookiejar.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("init guard: %w", err)
	}
	if err := roster.Apply(ctx, roles, svc.Guard, custody); err != nil {
		return nil, fmt.Errorf("apply roster: %w", err)
	}

	auth, err := NewAuthenticator(cfg.Admin.BearerToken)
	if err != nil {
		return nil, err
	}
	opts := []AdminOption{
		WithAuthenticator(auth),
		WithRateLimiter(NewRateLimiter(cfg.Admin.RateLimitPerSecond, cfg.Admin.RateLimitBurst)),
		WithAdminLogger(logger),
	}
	if history != nil {
		opts = append(opts, WithHistory(history))
	}
	svc.Admin = NewAdminServer(svc.Guard, svc.Operator, svc.Pause, opts...)
	return svc, nil
}

func (s *Service) openStores(ctx context.Context, cfg *config.Config) (storage.Database, cookiejar.ClaimStore, error) {
	if cfg.Store.Backend == config.BackendMemory {
		db := storage.NewMemDB()
		return db, cookiejar.NewKVStore(db), nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, nil, err
	}
	s.closers = append(s.closers, db.Close)
	if cfg.Store.Backend != config.BackendRedis {
		return db, cookiejar.NewKVStore(db), nil
	}

	opts := &redis.Options{Addr: cfg.Store.RedisAddr, DB: cfg.Store.RedisDB}
	if env := strings.TrimSpace(cfg.Store.RedisPasswordEnv); env != "" {
		opts.Password = os.Getenv(env)
	}
	client := redis.NewClient(opts)
	s.closers = append(s.closers, client.Close)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.Store.RedisAddr, err)
	}
	return db, cookiejar.NewRedisStore(client), nil
}

func policyFromConfig(p config.Policy) (cookiejar.Policy, error) {
	value, err := p.CookieValueUnits()
	if err != nil {
		return cookiejar.Policy{}, fmt.Errorf("policy cookie value: %w", err)
	}
	policy := cookiejar.Policy{
		CookieValue:  value,
		Period:       p.Period.Duration,
		MaxPerPeriod: p.MaxPerPeriod,
	}
	if err := policy.Validate(); err != nil {
		return cookiejar.Policy{}, err
	}
	return policy, nil
}

// Handler returns the admin server instrumented with OpenTelemetry.
func (s *Service) Handler() http.Handler {
	return otelhttp.NewHandler(s.Admin, "cookiejard")
}

// Close releases every resource opened by Build in reverse order.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
