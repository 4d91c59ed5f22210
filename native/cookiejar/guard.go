package cookiejar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cookiejar/core/events"
	nativecommon "cookiejar/native/common"
	"cookiejar/observability"
)

// Authorizer answers role membership questions.
type Authorizer interface {
	HasRole(role string, addr []byte) bool
}

// RoleManager is an Authorizer that can also change assignments.
type RoleManager interface {
	Authorizer
	SetRole(role string, addr []byte) error
	RevokeRole(role string, addr []byte) error
}

// Custody holds the pool balance and executes transfers in underlying units.
type Custody interface {
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	TransferIn(ctx context.Context, from, pool common.Address, amount *big.Int) error
}

// Guard enforces the claim policy on top of a Ledger and coordinates the
// payout with the custody collaborator.
type Guard struct {
	policy  Policy
	pool    common.Address
	ledger  *Ledger
	roles   RoleManager
	custody Custody

	emitter events.Emitter
	pause   nativecommon.PauseView
	metrics *observability.CookieJarMetrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time

	// poolMu covers the balance read and the transfer so no two claims
	// spend the same pool funds.
	poolMu sync.Mutex
}

// GuardOption customises the guard instance.
type GuardOption func(*Guard)

// WithEmitter supplies the notification sink.
func WithEmitter(e events.Emitter) GuardOption {
	return func(g *Guard) { g.emitter = e }
}

// WithPauseView supplies the pause switch consulted before each claim.
func WithPauseView(p nativecommon.PauseView) GuardOption {
	return func(g *Guard) { g.pause = p }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.CookieJarMetrics) GuardOption {
	return func(g *Guard) { g.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

// WithTracer sets the tracer used for claim spans.
func WithTracer(t trace.Tracer) GuardOption {
	return func(g *Guard) { g.tracer = t }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) GuardOption {
	return func(g *Guard) { g.now = clock }
}

// NewGuard validates the policy and wires the collaborators.
func NewGuard(policy Policy, pool common.Address, ledger *Ledger, roles RoleManager, custody Custody, opts ...GuardOption) (*Guard, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, fmt.Errorf("cookiejar: ledger required")
	}
	if roles == nil {
		return nil, fmt.Errorf("cookiejar: role manager required")
	}
	if custody == nil {
		return nil, fmt.Errorf("cookiejar: custody required")
	}
	g := &Guard{
		policy:  policy.Clone(),
		pool:    pool,
		ledger:  ledger,
		roles:   roles,
		custody: custody,
		emitter: events.NoopEmitter{},
		metrics: observability.CookieJar(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("cookiejar/native/cookiejar"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.emitter == nil {
		g.emitter = events.NoopEmitter{}
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With(slog.String("component", ModuleName))
	return g, nil
}

// Policy returns a copy of the configured policy.
func (g *Guard) Policy() Policy { return g.policy.Clone() }

// Pool returns the custody address funding claims.
func (g *Guard) Pool() common.Address { return g.pool }

// Ledger exposes the underlying claim ledger for read-only inspection.
func (g *Guard) Ledger() *Ledger { return g.ledger }

func (g *Guard) timestamp() uint64 {
	unix := g.now().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}

func (g *Guard) requireRole(caller common.Address, roles ...string) error {
	for _, role := range roles {
		if g.roles.HasRole(role, caller.Bytes()) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, memberHex(caller), strings.Join(roles, "|"))
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrAllowanceExceeded):
		return "allowance_exceeded"
	case errors.Is(err, ErrInsufficientPoolBalance):
		return "insufficient_pool"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrAllowanceUnderflow), errors.Is(err, ErrLedgerOverflow):
		return "internal"
	default:
		return "error"
	}
}

// Claim pays amount cookies from the pool to member and records the claim.
// The member lock is held from the allowance read until the record is
// appended, so a concurrent claim for the same member observes the new total.
// A claim is recorded only after custody confirmed the transfer.
func (g *Guard) Claim(ctx context.Context, member common.Address, amount uint64, reason string) (*Receipt, error) {
	ctx, span := g.tracer.Start(ctx, "cookiejar.Claim", trace.WithAttributes(
		attribute.String("member", memberHex(member)),
		attribute.String("amount", fmt.Sprintf("%d", amount)),
	))
	defer span.End()

	start := time.Now()
	receipt, err := g.claim(ctx, member, amount, reason)
	outcome := outcomeFor(err)
	g.metrics.ObserveClaim(outcome, amount, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		level := slog.LevelInfo
		if outcome == "internal" || outcome == "error" {
			level = slog.LevelError
		}
		g.logger.Log(ctx, level, "claim rejected",
			slog.String("member", memberHex(member)),
			slog.Uint64("amount", amount),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	g.logger.Info("claim recorded",
		slog.String("member", memberHex(member)),
		slog.Uint64("amount", amount),
		slog.Uint64("timestamp", receipt.Timestamp),
		slog.Uint64("remaining", receipt.Remaining),
	)
	return receipt, nil
}

func (g *Guard) claim(ctx context.Context, member common.Address, amount uint64, reason string) (*Receipt, error) {
	if err := g.requireRole(member, RoleMember); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(g.pause, ModuleName); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason required", ErrInvalidRequest)
	}
	units, err := g.policy.CookiesToUnits(amount)
	if err != nil {
		return nil, err
	}

	unlock := g.ledger.Lock(member)
	defer unlock()

	now := g.timestamp()
	remaining, err := g.remainingLocked(ctx, member, now)
	if err != nil {
		return nil, err
	}
	if amount > remaining {
		return nil, fmt.Errorf("%w: requested %d, remaining %d", ErrAllowanceExceeded, amount, remaining)
	}
	if err := g.payout(ctx, member, amount, units); err != nil {
		return nil, err
	}
	// Funds have moved; the record must land even if the caller gives up now.
	claim := Claim{Timestamp: now, Amount: amount}
	if err := g.ledger.Append(context.WithoutCancel(ctx), member, claim); err != nil {
		// Funds already moved; surface loudly so operators can reconcile.
		return nil, fmt.Errorf("cookiejar: record claim after transfer of %s units: %w", units, err)
	}

	g.emitter.Emit(events.ClaimRecorded{
		Member:    member,
		Timestamp: int64(now),
		Amount:    amount,
		Units:     new(big.Int).Set(units),
		Reason:    reason,
	})
	return &Receipt{
		Member:    member,
		Timestamp: now,
		Amount:    amount,
		Units:     units,
		Reason:    reason,
		Remaining: remaining - amount,
	}, nil
}

// payout checks the pool balance and transfers units to member under poolMu.
func (g *Guard) payout(ctx context.Context, member common.Address, amount uint64, units *big.Int) error {
	g.poolMu.Lock()
	defer g.poolMu.Unlock()

	balance, err := g.custody.BalanceOf(ctx, g.pool)
	if err != nil {
		return fmt.Errorf("cookiejar: read pool balance: %w", err)
	}
	available := g.policy.UnitsToCookies(balance)
	if new(big.Int).SetUint64(amount).Cmp(available) > 0 {
		return fmt.Errorf("%w: requested %d cookies, pool holds %s", ErrInsufficientPoolBalance, amount, available)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if err := g.custody.Transfer(ctx, g.pool, member, units); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	g.metrics.SetPoolBalance(new(big.Int).Sub(balance, units))
	return nil
}

func (g *Guard) remainingLocked(ctx context.Context, member common.Address, now uint64) (uint64, error) {
	claimed, err := g.ledger.TotalClaimedInWindow(ctx, member, now, g.policy.Period)
	if err != nil {
		return 0, err
	}
	if claimed > g.policy.MaxPerPeriod {
		g.logger.Error("allowance invariant violated",
			slog.String("member", memberHex(member)),
			slog.Uint64("claimed", claimed),
			slog.Uint64("max_per_period", g.policy.MaxPerPeriod),
		)
		return 0, fmt.Errorf("%w: member %s claimed %d of %d", ErrAllowanceUnderflow, memberHex(member), claimed, g.policy.MaxPerPeriod)
	}
	return g.policy.MaxPerPeriod - claimed, nil
}

// RemainingAllowance returns how many cookies member may still claim in the
// current window. Expired entries are pruned as a side effect. Callers must
// hold the member or admin role.
func (g *Guard) RemainingAllowance(ctx context.Context, caller, member common.Address) (uint64, error) {
	if err := g.requireRole(caller, RoleMember, RoleAdmin); err != nil {
		return 0, err
	}
	unlock := g.ledger.Lock(member)
	defer unlock()
	return g.remainingLocked(ctx, member, g.timestamp())
}

// PoolBalance returns the pool balance in underlying units.
func (g *Guard) PoolBalance(ctx context.Context, caller common.Address) (*big.Int, error) {
	if err := g.requireRole(caller, RoleMember, RoleAdmin); err != nil {
		return nil, err
	}
	balance, err := g.custody.BalanceOf(ctx, g.pool)
	if err != nil {
		return nil, fmt.Errorf("cookiejar: read pool balance: %w", err)
	}
	g.metrics.SetPoolBalance(balance)
	return balance, nil
}

// PoolBalanceCookies returns the pool balance in whole cookies.
func (g *Guard) PoolBalanceCookies(ctx context.Context, caller common.Address) (*big.Int, error) {
	balance, err := g.PoolBalance(ctx, caller)
	if err != nil {
		return nil, err
	}
	return g.policy.UnitsToCookies(balance), nil
}

// Deposit moves units from a funding account into the pool. Anyone may fund
// the jar.
func (g *Guard) Deposit(ctx context.Context, from common.Address, units *big.Int) error {
	if units == nil || units.Sign() <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", ErrInvalidRequest)
	}
	g.poolMu.Lock()
	defer g.poolMu.Unlock()
	if err := g.custody.TransferIn(ctx, from, g.pool, units); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	g.metrics.RecordDeposit()
	g.emitter.Emit(events.Deposited{From: from, Pool: g.pool, Amount: new(big.Int).Set(units)})
	g.logger.Info("pool funded",
		slog.String("from", memberHex(from)),
		slog.String("amount", units.String()),
	)
	return nil
}

// GrantMember adds member to the jar. Caller must hold the admin role.
func (g *Guard) GrantMember(ctx context.Context, caller, member common.Address) error {
	if err := g.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	if err := g.roles.SetRole(RoleMember, member.Bytes()); err != nil {
		return fmt.Errorf("cookiejar: grant member: %w", err)
	}
	g.emitter.Emit(events.MemberGranted{Member: member, Caller: caller})
	g.logger.InfoContext(ctx, "member granted", slog.String("member", memberHex(member)), slog.String("caller", memberHex(caller)))
	return nil
}

// RevokeMember removes member from the jar. Existing claim records remain
// and keep ageing out.
func (g *Guard) RevokeMember(ctx context.Context, caller, member common.Address) error {
	if err := g.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	if err := g.roles.RevokeRole(RoleMember, member.Bytes()); err != nil {
		return fmt.Errorf("cookiejar: revoke member: %w", err)
	}
	g.emitter.Emit(events.MemberRevoked{Member: member, Caller: caller})
	g.logger.InfoContext(ctx, "member revoked", slog.String("member", memberHex(member)), slog.String("caller", memberHex(caller)))
	return nil
}
