package cookiejar

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type memberLock struct {
	mu   sync.Mutex
	refs int
}

// Ledger records member claims and answers how much each member has claimed
// inside a trailing window. Reading the window total also drops the entries
// that have aged out of it.
//
// Ledger methods do not serialise callers. Code that reads a total and then
// appends based on it must hold Lock(member) across both calls.
type Ledger struct {
	store   ClaimStore
	onPrune func(member common.Address, pruned int)

	locksMu sync.Mutex
	locks   map[common.Address]*memberLock
}

// LedgerOption customises a Ledger.
type LedgerOption func(*Ledger)

// WithPruneObserver registers a callback invoked whenever entries are pruned.
func WithPruneObserver(fn func(member common.Address, pruned int)) LedgerOption {
	return func(l *Ledger) { l.onPrune = fn }
}

// NewLedger constructs a ledger over store. A nil store defaults to memory.
func NewLedger(store ClaimStore, opts ...LedgerOption) *Ledger {
	if store == nil {
		store = NewMemoryStore()
	}
	l := &Ledger{
		store: store,
		locks: make(map[common.Address]*memberLock),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires the mutual exclusion slot for member and returns the release
// function. Locks for different members never block each other.
func (l *Ledger) Lock(member common.Address) func() {
	l.locksMu.Lock()
	lock, ok := l.locks[member]
	if !ok {
		lock = &memberLock{}
		l.locks[member] = lock
	}
	lock.refs++
	l.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.locksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, member)
		}
		l.locksMu.Unlock()
	}
}

// inWindow reports whether a claim made at ts still counts at now. Entries
// stamped after now are treated as current.
func inWindow(ts, now, window uint64) bool {
	if ts >= now {
		return true
	}
	return now-ts < window
}

// TotalClaimedInWindow sums the amounts of the member's claims made less than
// period before now and removes every other entry from the log, keeping the
// order of the survivors. A member with no log reads as zero and no log is
// created.
func (l *Ledger) TotalClaimedInWindow(ctx context.Context, member common.Address, now uint64, period time.Duration) (uint64, error) {
	claims, err := l.store.Load(ctx, member)
	if err != nil {
		return 0, err
	}
	if len(claims) == 0 {
		return 0, nil
	}
	window := uint64(period / time.Second)
	var total uint64
	kept := make([]Claim, 0, len(claims))
	for _, claim := range claims {
		if !inWindow(claim.Timestamp, now, window) {
			continue
		}
		if total > math.MaxUint64-claim.Amount {
			return 0, fmt.Errorf("%w: member %s", ErrLedgerOverflow, memberHex(member))
		}
		total += claim.Amount
		kept = append(kept, claim)
	}
	if pruned := len(claims) - len(kept); pruned > 0 {
		if err := l.store.Replace(ctx, member, kept); err != nil {
			return 0, fmt.Errorf("cookiejar: prune claims: %w", err)
		}
		if l.onPrune != nil {
			l.onPrune(member, pruned)
		}
	}
	return total, nil
}

// Append adds claim to the end of the member's log. It performs no
// validation; callers check the allowance first.
func (l *Ledger) Append(ctx context.Context, member common.Address, claim Claim) error {
	return l.store.Append(ctx, member, claim)
}

// Claims returns a copy of the member's log, oldest first, without pruning.
func (l *Ledger) Claims(ctx context.Context, member common.Address) ([]Claim, error) {
	claims, err := l.store.Load(ctx, member)
	if err != nil {
		return nil, err
	}
	out := make([]Claim, len(claims))
	copy(out, claims)
	return out, nil
}

// Len returns the number of entries in the member's log.
func (l *Ledger) Len(ctx context.Context, member common.Address) (int, error) {
	claims, err := l.store.Load(ctx, member)
	if err != nil {
		return 0, err
	}
	return len(claims), nil
}
