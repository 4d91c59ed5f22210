package cookiejar

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cookiejar/storage"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func seed(t *testing.T, l *Ledger, member common.Address, claims ...Claim) {
	t.Helper()
	for _, c := range claims {
		require.NoError(t, l.Append(context.Background(), member, c))
	}
}

func TestTotalClaimedInWindowSumsAndPrunes(t *testing.T) {
	ctx := context.Background()
	var prunedFor common.Address
	prunedCount := 0
	l := NewLedger(NewMemoryStore(), WithPruneObserver(func(member common.Address, n int) {
		prunedFor = member
		prunedCount += n
	}))
	seed(t, l, alice,
		Claim{Timestamp: 0, Amount: 1},
		Claim{Timestamp: 500, Amount: 2},
		Claim{Timestamp: 999, Amount: 3},
		Claim{Timestamp: 1000, Amount: 4},
	)

	total, err := l.TotalClaimedInWindow(ctx, alice, 1000, 1000*time.Second)
	require.NoError(t, err)
	require.Equal(t, uint64(2+3+4), total, "entry exactly one period old is outside the window")
	require.Equal(t, alice, prunedFor)
	require.Equal(t, 1, prunedCount)

	claims, err := l.Claims(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, []Claim{{500, 2}, {999, 3}, {1000, 4}}, claims, "survivors keep their order")
}

func TestTotalClaimedInWindowIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	seed(t, l, alice, Claim{10, 5}, Claim{20, 5}, Claim{30, 5})

	first, err := l.TotalClaimedInWindow(ctx, alice, 35, 20*time.Second)
	require.NoError(t, err)
	firstLen, err := l.Len(ctx, alice)
	require.NoError(t, err)

	second, err := l.TotalClaimedInWindow(ctx, alice, 35, 20*time.Second)
	require.NoError(t, err)
	secondLen, err := l.Len(ctx, alice)
	require.NoError(t, err)

	require.Equal(t, uint64(10), first)
	require.Equal(t, first, second)
	require.Equal(t, 2, firstLen)
	require.Equal(t, firstLen, secondLen)
}

func TestTotalClaimedInWindowUnknownMemberAllocatesNothing(t *testing.T) {
	db := storage.NewMemDB()
	l := NewLedger(NewKVStore(db))

	total, err := l.TotalClaimedInWindow(context.Background(), alice, 100, time.Minute)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Zero(t, db.Len())
}

func TestTotalClaimedInWindowDropsFullyExpiredLog(t *testing.T) {
	db := storage.NewMemDB()
	l := NewLedger(NewKVStore(db))
	seed(t, l, alice, Claim{0, 1}, Claim{1, 1})
	require.Equal(t, 1, db.Len())

	total, err := l.TotalClaimedInWindow(context.Background(), alice, 10_000, time.Second)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Zero(t, db.Len(), "empty log is removed from the store")
}

func TestOutOfOrderAndFutureTimestamps(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	seed(t, l, alice, Claim{900, 1}, Claim{100, 2}, Claim{950, 4}, Claim{2000, 8})

	total, err := l.TotalClaimedInWindow(ctx, alice, 1000, 200*time.Second)
	require.NoError(t, err)
	require.Equal(t, uint64(1+4+8), total)

	claims, err := l.Claims(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, []Claim{{900, 1}, {950, 4}, {2000, 8}}, claims)
}

func TestZeroAmountClaimsOccupySlots(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	seed(t, l, alice, Claim{10, 0}, Claim{11, 0})

	total, err := l.TotalClaimedInWindow(ctx, alice, 12, time.Minute)
	require.NoError(t, err)
	require.Zero(t, total)
	n, err := l.Len(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = l.TotalClaimedInWindow(ctx, alice, 100, time.Minute)
	require.NoError(t, err)
	n, err = l.Len(ctx, alice)
	require.NoError(t, err)
	require.Zero(t, n, "zero-amount entries age out like any other")
}

func TestMembersAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	seed(t, l, alice, Claim{0, 3})
	seed(t, l, bob, Claim{5, 7})

	total, err := l.TotalClaimedInWindow(ctx, alice, 5000, time.Second)
	require.NoError(t, err)
	require.Zero(t, total)

	total, err = l.TotalClaimedInWindow(ctx, bob, 5, time.Second)
	require.NoError(t, err)
	require.Equal(t, uint64(7), total)
}

func TestTotalClaimedInWindowOverflow(t *testing.T) {
	l := NewLedger(nil)
	seed(t, l, alice, Claim{1, math.MaxUint64}, Claim{2, 1})
	_, err := l.TotalClaimedInWindow(context.Background(), alice, 2, time.Minute)
	require.ErrorIs(t, err, ErrLedgerOverflow)
}

type failingStore struct {
	*KVStore
	replaceErr error
}

func (f failingStore) Replace(context.Context, common.Address, []Claim) error {
	return f.replaceErr
}

func TestPruneFailureSurfaces(t *testing.T) {
	boom := errors.New("disk full")
	store := failingStore{KVStore: NewMemoryStore(), replaceErr: boom}
	l := NewLedger(store)
	seed(t, l, alice, Claim{0, 1})

	_, err := l.TotalClaimedInWindow(context.Background(), alice, 100, time.Second)
	require.ErrorIs(t, err, boom)
}

func TestClaimsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(nil)
	seed(t, l, alice, Claim{1, 1})
	claims, err := l.Claims(ctx, alice)
	require.NoError(t, err)
	claims[0].Amount = 99

	again, err := l.Claims(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), again[0].Amount)
}

func TestLockSerialisesSameMember(t *testing.T) {
	l := NewLedger(nil)
	unlock := l.Lock(alice)

	acquired := make(chan struct{})
	go func() {
		release := l.Lock(alice)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatalf("second lock for the same member acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	otherDone := make(chan struct{})
	go func() {
		release := l.Lock(bob)
		release()
		close(otherDone)
	}()
	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Fatalf("lock for a different member blocked")
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("waiter never acquired lock")
	}
}

func TestLockTableDrains(t *testing.T) {
	l := NewLedger(nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.Lock(alice)
			release()
		}()
	}
	wg.Wait()
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	require.Empty(t, l.locks)
}

func TestKVStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	first := NewLedger(NewKVStore(db))
	seed(t, first, alice, Claim{1, 2}, Claim{3, 4})

	second := NewLedger(NewKVStore(db))
	claims, err := second.Claims(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, []Claim{{1, 2}, {3, 4}}, claims)
}

func TestKVStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewMemoryStore()
	require.ErrorIs(t, store.Append(ctx, alice, Claim{1, 1}), context.Canceled)
	_, err := store.Load(ctx, alice)
	require.ErrorIs(t, err, context.Canceled)

	var nilStore *KVStore
	_, err = nilStore.Load(context.Background(), alice)
	require.Error(t, err)
}
