package bank

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cookiejar/storage"
)

var (
	pool   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	member = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func TestTransferMovesBalance(t *testing.T) {
	ctx := context.Background()
	b := New(storage.NewMemDB())
	require.NoError(t, b.Credit(pool, big.NewInt(100)))

	require.NoError(t, b.Transfer(ctx, pool, member, big.NewInt(40)))

	poolBal, err := b.BalanceOf(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, int64(60), poolBal.Int64())
	memberBal, err := b.BalanceOf(ctx, member)
	require.NoError(t, err)
	require.Equal(t, int64(40), memberBal.Int64())
}

func TestTransferInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	b := New(storage.NewMemDB())
	require.NoError(t, b.Credit(pool, big.NewInt(10)))

	err := b.Transfer(ctx, pool, member, big.NewInt(11))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	poolBal, err := b.BalanceOf(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, int64(10), poolBal.Int64())
}

func TestTransferRejectsNegativeAndCancelled(t *testing.T) {
	b := New(storage.NewMemDB())
	require.ErrorIs(t, b.Transfer(context.Background(), pool, member, big.NewInt(-1)), ErrInvalidAmount)
	require.ErrorIs(t, b.Credit(pool, big.NewInt(-5)), ErrInvalidAmount)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Transfer(ctx, pool, member, big.NewInt(1)), context.Canceled)
}

func TestCreditOverflow(t *testing.T) {
	b := New(storage.NewMemDB())
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	require.NoError(t, b.Credit(pool, max))
	require.ErrorIs(t, b.Credit(pool, big.NewInt(1)), ErrBalanceOverflow)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	require.ErrorIs(t, b.Credit(member, tooBig), ErrBalanceOverflow)
}

func TestTransferInFundsPool(t *testing.T) {
	ctx := context.Background()
	b := New(storage.NewMemDB())
	require.NoError(t, b.Credit(member, big.NewInt(5)))
	require.NoError(t, b.TransferIn(ctx, member, pool, big.NewInt(5)))

	poolBal, err := b.BalanceOf(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, int64(5), poolBal.Int64())
	memberBal, err := b.BalanceOf(ctx, member)
	require.NoError(t, err)
	require.Zero(t, memberBal.Sign())
}
