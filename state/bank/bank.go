package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"cookiejar/storage"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must not be negative")
	ErrBalanceOverflow     = errors.New("bank: balance overflow")
)

const balancePrefix = "bank/balance/"

// Bank is a single-asset custody ledger. Balances are stored as rlp-encoded
// integers and every mutation is checked against the 256-bit range.
type Bank struct {
	mu sync.Mutex
	db storage.Database
}

// New returns a bank persisting balances to db.
func New(db storage.Database) *Bank {
	return &Bank{db: db}
}

func balanceKey(addr common.Address) []byte {
	return []byte(balancePrefix + strings.ToLower(addr.Hex()))
}

func (b *Bank) readBalance(addr common.Address) (*uint256.Int, error) {
	if b == nil || b.db == nil {
		return nil, fmt.Errorf("bank: not initialised")
	}
	data, err := b.db.Get(balanceKey(addr))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && len(data) == 0) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("bank: load balance: %w", err)
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, fmt.Errorf("bank: decode balance: %w", err)
	}
	balance, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return balance, nil
}

func (b *Bank) writeBalance(addr common.Address, balance *uint256.Int) error {
	if balance.IsZero() {
		return b.db.Delete(balanceKey(addr))
	}
	encoded, err := rlp.EncodeToBytes(balance.ToBig())
	if err != nil {
		return err
	}
	return b.db.Put(balanceKey(addr), encoded)
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return uint256.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return value, nil
}

// BalanceOf returns the balance held by addr.
func (b *Bank) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	balance, err := b.readBalance(addr)
	if err != nil {
		return nil, err
	}
	return balance.ToBig(), nil
}

// Credit mints amount into addr. It is used to seed balances at bootstrap.
func (b *Bank) Credit(addr common.Address, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	balance, err := b.readBalance(addr)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, value)
	if overflow {
		return ErrBalanceOverflow
	}
	return b.writeBalance(addr, next)
}

// Transfer moves amount from one account to another. The debit and credit are
// applied under a single lock so no reader observes a half-applied transfer.
func (b *Bank) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if from == to || value.IsZero() {
		return nil
	}
	fromBalance, err := b.readBalance(from)
	if err != nil {
		return err
	}
	if fromBalance.Lt(value) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBalance.Dec(), value.Dec())
	}
	toBalance, err := b.readBalance(to)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(toBalance, value)
	if overflow {
		return ErrBalanceOverflow
	}
	debited := new(uint256.Int).Sub(fromBalance, value)
	if err := b.writeBalance(from, debited); err != nil {
		return fmt.Errorf("bank: persist debit: %w", err)
	}
	if err := b.writeBalance(to, credited); err != nil {
		// Restore the debit so the pair stays consistent.
		_ = b.writeBalance(from, fromBalance)
		return fmt.Errorf("bank: persist credit: %w", err)
	}
	return nil
}

// TransferIn funds the pool from a depositor account.
func (b *Bank) TransferIn(ctx context.Context, from, pool common.Address, amount *big.Int) error {
	return b.Transfer(ctx, from, pool, amount)
}
