package cookiejar

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cookiejar/storage"
)

// ClaimStore persists one ordered claim log per member.
type ClaimStore interface {
	// Load returns the member's claims oldest first. A member without a log
	// yields an empty slice and no error.
	Load(ctx context.Context, member common.Address) ([]Claim, error)
	// Append adds a claim to the end of the member's log, creating it if
	// needed.
	Append(ctx context.Context, member common.Address, claim Claim) error
	// Replace overwrites the member's log. An empty slice removes it.
	Replace(ctx context.Context, member common.Address, claims []Claim) error
}

// KVStore keeps each member log as an rlp-encoded list under a single key of
// a storage.Database.
type KVStore struct {
	mu sync.Mutex
	db storage.Database
}

// NewKVStore returns a claim store over db.
func NewKVStore(db storage.Database) *KVStore {
	return &KVStore{db: db}
}

// NewMemoryStore returns a KVStore backed by an in-memory database.
func NewMemoryStore() *KVStore {
	return NewKVStore(storage.NewMemDB())
}

func (s *KVStore) withDB() (storage.Database, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("cookiejar: claim store not initialised")
	}
	return s.db, nil
}

func (s *KVStore) load(db storage.Database, member common.Address) ([]Claim, error) {
	raw, err := db.Get(claimsKey(member))
	if errors.Is(err, storage.ErrNotFound) {
		return []Claim{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cookiejar: load claims: %w", err)
	}
	if len(raw) == 0 {
		return []Claim{}, nil
	}
	var claims []Claim
	if err := rlp.DecodeBytes(raw, &claims); err != nil {
		return nil, fmt.Errorf("cookiejar: decode claims: %w", err)
	}
	return claims, nil
}

func (s *KVStore) put(db storage.Database, member common.Address, claims []Claim) error {
	if len(claims) == 0 {
		if err := db.Delete(claimsKey(member)); err != nil {
			return fmt.Errorf("cookiejar: delete claims: %w", err)
		}
		return nil
	}
	encoded, err := rlp.EncodeToBytes(claims)
	if err != nil {
		return fmt.Errorf("cookiejar: encode claims: %w", err)
	}
	if err := db.Put(claimsKey(member), encoded); err != nil {
		return fmt.Errorf("cookiejar: persist claims: %w", err)
	}
	return nil
}

// Load implements ClaimStore.
func (s *KVStore) Load(ctx context.Context, member common.Address) ([]Claim, error) {
	db, err := s.withDB()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(db, member)
}

// Append implements ClaimStore.
func (s *KVStore) Append(ctx context.Context, member common.Address, claim Claim) error {
	db, err := s.withDB()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	claims, err := s.load(db, member)
	if err != nil {
		return err
	}
	return s.put(db, member, append(claims, claim))
}

// Replace implements ClaimStore.
func (s *KVStore) Replace(ctx context.Context, member common.Address, claims []Claim) error {
	db, err := s.withDB()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(db, member, claims)
}
