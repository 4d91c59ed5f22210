package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"cookiejar/storage"
)

const rolesPrefix = "roles/"

// Roles is a role registry persisted as one rlp-encoded, sorted address list
// per role.
type Roles struct {
	mu sync.RWMutex
	db storage.Database
}

// NewRoles returns a registry backed by the supplied database.
func NewRoles(db storage.Database) *Roles {
	return &Roles{db: db}
}

func roleKey(role string) []byte {
	return []byte(rolesPrefix + strings.TrimSpace(role))
}

func (r *Roles) load(role string) ([][]byte, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("roles: registry not initialised")
	}
	data, err := r.db.Get(roleKey(role))
	if errors.Is(err, storage.ErrNotFound) {
		return [][]byte{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, fmt.Errorf("roles: decode %s: %w", role, err)
	}
	return members, nil
}

func (r *Roles) store(role string, members [][]byte) error {
	if len(members) == 0 {
		return r.db.Delete(roleKey(role))
	}
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return r.db.Put(roleKey(role), encoded)
}

// SetRole associates an address with the specified role. Duplicate assignments
// are ignored while the stored list remains sorted for determinism.
func (r *Roles) SetRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members, err := r.load(trimmed)
	if err != nil {
		return err
	}
	for _, existing := range members {
		if bytes.Equal(existing, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare(members[i], members[j]) < 0
	})
	return r.store(trimmed, members)
}

// RevokeRole removes the address from the role. Revoking an absent assignment
// is a no-op.
func (r *Roles) RevokeRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members, err := r.load(trimmed)
	if err != nil {
		return err
	}
	kept := members[:0]
	for _, existing := range members {
		if !bytes.Equal(existing, addr) {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(members) {
		return nil
	}
	return r.store(trimmed, kept)
}

// RoleMembers returns all addresses assigned to the provided role.
func (r *Roles) RoleMembers(role string) ([][]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load(strings.TrimSpace(role))
}

// HasRole reports whether the provided address is associated with the
// specified role. Errors while reading the underlying state result in a false
// return so a broken store never grants access.
func (r *Roles) HasRole(role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, err := r.load(strings.TrimSpace(role))
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}
