package pair

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Roles consulted by the pair.
const (
	RoleAdmin     = "ROLE_PAIR_ADMIN"
	RolePauser    = "ROLE_PAIR_PAUSER"
	RoleOracle    = "ROLE_PAIR_ORACLE"
	RoleTreasurer = "ROLE_PAIR_TREASURER"
	RoleSwapper   = "ROLE_PAIR_SWAPPER"
)

// RoleView answers "does this caller hold this role". The state manager
// implements it over its role table.
type RoleView interface {
	HasRole(role string, addr []byte) bool
}

// RoleWriter is the optional write side used by SetSwapper.
type RoleWriter interface {
	SetRole(role string, addr []byte, allowed bool) error
}

// MapRoles is an in-memory role table.
type MapRoles struct {
	mu      sync.RWMutex
	members map[string]map[common.Address]struct{}
}

// NewMapRoles returns an empty table.
func NewMapRoles() *MapRoles {
	return &MapRoles{members: make(map[string]map[common.Address]struct{})}
}

// Grant adds addr to role and returns the table for chaining.
func (r *MapRoles) Grant(role string, addrs ...common.Address) *MapRoles {
	for _, addr := range addrs {
		_ = r.SetRole(role, addr.Bytes(), true)
	}
	return r
}

// HasRole implements RoleView.
func (r *MapRoles) HasRole(role string, addr []byte) bool {
	if len(addr) != common.AddressLength {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[role][common.BytesToAddress(addr)]
	return ok
}

// SetRole implements RoleWriter.
func (r *MapRoles) SetRole(role string, addr []byte, allowed bool) error {
	if len(addr) != common.AddressLength {
		return ErrInvalidAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[role]
	if !ok {
		set = make(map[common.Address]struct{})
		r.members[role] = set
	}
	if allowed {
		set[common.BytesToAddress(addr)] = struct{}{}
	} else {
		delete(set, common.BytesToAddress(addr))
	}
	return nil
}
