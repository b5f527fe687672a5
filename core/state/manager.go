package state

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"oraclepair/storage"
)

// Manager reads and writes module state on top of a key-value database.
//
// Writes performed inside Atomic are staged in an overlay and only reach the
// database when the outermost scope returns without error. Nested scopes
// merge into their parent on success and are discarded on failure, so a
// failing call never leaves partial state behind.
//
// Manager is not safe for concurrent use.
type Manager struct {
	db     storage.Database
	scopes []*scope
}

type scope struct {
	writes map[string][]byte
	// order preserves the first-write order of keys so commits are
	// deterministic.
	order []string
	hooks []func()
}

func newScope() *scope {
	return &scope{writes: make(map[string][]byte)}
}

func (s *scope) set(key string, value []byte) {
	if _, ok := s.writes[key]; !ok {
		s.order = append(s.order, key)
	}
	s.writes[key] = value
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	rolePrefix = []byte("role:")

	errEmptyKey = errors.New("kv: key must not be empty")
)

func roleKey(role string) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Atomic runs fn inside a new write scope. Every write performed by fn,
// including writes from nested Atomic calls, is committed only if fn returns
// nil. Hooks registered with OnCommit run after the outermost scope commits.
func (m *Manager) Atomic(fn func() error) (err error) {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	current := newScope()
	m.scopes = append(m.scopes, current)
	committed := false
	defer func() {
		if !committed {
			m.scopes = m.scopes[:len(m.scopes)-1]
		}
	}()

	if err = fn(); err != nil {
		return err
	}

	m.scopes = m.scopes[:len(m.scopes)-1]
	committed = true
	if len(m.scopes) > 0 {
		parent := m.scopes[len(m.scopes)-1]
		for _, key := range current.order {
			parent.set(key, current.writes[key])
		}
		parent.hooks = append(parent.hooks, current.hooks...)
		return nil
	}

	batch := storage.NewBatch()
	for _, key := range current.order {
		value := current.writes[key]
		if value == nil {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), value)
	}
	if err = m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	for _, hook := range current.hooks {
		hook()
	}
	return nil
}

// InAtomic reports whether a write scope is open.
func (m *Manager) InAtomic() bool {
	return m != nil && len(m.scopes) > 0
}

// OnCommit registers fn to run once the enclosing scopes commit. Outside a
// scope fn runs immediately.
func (m *Manager) OnCommit(fn func()) {
	if fn == nil {
		return
	}
	if !m.InAtomic() {
		fn()
		return
	}
	top := m.scopes[len(m.scopes)-1]
	top.hooks = append(top.hooks, fn)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	for i := len(m.scopes) - 1; i >= 0; i-- {
		if value, ok := m.scopes[i].writes[string(key)]; ok {
			return value, nil
		}
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) put(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if m.InAtomic() {
		m.scopes[len(m.scopes)-1].set(string(key), append([]byte(nil), value...))
		return nil
	}
	return m.db.Put(key, value)
}

func (m *Manager) del(key []byte) error {
	if m.InAtomic() {
		m.scopes[len(m.scopes)-1].set(string(key), nil)
		return nil
	}
	return m.db.Delete(key)
}

// KVPut stores the RLP encoding of value under keccak256(key).
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, errEmptyKey
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	return m.del(kvKey(key))
}

// RoleMembers returns the addresses currently holding role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	data, err := m.get(roleKey(strings.TrimSpace(role)))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// HasRole reports whether the provided address is associated with the
// specified role. Errors while reading the underlying state result in a false
// return so a broken role table never grants access.
func (m *Manager) HasRole(role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := m.RoleMembers(role)
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

// SetRole grants or revokes role for addr.
func (m *Manager) SetRole(role string, addr []byte, allowed bool) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return fmt.Errorf("state: role required")
	}
	if len(addr) == 0 {
		return fmt.Errorf("state: address required")
	}
	members, err := m.RoleMembers(role)
	if err != nil {
		return err
	}
	updated := make([][]byte, 0, len(members)+1)
	found := false
	for _, member := range members {
		if bytes.Equal(member, addr) {
			found = true
			if !allowed {
				continue
			}
		}
		updated = append(updated, member)
	}
	if allowed && !found {
		updated = append(updated, append([]byte(nil), addr...))
	}
	encoded, err := rlp.EncodeToBytes(updated)
	if err != nil {
		return err
	}
	return m.put(roleKey(role), encoded)
}
