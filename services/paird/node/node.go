// Package node assembles the pair engine over persistent state and applies
// the genesis on first start.
package node

import (
	"errors"
	"fmt"
	"log/slog"

	"oraclepair/config"
	"oraclepair/core/state"
	"oraclepair/native/pair"
	"oraclepair/observability"
	"oraclepair/storage"
)

// Node owns the state database and the engine built on it.
type Node struct {
	DB     storage.Database
	State  *state.Manager
	Engine *pair.Engine
}

// Open builds the engine for the genesis pair over the configured backend
// and bootstraps it when the pair records do not exist yet.
func Open(cfg *config.Config, genesis *config.Genesis, logger *slog.Logger) (*Node, error) {
	var (
		db  storage.Database
		err error
	)
	switch cfg.DBBackend {
	case config.BackendMemory:
		db = storage.NewMemDB()
	default:
		if db, err = storage.NewLevelDB(cfg.StatePath()); err != nil {
			return nil, fmt.Errorf("open state: %w", err)
		}
	}

	n, err := New(db, genesis, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return n, nil
}

// New wires an engine over db. Callers own db until New succeeds.
func New(db storage.Database, genesis *config.Genesis, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	addr, err := genesis.PairAddress()
	if err != nil {
		return nil, err
	}
	mgr := state.NewManager(db)
	engine := pair.NewEngine(addr, mgr, mgr)
	engine.SetLogger(logger)
	engine.SetMetrics(observability.Pair(addr))

	created, err := Bootstrap(mgr, engine, genesis)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("pair bootstrapped from genesis", "pair", addr.Hex())
	}
	return &Node{DB: db, State: mgr, Engine: engine}, nil
}

// Bootstrap grants genesis roles, credits genesis balances, initialises the
// pair and syncs reserves, all in one atomic scope. It reports false when the
// pair already exists.
func Bootstrap(mgr *state.Manager, engine *pair.Engine, genesis *config.Genesis) (bool, error) {
	if _, err := engine.Config(); err == nil {
		return false, nil
	} else if !errors.Is(err, pair.ErrNotInitialized) {
		return false, err
	}

	params, err := genesis.Params()
	if err != nil {
		return false, err
	}
	grants, err := genesis.RoleGrants()
	if err != nil {
		return false, err
	}
	allocations, err := genesis.Allocations()
	if err != nil {
		return false, err
	}

	err = mgr.Atomic(func() error {
		for role, addrs := range grants {
			for _, addr := range addrs {
				if err := mgr.SetRole(role, addr.Bytes(), true); err != nil {
					return fmt.Errorf("grant %s: %w", role, err)
				}
			}
		}
		for _, alloc := range allocations {
			if err := mgr.Mint(alloc.Token, alloc.Owner, alloc.Amount); err != nil {
				return fmt.Errorf("credit %s: %w", alloc.Owner.Hex(), err)
			}
		}
		if err := engine.Initialize(params); err != nil {
			return fmt.Errorf("initialise pair: %w", err)
		}
		if _, err := engine.Sync(); err != nil {
			return fmt.Errorf("sync genesis reserves: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the state database.
func (n *Node) Close() error {
	if n == nil || n.DB == nil {
		return nil
	}
	return n.DB.Close()
}
