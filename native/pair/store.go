package pair

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Storage abstracts the subset of state manager functionality required to
// persist the pair records.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

const keyNamespace = "oraclepair/v1/"

// The two records live under fixed keys derived from the pair address; the
// state manager hashes them with keccak256 before they reach the database.
func configKey(pair common.Address) []byte {
	return []byte(keyNamespace + strings.ToLower(pair.Hex()) + "/config")
}

func swapStateKey(pair common.Address) []byte {
	return []byte(keyNamespace + strings.ToLower(pair.Hex()) + "/state")
}

type storedConfig struct {
	MinPurchaseFee0 uint64
	MaxPurchaseFee0 uint64
	MinPurchaseFee1 uint64
	MaxPurchaseFee1 uint64
	TokenReceiver   common.Address
	FeeReceiver     common.Address
	MinBasePrice    string
	MaxBasePrice    string
	MinDriftRate    string
	MaxDriftRate    string
	Decimals0       uint8
	Decimals1       uint8
}

type storedSwapState struct {
	Paused           bool
	Token0           common.Address
	Token1           common.Address
	Reserve0         string
	Reserve1         string
	PurchaseFee0     uint64
	PurchaseFee1     uint64
	LastPriceUpdate  uint64
	DriftRate        string
	BasePrice        string
	FeesAccumulated0 string
	FeesAccumulated1 string
}

func loadConfig(store Storage, pair common.Address) (*Config, bool, error) {
	var stored storedConfig
	ok, err := store.KVGet(configKey(pair), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg := &Config{
		MinPurchaseFee0: stored.MinPurchaseFee0,
		MaxPurchaseFee0: stored.MaxPurchaseFee0,
		MinPurchaseFee1: stored.MinPurchaseFee1,
		MaxPurchaseFee1: stored.MaxPurchaseFee1,
		TokenReceiver:   stored.TokenReceiver,
		FeeReceiver:     stored.FeeReceiver,
		Decimals0:       stored.Decimals0,
		Decimals1:       stored.Decimals1,
	}
	if cfg.MinBasePrice, err = parseAmount(stored.MinBasePrice); err != nil {
		return nil, false, fmt.Errorf("pair: decode min base price: %w", err)
	}
	if cfg.MaxBasePrice, err = parseAmount(stored.MaxBasePrice); err != nil {
		return nil, false, fmt.Errorf("pair: decode max base price: %w", err)
	}
	if cfg.MinDriftRate, err = strconv.ParseInt(stored.MinDriftRate, 10, 64); err != nil {
		return nil, false, fmt.Errorf("pair: decode min drift: %w", err)
	}
	if cfg.MaxDriftRate, err = strconv.ParseInt(stored.MaxDriftRate, 10, 64); err != nil {
		return nil, false, fmt.Errorf("pair: decode max drift: %w", err)
	}
	return cfg, true, nil
}

func putConfig(store Storage, pair common.Address, cfg *Config) error {
	stored := storedConfig{
		MinPurchaseFee0: cfg.MinPurchaseFee0,
		MaxPurchaseFee0: cfg.MaxPurchaseFee0,
		MinPurchaseFee1: cfg.MinPurchaseFee1,
		MaxPurchaseFee1: cfg.MaxPurchaseFee1,
		TokenReceiver:   cfg.TokenReceiver,
		FeeReceiver:     cfg.FeeReceiver,
		MinBasePrice:    orZero(cfg.MinBasePrice).Dec(),
		MaxBasePrice:    orZero(cfg.MaxBasePrice).Dec(),
		MinDriftRate:    strconv.FormatInt(cfg.MinDriftRate, 10),
		MaxDriftRate:    strconv.FormatInt(cfg.MaxDriftRate, 10),
		Decimals0:       cfg.Decimals0,
		Decimals1:       cfg.Decimals1,
	}
	return store.KVPut(configKey(pair), stored)
}

func loadSwapState(store Storage, pair common.Address) (*SwapState, bool, error) {
	var stored storedSwapState
	ok, err := store.KVGet(swapStateKey(pair), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	st := &SwapState{
		Paused:          stored.Paused,
		Token0:          stored.Token0,
		Token1:          stored.Token1,
		PurchaseFee0:    stored.PurchaseFee0,
		PurchaseFee1:    stored.PurchaseFee1,
		LastPriceUpdate: stored.LastPriceUpdate,
	}
	fields := []struct {
		dst  **uint256.Int
		raw  string
		name string
	}{
		{&st.Reserve0, stored.Reserve0, "reserve0"},
		{&st.Reserve1, stored.Reserve1, "reserve1"},
		{&st.BasePrice, stored.BasePrice, "base price"},
		{&st.FeesAccumulated0, stored.FeesAccumulated0, "fees0"},
		{&st.FeesAccumulated1, stored.FeesAccumulated1, "fees1"},
	}
	for _, field := range fields {
		value, err := parseAmount(field.raw)
		if err != nil {
			return nil, false, fmt.Errorf("pair: decode %s: %w", field.name, err)
		}
		*field.dst = value
	}
	if st.DriftRate, err = strconv.ParseInt(stored.DriftRate, 10, 64); err != nil {
		return nil, false, fmt.Errorf("pair: decode drift: %w", err)
	}
	return st, true, nil
}

// putSwapState narrows every counter to its persisted width before writing.
func putSwapState(store Storage, pair common.Address, st *SwapState) error {
	checks := []struct {
		value *uint256.Int
		bits  int
		name  string
	}{
		{orZero(st.Reserve0), ReserveBits, "reserve0"},
		{orZero(st.Reserve1), ReserveBits, "reserve1"},
		{orZero(st.FeesAccumulated0), FeeAccumulatorBits, "fees0"},
		{orZero(st.FeesAccumulated1), FeeAccumulatorBits, "fees1"},
		{uint256.NewInt(st.LastPriceUpdate), TimestampBits, "last price update"},
	}
	for _, check := range checks {
		if _, err := narrow(check.value, check.bits, check.name); err != nil {
			return err
		}
	}
	stored := storedSwapState{
		Paused:           st.Paused,
		Token0:           st.Token0,
		Token1:           st.Token1,
		Reserve0:         orZero(st.Reserve0).Dec(),
		Reserve1:         orZero(st.Reserve1).Dec(),
		PurchaseFee0:     st.PurchaseFee0,
		PurchaseFee1:     st.PurchaseFee1,
		LastPriceUpdate:  st.LastPriceUpdate,
		DriftRate:        strconv.FormatInt(st.DriftRate, 10),
		BasePrice:        orZero(st.BasePrice).Dec(),
		FeesAccumulated0: orZero(st.FeesAccumulated0).Dec(),
		FeesAccumulated1: orZero(st.FeesAccumulated1).Dec(),
	}
	return store.KVPut(swapStateKey(pair), stored)
}

func parseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(trimmed)
}
