package pair

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"oraclepair/core/events"
)

// InitParams seeds a new pair. Price is the human price (token0 per token1,
// 1e18 scaled) and AnnualDrift the annualized drift, both subject to the
// supplied bounds.
type InitParams struct {
	Token0    common.Address
	Token1    common.Address
	Decimals0 uint8
	Decimals1 uint8

	MinPurchaseFee0 uint64
	MaxPurchaseFee0 uint64
	MinPurchaseFee1 uint64
	MaxPurchaseFee1 uint64
	PurchaseFee0    uint64
	PurchaseFee1    uint64

	TokenReceiver common.Address
	FeeReceiver   common.Address

	MinBasePrice *uint256.Int
	MaxBasePrice *uint256.Int
	MinDriftRate int64
	MaxDriftRate int64
	Price        *uint256.Int
	AnnualDrift  int64

	Paused bool
}

// Initialize writes both pair records. It can only run once per pair
// address; reserves start at zero until tokens arrive and Sync runs.
func (e *Engine) Initialize(params InitParams) error {
	return e.guarded(func() error {
		if _, ok, err := loadConfig(e.state, e.address); err != nil {
			return err
		} else if ok {
			return ErrAlreadyInitialized
		}
		if params.Token0 == (common.Address{}) || params.Token1 == (common.Address{}) {
			return fmt.Errorf("%w: zero token", ErrInvalidAddress)
		}
		if params.Token0 == params.Token1 {
			return fmt.Errorf("%w: %s", ErrIdenticalTokens, params.Token0.Hex())
		}
		if params.Token0 == e.address || params.Token1 == e.address {
			return fmt.Errorf("%w: token is the pair account", ErrInvalidAddress)
		}
		if params.Decimals0 > MaxDecimals || params.Decimals1 > MaxDecimals {
			return fmt.Errorf("%w: %d/%d exceeds %d", ErrInvalidDecimals, params.Decimals0, params.Decimals1, MaxDecimals)
		}
		cfg := &Config{
			TokenReceiver: params.TokenReceiver,
			FeeReceiver:   params.FeeReceiver,
			Decimals0:     params.Decimals0,
			Decimals1:     params.Decimals1,
		}
		if err := applyFeeBounds(cfg, params.MinPurchaseFee0, params.MaxPurchaseFee0, params.MinPurchaseFee1, params.MaxPurchaseFee1); err != nil {
			return err
		}
		if err := applyPriceBounds(cfg, params.MinBasePrice, params.MaxBasePrice, params.MinDriftRate, params.MaxDriftRate); err != nil {
			return err
		}
		if err := checkFees(cfg, params.PurchaseFee0, params.PurchaseFee1); err != nil {
			return err
		}
		now := e.timestamp()
		base, drift, err := oraclePrice(cfg, params.Price, params.AnnualDrift)
		if err != nil {
			return err
		}
		st := &SwapState{
			Paused:           params.Paused,
			Token0:           params.Token0,
			Token1:           params.Token1,
			Reserve0:         new(uint256.Int),
			Reserve1:         new(uint256.Int),
			PurchaseFee0:     params.PurchaseFee0,
			PurchaseFee1:     params.PurchaseFee1,
			LastPriceUpdate:  now,
			DriftRate:        drift,
			BasePrice:        base,
			FeesAccumulated0: new(uint256.Int),
			FeesAccumulated1: new(uint256.Int),
		}
		if err := putConfig(e.state, e.address, cfg); err != nil {
			return err
		}
		if err := putSwapState(e.state, e.address, st); err != nil {
			return err
		}
		e.emit(events.PairInitialized{
			Pair:      e.address,
			Token0:    st.Token0,
			Token1:    st.Token1,
			Decimals0: cfg.Decimals0,
			Decimals1: cfg.Decimals1,
		})
		logger := e.logger
		e.state.OnCommit(func() {
			logger.Info("pair initialised",
				"token0", st.Token0.Hex(), "token1", st.Token1.Hex(), "basePrice", base.Dec())
		})
		return nil
	})
}

// SetReceivers updates the withdrawal destinations.
func (e *Engine) SetReceivers(caller, tokenReceiver, feeReceiver common.Address) error {
	return e.updateConfig(caller, RoleAdmin, "receivers", func(cfg *Config, _ *SwapState) (map[string]string, error) {
		if tokenReceiver == (common.Address{}) || feeReceiver == (common.Address{}) {
			return nil, fmt.Errorf("%w: receiver must be set", ErrInvalidAddress)
		}
		cfg.TokenReceiver, cfg.FeeReceiver = tokenReceiver, feeReceiver
		return map[string]string{
			"tokenReceiver": tokenReceiver.Hex(),
			"feeReceiver":   feeReceiver.Hex(),
		}, nil
	})
}

// SetFeeBounds updates the purchase fee bounds. The fees currently in force
// must stay inside the new bounds.
func (e *Engine) SetFeeBounds(caller common.Address, min0, max0, min1, max1 uint64) error {
	return e.updateConfig(caller, RoleAdmin, "feeBounds", func(cfg *Config, st *SwapState) (map[string]string, error) {
		if err := applyFeeBounds(cfg, min0, max0, min1, max1); err != nil {
			return nil, err
		}
		if err := checkFees(cfg, st.PurchaseFee0, st.PurchaseFee1); err != nil {
			return nil, err
		}
		return map[string]string{
			"minPurchaseFee0": strconv.FormatUint(min0, 10),
			"maxPurchaseFee0": strconv.FormatUint(max0, 10),
			"minPurchaseFee1": strconv.FormatUint(min1, 10),
			"maxPurchaseFee1": strconv.FormatUint(max1, 10),
		}, nil
	})
}

// SetPurchaseFees updates the directional fee rates.
func (e *Engine) SetPurchaseFees(caller common.Address, fee0, fee1 uint64) error {
	return e.updateState(caller, RoleAdmin, "purchaseFees", func(cfg *Config, st *SwapState) (map[string]string, error) {
		if err := checkFees(cfg, fee0, fee1); err != nil {
			return nil, err
		}
		st.PurchaseFee0, st.PurchaseFee1 = fee0, fee1
		return map[string]string{
			"purchaseFee0": strconv.FormatUint(fee0, 10),
			"purchaseFee1": strconv.FormatUint(fee1, 10),
		}, nil
	})
}

// SetSwapper grants or revokes the swapper role. It needs a role table that
// accepts writes.
func (e *Engine) SetSwapper(caller, account common.Address, allowed bool) error {
	return e.guarded(func() error {
		if err := e.authorize(RoleAdmin, caller); err != nil {
			return err
		}
		if _, _, err := e.load(); err != nil {
			return err
		}
		if account == (common.Address{}) {
			return fmt.Errorf("%w: zero swapper", ErrInvalidAddress)
		}
		writer, ok := e.roles.(RoleWriter)
		if !ok {
			return fmt.Errorf("pair: role table is read-only")
		}
		if err := writer.SetRole(RoleSwapper, account.Bytes(), allowed); err != nil {
			return err
		}
		e.emit(events.PairConfigUpdated{
			Pair:    e.address,
			Caller:  caller,
			Setting: "swapper",
			Values: map[string]string{
				"account": account.Hex(),
				"allowed": strconv.FormatBool(allowed),
			},
		})
		return nil
	})
}

// SetPaused toggles swaps. Sync and withdrawals remain available while
// paused.
func (e *Engine) SetPaused(caller common.Address, paused bool) error {
	return e.guarded(func() error {
		if err := e.authorize(RolePauser, caller); err != nil {
			return err
		}
		_, st, err := e.load()
		if err != nil {
			return err
		}
		if st.Paused == paused {
			return nil
		}
		st.Paused = paused
		if err := putSwapState(e.state, e.address, st); err != nil {
			return err
		}
		e.emit(events.PairPauseToggled{Pair: e.address, Caller: caller, Paused: paused})
		e.logger.Warn("pair pause toggled", "paused", paused, "caller", caller.Hex())
		return nil
	})
}

// SetPriceBounds updates the bounds ConfigureOraclePrice enforces. The price
// already in force is not re-validated.
func (e *Engine) SetPriceBounds(caller common.Address, minPrice, maxPrice *uint256.Int, minDrift, maxDrift int64) error {
	return e.updateConfig(caller, RoleAdmin, "priceBounds", func(cfg *Config, _ *SwapState) (map[string]string, error) {
		if err := applyPriceBounds(cfg, minPrice, maxPrice, minDrift, maxDrift); err != nil {
			return nil, err
		}
		return map[string]string{
			"minBasePrice": cfg.MinBasePrice.Dec(),
			"maxBasePrice": cfg.MaxBasePrice.Dec(),
			"minDriftRate": strconv.FormatInt(minDrift, 10),
			"maxDriftRate": strconv.FormatInt(maxDrift, 10),
		}, nil
	})
}

// ConfigureOraclePrice resets the oracle reference point: the human price is
// adjusted for token decimals and becomes the base price at the current
// time, and the annual drift is converted to a per-second rate.
func (e *Engine) ConfigureOraclePrice(caller common.Address, price *uint256.Int, annualDrift int64) error {
	return e.guarded(func() error {
		if err := e.authorize(RoleOracle, caller); err != nil {
			return err
		}
		cfg, st, err := e.load()
		if err != nil {
			return err
		}
		now := e.timestamp()
		if now < st.LastPriceUpdate {
			return fmt.Errorf("%w: %d < %d", ErrClockSkew, now, st.LastPriceUpdate)
		}
		base, drift, err := oraclePrice(cfg, price, annualDrift)
		if err != nil {
			return err
		}
		st.BasePrice, st.DriftRate, st.LastPriceUpdate = base, drift, now
		if err := putSwapState(e.state, e.address, st); err != nil {
			return err
		}
		e.emit(events.PairPriceConfigured{
			Pair:         e.address,
			Caller:       caller,
			Price:        price.Clone(),
			BasePrice:    base.Clone(),
			AnnualDrift:  annualDrift,
			DriftPerSec:  drift,
			UpdatedAtSec: now,
		})
		metrics := e.metrics
		e.state.OnCommit(func() { metrics.ObservePrice(base) })
		return nil
	})
}

type mutation func(cfg *Config, st *SwapState) (map[string]string, error)

// updateConfig and updateState share the authorize/load/mutate/persist/emit
// sequence of the simple setters.
func (e *Engine) updateConfig(caller common.Address, role, setting string, fn mutation) error {
	return e.mutate(caller, role, setting, fn, true)
}

func (e *Engine) updateState(caller common.Address, role, setting string, fn mutation) error {
	return e.mutate(caller, role, setting, fn, false)
}

func (e *Engine) mutate(caller common.Address, role, setting string, fn mutation, config bool) error {
	return e.guarded(func() error {
		if err := e.authorize(role, caller); err != nil {
			return err
		}
		cfg, st, err := e.load()
		if err != nil {
			return err
		}
		values, err := fn(cfg, st)
		if err != nil {
			return err
		}
		if config {
			err = putConfig(e.state, e.address, cfg)
		} else {
			err = putSwapState(e.state, e.address, st)
		}
		if err != nil {
			return err
		}
		e.emit(events.PairConfigUpdated{Pair: e.address, Caller: caller, Setting: setting, Values: values})
		return nil
	})
}

func applyFeeBounds(cfg *Config, min0, max0, min1, max1 uint64) error {
	for _, v := range []uint64{min0, max0, min1, max1} {
		if v > MaxFeeRate {
			return fmt.Errorf("%w: %d", ErrFeeOutOfRange, v)
		}
	}
	if min0 > max0 || min1 > max1 {
		return fmt.Errorf("%w: fee bounds %d..%d, %d..%d", ErrBoundsInverted, min0, max0, min1, max1)
	}
	cfg.MinPurchaseFee0, cfg.MaxPurchaseFee0 = min0, max0
	cfg.MinPurchaseFee1, cfg.MaxPurchaseFee1 = min1, max1
	return nil
}

func applyPriceBounds(cfg *Config, minPrice, maxPrice *uint256.Int, minDrift, maxDrift int64) error {
	minPrice, maxPrice = orZero(minPrice), orZero(maxPrice)
	if minPrice.Gt(maxPrice) {
		return fmt.Errorf("%w: price bounds %s..%s", ErrBoundsInverted, minPrice.Dec(), maxPrice.Dec())
	}
	if minDrift > maxDrift {
		return fmt.Errorf("%w: drift bounds %d..%d", ErrBoundsInverted, minDrift, maxDrift)
	}
	cfg.MinBasePrice, cfg.MaxBasePrice = minPrice.Clone(), maxPrice.Clone()
	cfg.MinDriftRate, cfg.MaxDriftRate = minDrift, maxDrift
	return nil
}

func checkFees(cfg *Config, fee0, fee1 uint64) error {
	if fee0 < cfg.MinPurchaseFee0 || fee0 > cfg.MaxPurchaseFee0 {
		return fmt.Errorf("%w: purchase fee0 %d not in %d..%d", ErrOutOfBounds, fee0, cfg.MinPurchaseFee0, cfg.MaxPurchaseFee0)
	}
	if fee1 < cfg.MinPurchaseFee1 || fee1 > cfg.MaxPurchaseFee1 {
		return fmt.Errorf("%w: purchase fee1 %d not in %d..%d", ErrOutOfBounds, fee1, cfg.MinPurchaseFee1, cfg.MaxPurchaseFee1)
	}
	return nil
}

// oraclePrice validates a human price and annual drift against cfg and
// returns the stored base price and per-second drift.
func oraclePrice(cfg *Config, price *uint256.Int, annualDrift int64) (*uint256.Int, int64, error) {
	if price == nil || price.IsZero() {
		return nil, 0, fmt.Errorf("%w: price must be positive", ErrOutOfBounds)
	}
	if price.Lt(orZero(cfg.MinBasePrice)) || price.Gt(orZero(cfg.MaxBasePrice)) {
		return nil, 0, fmt.Errorf("%w: price %s not in %s..%s", ErrOutOfBounds, price.Dec(), orZero(cfg.MinBasePrice).Dec(), orZero(cfg.MaxBasePrice).Dec())
	}
	if annualDrift < cfg.MinDriftRate || annualDrift > cfg.MaxDriftRate {
		return nil, 0, fmt.Errorf("%w: drift %d not in %d..%d", ErrOutOfBounds, annualDrift, cfg.MinDriftRate, cfg.MaxDriftRate)
	}
	base, err := AdjustPrice(price, cfg.Decimals0, cfg.Decimals1)
	if err != nil {
		return nil, 0, err
	}
	if base.IsZero() {
		return nil, 0, fmt.Errorf("%w: price %s rounds to zero after decimal adjustment", ErrOutOfBounds, price.Dec())
	}
	return base, PerSecondDrift(annualDrift), nil
}
