package pair

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"oraclepair/core/events"
	nativecommon "oraclepair/native/common"
)

// State is the persistence and asset-transfer surface the engine runs on.
// *state.Manager satisfies it.
type State interface {
	Storage
	BalanceOf(token, owner common.Address) (*uint256.Int, error)
	Transfer(token, from, to common.Address, amount *uint256.Int) error
	// Atomic runs fn so that either all of its writes land or none do.
	Atomic(fn func() error) error
	// OnCommit defers fn until the enclosing Atomic scopes commit.
	OnCommit(fn func())
}

// SettlementCallee is implemented by recipients that settle a swap inside
// the same call ("flash" swaps). The pair transfers the output first, invokes
// PairCall, and then checks that the required input has arrived.
type SettlementCallee interface {
	PairCall(sender common.Address, amount0Out, amount1Out *uint256.Int, data []byte) error
}

// Metrics receives engine observations. observability.PairMetrics implements
// it with prometheus collectors.
type Metrics interface {
	ObserveSwap(direction, outcome string)
	ObserveFee(token common.Address, amount *uint256.Int)
	ObserveReserves(reserve0, reserve1 *uint256.Int)
	ObservePrice(price *uint256.Int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSwap(string, string)                {}
func (noopMetrics) ObserveFee(common.Address, *uint256.Int)   {}
func (noopMetrics) ObserveReserves(*uint256.Int, *uint256.Int) {}
func (noopMetrics) ObservePrice(*uint256.Int)                 {}

// Engine executes swaps and administrative operations for one pair.
//
// Engine is not safe for concurrent use; callers serialise access. Re-entry
// from a settlement callback is rejected.
type Engine struct {
	address common.Address
	state   State
	roles   RoleView
	emitter events.Emitter
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
	lock    nativecommon.Lock
	callees map[common.Address]SettlementCallee
}

// NewEngine constructs an engine for the pair living at address.
func NewEngine(address common.Address, state State, roles RoleView) *Engine {
	return &Engine{
		address: address,
		state:   state,
		roles:   roles,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: noopMetrics{},
		now:     time.Now,
		callees: make(map[common.Address]SettlementCallee),
	}
}

// Address returns the account holding the pair's balances.
func (e *Engine) Address() common.Address { return e.address }

// SetEmitter wires the notification sink. Events are delivered only after
// the call that produced them commits.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger.With(slog.String("component", moduleName), slog.String("pair", e.address.Hex()))
}

func (e *Engine) SetMetrics(metrics Metrics) {
	if e == nil {
		return
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	e.metrics = metrics
}

// SetClock overrides the engine clock, primarily for deterministic testing.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

// RegisterCallee makes addr eligible for settlement callbacks.
func (e *Engine) RegisterCallee(addr common.Address, callee SettlementCallee) {
	if e == nil {
		return
	}
	if callee == nil {
		delete(e.callees, addr)
		return
	}
	e.callees[addr] = callee
}

func (e *Engine) timestamp() uint64 {
	now := e.now().UTC().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

// guarded runs fn under the reentrancy lock and inside one atomic scope.
func (e *Engine) guarded(fn func() error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	release, err := e.lock.Enter()
	defer release()
	if err != nil {
		return err
	}
	return e.state.Atomic(fn)
}

func (e *Engine) authorize(role string, caller common.Address) error {
	if e.roles == nil || !e.roles.HasRole(role, caller.Bytes()) {
		return fmt.Errorf("%w: %s missing %s", ErrUnauthorized, caller.Hex(), role)
	}
	return nil
}

func (e *Engine) load() (*Config, *SwapState, error) {
	cfg, ok, err := loadConfig(e.state, e.address)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrNotInitialized
	}
	st, ok, err := loadSwapState(e.state, e.address)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrNotInitialized
	}
	return cfg, st, nil
}

func (e *Engine) emit(ev events.Event) {
	emitter := e.emitter
	e.state.OnCommit(func() { emitter.Emit(ev) })
}

// Config returns a copy of the configuration record.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	cfg, _, err := e.load()
	return cfg, err
}

// State returns a copy of the swap state record.
func (e *Engine) State() (*SwapState, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	_, st, err := e.load()
	return st, err
}

// CurrentPrice evaluates the oracle price at the engine clock.
func (e *Engine) CurrentPrice() (*uint256.Int, error) {
	return e.PriceAtTime(e.timestamp())
}

// PriceAtTime evaluates the oracle price at an arbitrary timestamp not
// earlier than the last price update.
func (e *Engine) PriceAtTime(timestamp uint64) (*uint256.Int, error) {
	st, err := e.State()
	if err != nil {
		return nil, err
	}
	return PriceAt(st.LastPriceUpdate, timestamp, st.DriftRate, st.BasePrice)
}

// Swap pays out exactly one of amount0Out/amount1Out to `to` and requires the
// matching input, priced by the oracle and charged the purchase fee, to be
// present in the pair's balance when the call ends. With non-empty data the
// recipient's SettlementCallee runs between the payout and the check.
func (e *Engine) Swap(caller common.Address, amount0Out, amount1Out *uint256.Int, to common.Address, data []byte) (*SwapResult, error) {
	var result *SwapResult
	err := e.guarded(func() error {
		var err error
		result, err = e.swap(caller, amount0Out, amount1Out, to, data, e.timestamp())
		return err
	})
	e.observeSwap(swapDirection(orZero(amount0Out).IsZero()), err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Direction labels for swap metrics. directionUnknown covers route calls
// rejected before the path could be matched to the pair's tokens.
const (
	directionZeroForOne = "0to1"
	directionOneForZero = "1to0"
	directionUnknown    = "unknown"
)

func swapDirection(zeroForOne bool) string {
	if zeroForOne {
		return directionZeroForOne
	}
	return directionOneForZero
}

func (e *Engine) observeSwap(direction string, err error) {
	if e == nil || e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
		e.logger.Debug("swap rejected", slog.String("direction", direction), slog.Any("error", err))
	}
	e.metrics.ObserveSwap(direction, outcome)
}

func (e *Engine) swap(caller common.Address, amount0Out, amount1Out *uint256.Int, to common.Address, data []byte, now uint64) (*SwapResult, error) {
	if err := e.authorize(RoleSwapper, caller); err != nil {
		return nil, err
	}
	out0, out1 := orZero(amount0Out).Clone(), orZero(amount1Out).Clone()
	if out0.IsZero() == out1.IsZero() {
		return nil, fmt.Errorf("%w: amount0Out=%s amount1Out=%s", ErrInvalidAmounts, out0.Dec(), out1.Dec())
	}

	_, st, err := e.load()
	if err != nil {
		return nil, err
	}
	price, err := PriceAt(st.LastPriceUpdate, now, st.DriftRate, st.BasePrice)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(st, moduleName); err != nil {
		return nil, err
	}
	if out0.Gt(st.Reserve0) || out1.Gt(st.Reserve1) {
		return nil, fmt.Errorf("%w: requested %s/%s, reserves %s/%s",
			ErrInsufficientLiquidity, out0.Dec(), out1.Dec(), st.Reserve0.Dec(), st.Reserve1.Dec())
	}
	if to == e.address || to == st.Token0 || to == st.Token1 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecipient, to.Hex())
	}

	zeroForOne := out0.IsZero()
	if zeroForOne {
		err = e.state.Transfer(st.Token1, e.address, to, out1)
	} else {
		err = e.state.Transfer(st.Token0, e.address, to, out0)
	}
	if err != nil {
		return nil, fmt.Errorf("pair: transfer output: %w", err)
	}

	flash := len(data) > 0
	if flash {
		callee, ok := e.callees[to]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoCallee, to.Hex())
		}
		if err := callee.PairCall(caller, out0.Clone(), out1.Clone(), append([]byte(nil), data...)); err != nil {
			return nil, fmt.Errorf("pair: settlement callback: %w", err)
		}
	}

	balance0, balance1, err := e.balances(st)
	if err != nil {
		return nil, err
	}
	in0, err := receivedAmount(balance0, st.FeesAccumulated0, st.Reserve0, out0)
	if err != nil {
		return nil, err
	}
	in1, err := receivedAmount(balance1, st.FeesAccumulated1, st.Reserve1, out1)
	if err != nil {
		return nil, err
	}

	fee0, fee1 := new(uint256.Int), new(uint256.Int)
	var required, received *uint256.Int
	if zeroForOne {
		required, fee1, err = AmountInForExactOut0(out1, price, st.PurchaseFee1)
		received = in0
	} else {
		required, fee0, err = AmountInForExactOut1(out0, price, st.PurchaseFee0)
		received = in1
	}
	if err != nil {
		return nil, err
	}
	if received.Lt(required) {
		return nil, fmt.Errorf("%w: received %s, required %s", ErrInsufficientInput, received.Dec(), required.Dec())
	}

	if st.FeesAccumulated0, err = add(st.FeesAccumulated0, fee0); err != nil {
		return nil, err
	}
	if st.FeesAccumulated1, err = add(st.FeesAccumulated1, fee1); err != nil {
		return nil, err
	}
	if err := e.writeReserves(st, balance0, balance1); err != nil {
		return nil, err
	}
	if err := putSwapState(e.state, e.address, st); err != nil {
		return nil, err
	}

	result := &SwapResult{
		Amount0In:  in0,
		Amount1In:  in1,
		Amount0Out: out0,
		Amount1Out: out1,
		Fee0:       fee0,
		Fee1:       fee1,
		Price:      price,
		Timestamp:  now,
	}
	e.emit(events.PairFee{
		Pair:   e.address,
		Fee0:   fee0.Clone(),
		Fee1:   fee1.Clone(),
		Total0: st.FeesAccumulated0.Clone(),
		Total1: st.FeesAccumulated1.Clone(),
	})
	e.emit(events.PairSync{Pair: e.address, Reserve0: st.Reserve0.Clone(), Reserve1: st.Reserve1.Clone()})
	e.emit(events.PairSwap{
		Pair:       e.address,
		Sender:     caller,
		To:         to,
		Amount0In:  in0.Clone(),
		Amount1In:  in1.Clone(),
		Amount0Out: out0.Clone(),
		Amount1Out: out1.Clone(),
		Price:      price.Clone(),
		Timestamp:  now,
		Flash:      flash,
	})
	metrics, token0, token1 := e.metrics, st.Token0, st.Token1
	reserve0, reserve1 := st.Reserve0.Clone(), st.Reserve1.Clone()
	e.state.OnCommit(func() {
		if !fee0.IsZero() {
			metrics.ObserveFee(token0, fee0)
		}
		if !fee1.IsZero() {
			metrics.ObserveFee(token1, fee1)
		}
		metrics.ObserveReserves(reserve0, reserve1)
		metrics.ObservePrice(price)
	})
	return result, nil
}

func (e *Engine) balances(st *SwapState) (*uint256.Int, *uint256.Int, error) {
	balance0, err := e.state.BalanceOf(st.Token0, e.address)
	if err != nil {
		return nil, nil, err
	}
	balance1, err := e.state.BalanceOf(st.Token1, e.address)
	if err != nil {
		return nil, nil, err
	}
	return balance0, balance1, nil
}

// receivedAmount is max(0, (balance - fees) - (reserve - amountOut)). Fees
// already accrued sit in the balance but are not new input.
func receivedAmount(balance, fees, reserve, amountOut *uint256.Int) (*uint256.Int, error) {
	net, err := sub(balance, fees)
	if err != nil {
		return nil, fmt.Errorf("%w: balance %s, fees %s", ErrAccounting, balance.Dec(), fees.Dec())
	}
	remaining, err := sub(reserve, amountOut)
	if err != nil {
		return nil, err
	}
	if net.Lt(remaining) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(net, remaining), nil
}

// writeReserves sets reserve = balance - fees on both sides. A balance that
// cannot cover the accrued fees means the output plus its fee exceeded the
// reserve.
func (e *Engine) writeReserves(st *SwapState, balance0, balance1 *uint256.Int) error {
	reserve0, err := sub(balance0, st.FeesAccumulated0)
	if err != nil {
		return fmt.Errorf("%w: token0 balance %s below fees %s", ErrInsufficientLiquidity, balance0.Dec(), st.FeesAccumulated0.Dec())
	}
	reserve1, err := sub(balance1, st.FeesAccumulated1)
	if err != nil {
		return fmt.Errorf("%w: token1 balance %s below fees %s", ErrInsufficientLiquidity, balance1.Dec(), st.FeesAccumulated1.Dec())
	}
	if _, err := narrow(reserve0, ReserveBits, "reserve0"); err != nil {
		return err
	}
	if _, err := narrow(reserve1, ReserveBits, "reserve1"); err != nil {
		return err
	}
	st.Reserve0, st.Reserve1 = reserve0, reserve1
	return nil
}
