package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	nativecommon "oraclepair/native/common"
	"oraclepair/native/pair"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Genesis describes one pair deployment: its tokens, economics, role
// holders, opening balances and caller limits.
type Genesis struct {
	Pair      string       `yaml:"pair"`
	Token0    Token        `yaml:"token0"`
	Token1    Token        `yaml:"token1"`
	Receivers Receivers    `yaml:"receivers"`
	Price     PriceSpec    `yaml:"price"`
	Paused    bool         `yaml:"paused"`
	Roles     Roles        `yaml:"roles"`
	Balances  []Allocation `yaml:"balances"`
	Limits    Limits       `yaml:"limits"`
}

// Token configures one side of the pair. Fee rates are 1e18 fixed point.
type Token struct {
	Address     string `yaml:"address"`
	Decimals    uint8  `yaml:"decimals"`
	PurchaseFee uint64 `yaml:"purchase_fee"`
	MinFee      uint64 `yaml:"min_fee"`
	MaxFee      uint64 `yaml:"max_fee"`
}

// Receivers names the withdrawal destinations.
type Receivers struct {
	Tokens string `yaml:"tokens"`
	Fees   string `yaml:"fees"`
}

// PriceSpec holds the human price (1e18 scaled decimal string) and the
// annualized drift together with their bounds.
type PriceSpec struct {
	Initial     string `yaml:"initial"`
	Min         string `yaml:"min"`
	Max         string `yaml:"max"`
	AnnualDrift int64  `yaml:"annual_drift"`
	MinDrift    int64  `yaml:"min_drift"`
	MaxDrift    int64  `yaml:"max_drift"`
}

// Roles lists the addresses holding each pair role.
type Roles struct {
	Admins     []string `yaml:"admins"`
	Pausers    []string `yaml:"pausers"`
	Oracles    []string `yaml:"oracles"`
	Treasurers []string `yaml:"treasurers"`
	Swappers   []string `yaml:"swappers"`
}

// Allocation credits a token balance at genesis. Crediting the pair address
// seeds liquidity.
type Allocation struct {
	Token  string `yaml:"token"`
	Owner  string `yaml:"owner"`
	Amount string `yaml:"amount"`
}

// Limits bounds how often and how much a single caller may trade through the
// daemon.
type Limits struct {
	RequestsPerMinute float64  `yaml:"requests_per_minute"`
	Burst             int      `yaml:"burst"`
	QuotaRequests     uint32   `yaml:"quota_requests"`
	// QuotaVolume caps the raw units of each input token spent per window.
	QuotaVolume       string   `yaml:"quota_volume"`
	QuotaWindow       Duration `yaml:"quota_window"`
}

// LoadGenesis reads and validates a pair genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis: %w", err)
	}
	defer file.Close()

	g := &Genesis{}
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	g.applyDefaults()
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Genesis) applyDefaults() {
	if g.Limits.RequestsPerMinute <= 0 {
		g.Limits.RequestsPerMinute = 60
	}
	if g.Limits.Burst <= 0 {
		g.Limits.Burst = 10
	}
	if g.Limits.QuotaWindow.Duration == 0 {
		g.Limits.QuotaWindow.Duration = time.Hour
	}
}

// Validate checks the parts of the genesis that the engine does not check
// itself: address and amount syntax, and quota shape.
func (g *Genesis) Validate() error {
	if _, err := g.PairAddress(); err != nil {
		return err
	}
	if _, err := g.Params(); err != nil {
		return err
	}
	if _, err := g.RoleGrants(); err != nil {
		return err
	}
	for i, alloc := range g.Balances {
		if _, _, _, err := alloc.parse(); err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
	}
	if _, err := g.Limits.Quota(); err != nil {
		return err
	}
	return nil
}

// PairAddress is the address the pair records and balances live under.
func (g *Genesis) PairAddress() (common.Address, error) {
	return parseAddress("pair", g.Pair)
}

// Params converts the genesis into engine initialisation parameters.
func (g *Genesis) Params() (pair.InitParams, error) {
	var (
		p   pair.InitParams
		err error
	)
	if p.Token0, err = parseAddress("token0.address", g.Token0.Address); err != nil {
		return p, err
	}
	if p.Token1, err = parseAddress("token1.address", g.Token1.Address); err != nil {
		return p, err
	}
	if p.TokenReceiver, err = parseAddress("receivers.tokens", g.Receivers.Tokens); err != nil {
		return p, err
	}
	if p.FeeReceiver, err = parseAddress("receivers.fees", g.Receivers.Fees); err != nil {
		return p, err
	}
	if p.Price, err = parseAmount("price.initial", g.Price.Initial); err != nil {
		return p, err
	}
	if p.MinBasePrice, err = parseAmount("price.min", g.Price.Min); err != nil {
		return p, err
	}
	if p.MaxBasePrice, err = parseAmount("price.max", g.Price.Max); err != nil {
		return p, err
	}
	p.Decimals0 = g.Token0.Decimals
	p.Decimals1 = g.Token1.Decimals
	p.PurchaseFee0 = g.Token0.PurchaseFee
	p.PurchaseFee1 = g.Token1.PurchaseFee
	p.MinPurchaseFee0 = g.Token0.MinFee
	p.MaxPurchaseFee0 = g.Token0.MaxFee
	p.MinPurchaseFee1 = g.Token1.MinFee
	p.MaxPurchaseFee1 = g.Token1.MaxFee
	p.AnnualDrift = g.Price.AnnualDrift
	p.MinDriftRate = g.Price.MinDrift
	p.MaxDriftRate = g.Price.MaxDrift
	p.Paused = g.Paused
	return p, nil
}

// RoleGrants flattens the role lists into role name to addresses.
func (g *Genesis) RoleGrants() (map[string][]common.Address, error) {
	lists := map[string][]string{
		pair.RoleAdmin:     g.Roles.Admins,
		pair.RolePauser:    g.Roles.Pausers,
		pair.RoleOracle:    g.Roles.Oracles,
		pair.RoleTreasurer: g.Roles.Treasurers,
		pair.RoleSwapper:   g.Roles.Swappers,
	}
	grants := make(map[string][]common.Address, len(lists))
	for role, raw := range lists {
		for _, entry := range raw {
			addr, err := parseAddress(role, entry)
			if err != nil {
				return nil, err
			}
			grants[role] = append(grants[role], addr)
		}
	}
	return grants, nil
}

// Allocations returns the parsed genesis balances.
func (g *Genesis) Allocations() ([]ParsedAllocation, error) {
	out := make([]ParsedAllocation, 0, len(g.Balances))
	for i, alloc := range g.Balances {
		token, owner, amount, err := alloc.parse()
		if err != nil {
			return nil, fmt.Errorf("balances[%d]: %w", i, err)
		}
		out = append(out, ParsedAllocation{Token: token, Owner: owner, Amount: amount})
	}
	return out, nil
}

// ParsedAllocation is an Allocation with typed fields.
type ParsedAllocation struct {
	Token  common.Address
	Owner  common.Address
	Amount *uint256.Int
}

func (a Allocation) parse() (common.Address, common.Address, *uint256.Int, error) {
	token, err := parseAddress("token", a.Token)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	owner, err := parseAddress("owner", a.Owner)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	amount, err := parseAmount("amount", a.Amount)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	return token, owner, amount, nil
}

// Quota converts the limits into the per-caller window quota. A zero
// QuotaVolume leaves volume unbounded.
func (l Limits) Quota() (nativecommon.Quota, error) {
	q := nativecommon.Quota{MaxRequestsPerWindow: l.QuotaRequests}
	if l.QuotaWindow.Duration < time.Second {
		return q, fmt.Errorf("limits.quota_window must be at least one second")
	}
	q.WindowSeconds = uint32(l.QuotaWindow.Duration / time.Second)
	if strings.TrimSpace(l.QuotaVolume) != "" {
		volume, err := parseAmount("limits.quota_volume", l.QuotaVolume)
		if err != nil {
			return q, err
		}
		q.MaxVolumePerWindow = volume
	}
	return q, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid amount %q: %w", field, raw, err)
	}
	return v, nil
}
