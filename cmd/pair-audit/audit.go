package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"oraclepair/native/pair"
)

type balanceReader interface {
	BalanceOf(token, owner common.Address) (*uint256.Int, error)
}

type tokenReport struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
	Reserve string `json:"reserve"`
	Fees    string `json:"fees"`
	// Surplus is balance not yet absorbed by a sync.
	Surplus string `json:"surplus"`
}

type auditReport struct {
	Pair       string        `json:"pair"`
	Paused     bool          `json:"paused"`
	Price      string        `json:"price,omitempty"`
	BasePrice  string        `json:"basePrice"`
	Tokens     []tokenReport `json:"tokens"`
	Warnings   []string      `json:"warnings,omitempty"`
	Violations []string      `json:"violations,omitempty"`
}

// OK reports whether every accounting invariant holds.
func (r *auditReport) OK() bool {
	return len(r.Violations) == 0
}

var counterLimit = new(uint256.Int).Lsh(uint256.NewInt(1), pair.ReserveBits)

func audit(engine *pair.Engine, balances balanceReader) (*auditReport, error) {
	cfg, err := engine.Config()
	if err != nil {
		return nil, fmt.Errorf("load pair config: %w", err)
	}
	st, err := engine.State()
	if err != nil {
		return nil, fmt.Errorf("load pair state: %w", err)
	}
	report := &auditReport{
		Pair:      engine.Address().Hex(),
		Paused:    st.Paused,
		BasePrice: st.BasePrice.Dec(),
	}

	for _, token := range []common.Address{st.Token0, st.Token1} {
		balance, err := balances.BalanceOf(token, engine.Address())
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", token.Hex(), err)
		}
		reserve, fees := st.Reserve(token), st.Fees(token)
		entry := tokenReport{
			Token:   token.Hex(),
			Balance: balance.Dec(),
			Reserve: reserve.Dec(),
			Fees:    fees.Dec(),
			Surplus: "0",
		}
		owed, overflow := new(uint256.Int).AddOverflow(reserve, fees)
		switch {
		case overflow || balance.Lt(owed):
			report.Violations = append(report.Violations,
				fmt.Sprintf("%s: balance %s below reserve %s plus fees %s", token.Hex(), balance.Dec(), reserve.Dec(), fees.Dec()))
		default:
			entry.Surplus = new(uint256.Int).Sub(balance, owed).Dec()
		}
		if !reserve.Lt(counterLimit) {
			report.Violations = append(report.Violations, fmt.Sprintf("%s: reserve exceeds %d bits", token.Hex(), pair.ReserveBits))
		}
		if !fees.Lt(counterLimit) {
			report.Violations = append(report.Violations, fmt.Sprintf("%s: fees exceed %d bits", token.Hex(), pair.FeeAccumulatorBits))
		}
		report.Tokens = append(report.Tokens, entry)
	}

	price, err := engine.CurrentPrice()
	if err != nil {
		report.Violations = append(report.Violations, fmt.Sprintf("price unavailable: %v", err))
	} else {
		report.Price = price.Dec()
	}
	if st.PurchaseFee0 < cfg.MinPurchaseFee0 || st.PurchaseFee0 > cfg.MaxPurchaseFee0 {
		report.Warnings = append(report.Warnings, "purchase fee0 outside configured bounds")
	}
	if st.PurchaseFee1 < cfg.MinPurchaseFee1 || st.PurchaseFee1 > cfg.MaxPurchaseFee1 {
		report.Warnings = append(report.Warnings, "purchase fee1 outside configured bounds")
	}
	return report, nil
}

func writeTable(w io.Writer, report *auditReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "pair\t%s\n", report.Pair)
	fmt.Fprintf(tw, "paused\t%t\n", report.Paused)
	fmt.Fprintf(tw, "price\t%s\n", report.Price)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "TOKEN\tBALANCE\tRESERVE\tFEES\tSURPLUS")
	for _, t := range report.Tokens {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Token, t.Balance, t.Reserve, t.Fees, t.Surplus)
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(tw, "WARN\t%s\n", warning)
	}
	for _, violation := range report.Violations {
		fmt.Fprintf(tw, "FAIL\t%s\n", violation)
	}
	return tw.Flush()
}
