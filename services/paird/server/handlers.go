package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"oraclepair/native/pair"
	"oraclepair/observability"
	"oraclepair/services/paird/storage"
)

type pairView struct {
	Address         string `json:"address"`
	Token0          string `json:"token0"`
	Token1          string `json:"token1"`
	Decimals0       uint8  `json:"decimals0"`
	Decimals1       uint8  `json:"decimals1"`
	Paused          bool   `json:"paused"`
	Reserve0        string `json:"reserve0"`
	Reserve1        string `json:"reserve1"`
	Fees0           string `json:"fees_accumulated0"`
	Fees1           string `json:"fees_accumulated1"`
	PurchaseFee0    string `json:"purchase_fee0"`
	PurchaseFee1    string `json:"purchase_fee1"`
	MinPurchaseFee0 string `json:"min_purchase_fee0"`
	MaxPurchaseFee0 string `json:"max_purchase_fee0"`
	MinPurchaseFee1 string `json:"min_purchase_fee1"`
	MaxPurchaseFee1 string `json:"max_purchase_fee1"`
	TokenReceiver   string `json:"token_receiver"`
	FeeReceiver     string `json:"fee_receiver"`
	BasePrice       string `json:"base_price"`
	DriftRate       string `json:"drift_per_second"`
	LastPriceUpdate uint64 `json:"last_price_update"`
	MinBasePrice    string `json:"min_base_price"`
	MaxBasePrice    string `json:"max_base_price"`
	MinDriftRate    string `json:"min_annual_drift"`
	MaxDriftRate    string `json:"max_annual_drift"`
	Price           string `json:"price"`
}

type quoteRequest struct {
	Amount string   `json:"amount"`
	Path   []string `json:"path"`
}

type quoteView struct {
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	Fee       string `json:"fee"`
	Price     string `json:"price"`
}

type swapExactInRequest struct {
	AmountIn     string   `json:"amount_in"`
	AmountOutMin string   `json:"amount_out_min"`
	Path         []string `json:"path"`
	To           string   `json:"to"`
	Deadline     uint64   `json:"deadline"`
}

type swapExactOutRequest struct {
	AmountOut   string   `json:"amount_out"`
	AmountInMax string   `json:"amount_in_max"`
	Path        []string `json:"path"`
	To          string   `json:"to"`
	Deadline    uint64   `json:"deadline"`
}

type swapResponse struct {
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	ReceiptID string `json:"receipt_id,omitempty"`
}

type swapView struct {
	ID         string `json:"id"`
	Pair       string `json:"pair"`
	Sender     string `json:"sender"`
	Recipient  string `json:"recipient"`
	Amount0In  string `json:"amount0_in"`
	Amount1In  string `json:"amount1_in"`
	Amount0Out string `json:"amount0_out"`
	Amount1Out string `json:"amount1_out"`
	Fee0       string `json:"fee0"`
	Fee1       string `json:"fee1"`
	Price      string `json:"price"`
	Flash      bool   `json:"flash"`
	Timestamp  int64  `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	err := s.call(func() error {
		_, err := s.engine.Config()
		return err
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	var view *pairView
	err := s.call(func() error {
		var err error
		view, err = s.pairView()
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// pairView must be called with the engine lock held.
func (s *Server) pairView() (*pairView, error) {
	cfg, err := s.engine.Config()
	if err != nil {
		return nil, err
	}
	st, err := s.engine.State()
	if err != nil {
		return nil, err
	}
	price, err := s.engine.CurrentPrice()
	if err != nil {
		return nil, err
	}
	return &pairView{
		Address:         s.engine.Address().Hex(),
		Token0:          st.Token0.Hex(),
		Token1:          st.Token1.Hex(),
		Decimals0:       cfg.Decimals0,
		Decimals1:       cfg.Decimals1,
		Paused:          st.Paused,
		Reserve0:        decimal(st.Reserve0),
		Reserve1:        decimal(st.Reserve1),
		Fees0:           decimal(st.FeesAccumulated0),
		Fees1:           decimal(st.FeesAccumulated1),
		PurchaseFee0:    strconv.FormatUint(st.PurchaseFee0, 10),
		PurchaseFee1:    strconv.FormatUint(st.PurchaseFee1, 10),
		MinPurchaseFee0: strconv.FormatUint(cfg.MinPurchaseFee0, 10),
		MaxPurchaseFee0: strconv.FormatUint(cfg.MaxPurchaseFee0, 10),
		MinPurchaseFee1: strconv.FormatUint(cfg.MinPurchaseFee1, 10),
		MaxPurchaseFee1: strconv.FormatUint(cfg.MaxPurchaseFee1, 10),
		TokenReceiver:   cfg.TokenReceiver.Hex(),
		FeeReceiver:     cfg.FeeReceiver.Hex(),
		BasePrice:       decimal(st.BasePrice),
		DriftRate:       strconv.FormatInt(st.DriftRate, 10),
		LastPriceUpdate: st.LastPriceUpdate,
		MinBasePrice:    decimal(cfg.MinBasePrice),
		MaxBasePrice:    decimal(cfg.MaxBasePrice),
		MinDriftRate:    strconv.FormatInt(cfg.MinDriftRate, 10),
		MaxDriftRate:    strconv.FormatInt(cfg.MaxDriftRate, 10),
		Price:           decimal(price),
	}, nil
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	at := strings.TrimSpace(r.URL.Query().Get("at"))
	var (
		price     *uint256.Int
		timestamp uint64
	)
	if at != "" {
		parsed, err := strconv.ParseUint(at, 10, 64)
		if err != nil {
			s.fail(w, r, badRequest("at: invalid timestamp %q", at))
			return
		}
		timestamp = parsed
	}
	err := s.call(func() error {
		var err error
		if at == "" {
			price, err = s.engine.CurrentPrice()
		} else {
			price, err = s.engine.PriceAtTime(timestamp)
		}
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body := map[string]any{"price": decimal(price)}
	if at != "" {
		body["at"] = timestamp
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleQuoteExactIn(w http.ResponseWriter, r *http.Request) {
	s.quote(w, r, s.engine.QuoteExactIn)
}

func (s *Server) handleQuoteExactOut(w http.ResponseWriter, r *http.Request) {
	s.quote(w, r, s.engine.QuoteExactOut)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request, fn func(*uint256.Int, []common.Address) (*pair.Quote, error)) {
	var req quoteRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	path, err := parsePath(req.Path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var q *pair.Quote
	err = s.call(func() error {
		var err error
		q, err = fn(amount, path)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteView{
		TokenIn:   q.TokenIn.Hex(),
		TokenOut:  q.TokenOut.Hex(),
		AmountIn:  decimal(q.AmountIn),
		AmountOut: decimal(q.AmountOut),
		Fee:       decimal(q.Fee),
		Price:     decimal(q.Price),
	})
}

func (s *Server) handleSwapExactIn(w http.ResponseWriter, r *http.Request) {
	var req swapExactInRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amountIn, err := parseAmount("amount_in", req.AmountIn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amountOutMin, err := parseAmount("amount_out_min", req.AmountOutMin)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	path, err := parsePath(req.Path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	from := caller(r)
	s.swap(w, r, from, inputToken(path), amountIn, func() ([2]*uint256.Int, error) {
		return s.engine.SwapExactTokensForTokens(from, amountIn, amountOutMin, path, to, req.Deadline)
	})
}

func (s *Server) handleSwapExactOut(w http.ResponseWriter, r *http.Request) {
	var req swapExactOutRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amountOut, err := parseAmount("amount_out", req.AmountOut)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amountInMax, err := parseAmount("amount_in_max", req.AmountInMax)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	path, err := parsePath(req.Path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	from := caller(r)
	s.swap(w, r, from, inputToken(path), amountInMax, func() ([2]*uint256.Int, error) {
		return s.engine.SwapTokensForExactTokens(from, amountOut, amountInMax, path, to, req.Deadline)
	})
}

// inputToken is path[0]; malformed paths are rejected by the engine.
func inputToken(path []common.Address) common.Address {
	if len(path) == 0 {
		return common.Address{}
	}
	return path[0]
}

// swap checks the caller's quota against the most the swap can spend of
// tokenIn, runs it and charges the input actually pulled.
func (s *Server) swap(w http.ResponseWriter, r *http.Request, from, tokenIn common.Address, maxIn *uint256.Int, fn func() ([2]*uint256.Int, error)) {
	var (
		amounts [2]*uint256.Int
		receipt *storage.SwapRecord
	)
	err := s.call(func() error {
		now := s.now()
		if err := s.limiter.CheckQuota(from, tokenIn, maxIn, now); err != nil {
			return err
		}
		if s.recorder != nil {
			s.recorder.TakeLast()
		}
		var err error
		if amounts, err = fn(); err != nil {
			return err
		}
		if s.recorder != nil {
			receipt = s.recorder.TakeLast()
		}
		if err := s.limiter.Charge(from, tokenIn, amounts[0], now); err != nil {
			s.logger.Warn("quota charge failed after swap", "error", err, "caller", from.Hex())
		}
		return nil
	})
	if err != nil {
		if isQuotaError(err) {
			observability.HTTP().RecordThrottle("quota")
		}
		s.fail(w, r, err)
		return
	}
	resp := swapResponse{AmountIn: decimal(amounts[0]), AmountOut: decimal(amounts[1])}
	if receipt != nil {
		resp.ReceiptID = receipt.ID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var view *pairView
	err := s.call(func() error {
		if _, err := s.engine.Sync(); err != nil {
			return err
		}
		var err error
		view, err = s.pairView()
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListSwaps(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.Filter{Pair: s.engine.Address().Hex()}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.fail(w, r, badRequest("limit: invalid value %q", raw))
			return
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(query.Get("account")); raw != "" {
		account, err := parseAddress("account", raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		filter.Account = account.Hex()
	}
	records, err := s.history.ListSwaps(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]swapView, 0, len(records))
	for i := range records {
		out = append(out, toSwapView(&records[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"swaps": out})
}

func (s *Server) handleGetSwap(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, badRequest("invalid receipt id"))
		return
	}
	rec, err := s.history.GetSwap(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, err.Error(), "")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSwapView(rec))
}

func toSwapView(rec *storage.SwapRecord) swapView {
	return swapView{
		ID:         rec.ID.String(),
		Pair:       rec.Pair,
		Sender:     rec.Sender,
		Recipient:  rec.Recipient,
		Amount0In:  rec.Amount0In,
		Amount1In:  rec.Amount1In,
		Amount0Out: rec.Amount0Out,
		Amount1Out: rec.Amount1Out,
		Fee0:       rec.Fee0,
		Fee1:       rec.Fee1,
		Price:      rec.Price,
		Flash:      rec.Flash,
		Timestamp:  rec.Timestamp,
	}
}
