package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"oraclepair/config"
	nativecommon "oraclepair/native/common"
	"oraclepair/native/pair"
	"oraclepair/services/paird/node"
	"oraclepair/services/paird/storage"
	kv "oraclepair/storage"
)

const testSecret = "paird-test-secret"

var (
	pairAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	token0   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	token1   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	swapper  = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000d3")
)

func testGenesis() *config.Genesis {
	return &config.Genesis{
		Pair:      pairAddr.Hex(),
		Token0:    config.Token{Address: token0.Hex(), Decimals: 18, PurchaseFee: 1_000_000_000_000_000, MaxFee: 100_000_000_000_000_000},
		Token1:    config.Token{Address: token1.Hex(), Decimals: 18, PurchaseFee: 1_000_000_000_000_000, MaxFee: 100_000_000_000_000_000},
		Receivers: config.Receivers{Tokens: admin.Hex(), Fees: admin.Hex()},
		Price: config.PriceSpec{
			Initial:  "1000000000000000000",
			Min:      "1",
			Max:      "1000000000000000000000000",
			MinDrift: -1_000_000_000_000_000_000,
			MaxDrift: 1_000_000_000_000_000_000,
		},
		Roles: config.Roles{
			Admins:     []string{admin.Hex()},
			Pausers:    []string{admin.Hex()},
			Oracles:    []string{admin.Hex()},
			Treasurers: []string{admin.Hex()},
			Swappers:   []string{swapper.Hex()},
		},
		Balances: []config.Allocation{
			{Token: token0.Hex(), Owner: pairAddr.Hex(), Amount: "1000000"},
			{Token: token1.Hex(), Owner: pairAddr.Hex(), Amount: "2000000"},
			{Token: token0.Hex(), Owner: swapper.Hex(), Amount: "50000"},
			{Token: token0.Hex(), Owner: stranger.Hex(), Amount: "50000"},
		},
	}
}

var unlimited = LimitConfig{RequestsPerMinute: 60_000, Burst: 1_000}

type harness struct {
	t       *testing.T
	handler http.Handler
	node    *node.Node
}

func newHarness(t *testing.T, limits LimitConfig) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n, err := node.New(kv.NewMemDB(), testGenesis(), logger)
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	history, err := storage.New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	recorder := storage.NewRecorder(history, logger)
	n.Engine.SetEmitter(recorder)

	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "paird"})
	require.NoError(t, err)
	srv, err := New(Config{Limits: limits}, n.Engine, history, recorder, auth, logger)
	require.NoError(t, err)
	return &harness{t: t, handler: srv.Handler(), node: n}
}

func (h *harness) do(method, path string, as *common.Address, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if as != nil {
		token, err := IssueToken(testSecret, *as, "paird", "", time.Hour)
		require.NoError(h.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func deadline() uint64 {
	return uint64(time.Now().Add(time.Hour).Unix())
}

func path0To1() []string {
	return []string{token0.Hex(), token1.Hex()}
}

func TestHealthAndPair(t *testing.T) {
	h := newHarness(t, unlimited)

	rec := h.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/v1/pair", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[pairView](t, rec)
	require.Equal(t, pairAddr.Hex(), view.Address)
	require.Equal(t, "1000000", view.Reserve0)
	require.Equal(t, "2000000", view.Reserve1)
	require.Equal(t, "1000000000000000", view.PurchaseFee0)
	require.Equal(t, "1000000000000000000", view.Price)
	require.False(t, view.Paused)
}

func TestPriceEndpoint(t *testing.T) {
	h := newHarness(t, unlimited)

	rec := h.do(http.MethodGet, "/v1/price", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "1000000000000000000", body["price"])

	rec = h.do(http.MethodGet, "/v1/price?at=abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// A timestamp before the last update is a clock fault, not a bad request.
	rec = h.do(http.MethodGet, "/v1/price?at=1", nil, nil)
	require.NotEqual(t, http.StatusOK, rec.Code)
}

func TestQuoteMatchesSwap(t *testing.T) {
	h := newHarness(t, unlimited)

	rec := h.do(http.MethodPost, "/v1/quote/exact-in", nil, quoteRequest{Amount: "1000", Path: path0To1()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decodeBody[quoteView](t, rec)
	require.Equal(t, "1000", quote.AmountIn)
	require.Equal(t, token1.Hex(), quote.TokenOut)

	rec = h.do(http.MethodPost, "/v1/swap/exact-in", &swapper, swapExactInRequest{
		AmountIn:     "1000",
		AmountOutMin: quote.AmountOut,
		Path:         path0To1(),
		To:           swapper.Hex(),
		Deadline:     deadline(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[swapResponse](t, rec)
	require.Equal(t, "1000", resp.AmountIn)
	require.Equal(t, quote.AmountOut, resp.AmountOut)
	require.NotEmpty(t, resp.ReceiptID)

	bal, err := h.node.State.BalanceOf(token1, swapper)
	require.NoError(t, err)
	require.Equal(t, quote.AmountOut, bal.Dec())

	rec = h.do(http.MethodGet, "/v1/swaps/"+resp.ReceiptID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored := decodeBody[swapView](t, rec)
	require.Equal(t, "1000", stored.Amount0In)
	require.Equal(t, quote.AmountOut, stored.Amount1Out)

	rec = h.do(http.MethodGet, "/v1/swaps?account="+swapper.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Swaps []swapView `json:"swaps"`
	}](t, rec)
	require.Len(t, list.Swaps, 1)
	require.Equal(t, resp.ReceiptID, list.Swaps[0].ID)
}

func TestSwapExactOut(t *testing.T) {
	h := newHarness(t, unlimited)

	rec := h.do(http.MethodPost, "/v1/quote/exact-out", nil, quoteRequest{Amount: "500", Path: path0To1()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decodeBody[quoteView](t, rec)

	rec = h.do(http.MethodPost, "/v1/swap/exact-out", &swapper, swapExactOutRequest{
		AmountOut:   "500",
		AmountInMax: quote.AmountIn,
		Path:        path0To1(),
		To:          swapper.Hex(),
		Deadline:    deadline(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[swapResponse](t, rec)
	require.Equal(t, quote.AmountIn, resp.AmountIn)
	require.Equal(t, "500", resp.AmountOut)
}

func TestSwapErrors(t *testing.T) {
	h := newHarness(t, unlimited)

	cases := map[string]struct {
		as     *common.Address
		body   swapExactInRequest
		status int
		kind   string
	}{
		"not a swapper": {
			as:     &stranger,
			body:   swapExactInRequest{AmountIn: "1000", AmountOutMin: "0", Path: path0To1(), To: stranger.Hex(), Deadline: deadline()},
			status: http.StatusForbidden,
			kind:   "authorization",
		},
		"expired": {
			as:     &swapper,
			body:   swapExactInRequest{AmountIn: "1000", AmountOutMin: "0", Path: path0To1(), To: swapper.Hex(), Deadline: 1},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		"slippage": {
			as:     &swapper,
			body:   swapExactInRequest{AmountIn: "1000", AmountOutMin: "1000000", Path: path0To1(), To: swapper.Hex(), Deadline: deadline()},
			status: http.StatusUnprocessableEntity,
			kind:   "economic",
		},
		"bad path": {
			as:     &swapper,
			body:   swapExactInRequest{AmountIn: "1000", AmountOutMin: "0", Path: []string{token0.Hex(), token0.Hex()}, To: swapper.Hex(), Deadline: deadline()},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		"bad amount": {
			as:     &swapper,
			body:   swapExactInRequest{AmountIn: "-5", AmountOutMin: "0", Path: path0To1(), To: swapper.Hex(), Deadline: deadline()},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/v1/swap/exact-in", tc.as, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			body := decodeBody[map[string]string](t, rec)
			require.Equal(t, tc.kind, body["kind"])
		})
	}

	// Failed swaps roll back the pulled input.
	for _, who := range []common.Address{swapper, stranger} {
		bal, err := h.node.State.BalanceOf(token0, who)
		require.NoError(t, err)
		require.Equal(t, uint64(50000), bal.Uint64())
	}
}

func TestSwapRequiresToken(t *testing.T) {
	h := newHarness(t, unlimited)
	rec := h.do(http.MethodPost, "/v1/swap/exact-in", nil, swapExactInRequest{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPauseBlocksSwaps(t *testing.T) {
	h := newHarness(t, unlimited)

	rec := h.do(http.MethodPost, "/v1/admin/pause", &swapper, pauseRequest{Paused: true})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/v1/admin/pause", &admin, pauseRequest{Paused: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decodeBody[pairView](t, rec).Paused)

	rec = h.do(http.MethodPost, "/v1/swap/exact-in", &swapper, swapExactInRequest{
		AmountIn: "1000", AmountOutMin: "0", Path: path0To1(), To: swapper.Hex(), Deadline: deadline(),
	})
	require.Equal(t, http.StatusLocked, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/admin/pause", &admin, pauseRequest{Paused: false})
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decodeBody[pairView](t, rec).Paused)
}

func TestAdminSetters(t *testing.T) {
	h := newHarness(t, unlimited)

	rec := h.do(http.MethodPost, "/v1/admin/fees", &admin, feesRequest{Fee0: "2000000000000000", Fee1: "3000000000000000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeBody[pairView](t, rec)
	require.Equal(t, "2000000000000000", view.PurchaseFee0)
	require.Equal(t, "3000000000000000", view.PurchaseFee1)

	rec = h.do(http.MethodPost, "/v1/admin/fees", &admin, feesRequest{Fee0: "900000000000000000", Fee1: "0"})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/admin/fee-bounds", &admin, feeBoundsRequest{Min0: "0", Max0: "5000000000000000", Min1: "0", Max1: "5000000000000000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "5000000000000000", decodeBody[pairView](t, rec).MaxPurchaseFee0)

	rec = h.do(http.MethodPost, "/v1/admin/price", &admin, priceRequest{Price: "2000000000000000000", AnnualDrift: "0"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "2000000000000000000", decodeBody[pairView](t, rec).Price)

	rec = h.do(http.MethodPost, "/v1/admin/price-bounds", &admin, priceBoundsRequest{MinPrice: "1", MaxPrice: "10000000000000000000", MinDrift: "-1", MaxDrift: "1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "10000000000000000000", decodeBody[pairView](t, rec).MaxBasePrice)

	rec = h.do(http.MethodPost, "/v1/admin/receivers", &admin, receiversRequest{TokenReceiver: stranger.Hex(), FeeReceiver: stranger.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, stranger.Hex(), decodeBody[pairView](t, rec).FeeReceiver)

	rec = h.do(http.MethodPost, "/v1/admin/swappers", &admin, swapperRequest{Account: stranger.Hex(), Allowed: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, h.node.State.HasRole(pair.RoleSwapper, stranger.Bytes()))

	rec = h.do(http.MethodPost, "/v1/admin/price", &admin, priceRequest{Price: "abc", AnnualDrift: "0"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithdrawals(t *testing.T) {
	h := newHarness(t, unlimited)

	rec := h.do(http.MethodPost, "/v1/swap/exact-in", &swapper, swapExactInRequest{
		AmountIn: "10000", AmountOutMin: "0", Path: path0To1(), To: swapper.Hex(), Deadline: deadline(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/v1/pair", nil, nil)
	view := decodeBody[pairView](t, rec)
	fees, err := uint256.FromDecimal(view.Fees1)
	require.NoError(t, err)
	require.False(t, fees.IsZero())

	rec = h.do(http.MethodPost, "/v1/admin/withdraw-fees", &admin, withdrawRequest{Token: token1.Hex(), Amount: view.Fees1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "0", decodeBody[pairView](t, rec).Fees1)
	bal, err := h.node.State.BalanceOf(token1, admin)
	require.NoError(t, err)
	require.Equal(t, view.Fees1, bal.Dec())

	rec = h.do(http.MethodPost, "/v1/admin/withdraw-fees", &admin, withdrawRequest{Token: token1.Hex(), Amount: "1"})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/admin/withdraw-tokens", &admin, withdrawRequest{Token: token0.Hex(), Amount: "500"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/admin/withdraw-tokens", &swapper, withdrawRequest{Token: token0.Hex(), Amount: "500"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSyncAbsorbsDonation(t *testing.T) {
	h := newHarness(t, unlimited)
	require.NoError(t, h.node.State.Mint(token1, pairAddr, uint256.NewInt(77)))

	rec := h.do(http.MethodPost, "/v1/sync", &stranger, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "2000077", decodeBody[pairView](t, rec).Reserve1)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, LimitConfig{RequestsPerMinute: 1, Burst: 1})

	rec := h.do(http.MethodPost, "/v1/sync", &stranger, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodPost, "/v1/sync", &stranger, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Buckets are per caller.
	rec = h.do(http.MethodPost, "/v1/sync", &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestQuotaLimitsVolume(t *testing.T) {
	h := newHarness(t, LimitConfig{
		RequestsPerMinute: 600,
		Burst:             10,
		Quota:             nativecommon.Quota{MaxRequestsPerWindow: 10, MaxVolumePerWindow: uint256.NewInt(1500), WindowSeconds: 3600},
	})
	swap := func(amount string) *httptest.ResponseRecorder {
		return h.do(http.MethodPost, "/v1/swap/exact-in", &swapper, swapExactInRequest{
			AmountIn: amount, AmountOutMin: "0", Path: path0To1(), To: swapper.Hex(), Deadline: deadline(),
		})
	}
	require.Equal(t, http.StatusOK, swap("1000").Code)
	rec := swap("1000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())
	require.Equal(t, "quota", decodeBody[map[string]string](t, rec)["kind"])
	require.Equal(t, http.StatusOK, swap("500").Code)
	require.Equal(t, http.StatusTooManyRequests, swap("1").Code)

	// token1 volume is capped separately, in token1 units.
	rec = h.do(http.MethodPost, "/v1/swap/exact-in", &swapper, swapExactInRequest{
		AmountIn: "1000", AmountOutMin: "0", Path: []string{token1.Hex(), token0.Hex()}, To: swapper.Hex(), Deadline: deadline(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestGetSwapNotFound(t *testing.T) {
	h := newHarness(t, unlimited)
	rec := h.do(http.MethodGet, "/v1/swaps/"+uuid.NewString(), nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(http.MethodGet, "/v1/swaps/not-a-uuid", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
