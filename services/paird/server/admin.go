package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type feesRequest struct {
	Fee0 string `json:"fee0"`
	Fee1 string `json:"fee1"`
}

type feeBoundsRequest struct {
	Min0 string `json:"min0"`
	Max0 string `json:"max0"`
	Min1 string `json:"min1"`
	Max1 string `json:"max1"`
}

type priceRequest struct {
	Price       string `json:"price"`
	AnnualDrift string `json:"annual_drift"`
}

type priceBoundsRequest struct {
	MinPrice string `json:"min_price"`
	MaxPrice string `json:"max_price"`
	MinDrift string `json:"min_drift"`
	MaxDrift string `json:"max_drift"`
}

type receiversRequest struct {
	TokenReceiver string `json:"token_receiver"`
	FeeReceiver   string `json:"fee_receiver"`
}

type swapperRequest struct {
	Account string `json:"account"`
	Allowed bool   `json:"allowed"`
}

type withdrawRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (req withdrawRequest) parse() (common.Address, *uint256.Int, error) {
	token, err := parseAddress("token", req.Token)
	if err != nil {
		return common.Address{}, nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return token, amount, nil
}

// admin decodes the payload into req, applies the change as the
// authenticated caller and answers with the resulting pair view.
func (s *Server) admin(w http.ResponseWriter, r *http.Request, req any, apply func(common.Address) error) {
	if err := decode(r, req); err != nil {
		s.fail(w, r, err)
		return
	}
	from := caller(r)
	var view *pairView
	err := s.call(func() error {
		if err := apply(from); err != nil {
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
	s.logger.Info("pair setting changed", "path", r.URL.Path, "caller", from.Hex())
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	s.admin(w, r, &req, func(from common.Address) error {
		return s.engine.SetPaused(from, req.Paused)
	})
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	var req feesRequest
	s.admin(w, r, &req, func(from common.Address) error {
		fee0, err := parseRate("fee0", req.Fee0)
		if err != nil {
			return err
		}
		fee1, err := parseRate("fee1", req.Fee1)
		if err != nil {
			return err
		}
		return s.engine.SetPurchaseFees(from, fee0, fee1)
	})
}

func (s *Server) handleFeeBounds(w http.ResponseWriter, r *http.Request) {
	var req feeBoundsRequest
	s.admin(w, r, &req, func(from common.Address) error {
		var bounds [4]uint64
		for i, field := range []struct{ name, raw string }{
			{"min0", req.Min0}, {"max0", req.Max0}, {"min1", req.Min1}, {"max1", req.Max1},
		} {
			v, err := parseRate(field.name, field.raw)
			if err != nil {
				return err
			}
			bounds[i] = v
		}
		return s.engine.SetFeeBounds(from, bounds[0], bounds[1], bounds[2], bounds[3])
	})
}

func (s *Server) handleConfigurePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	s.admin(w, r, &req, func(from common.Address) error {
		price, err := parseAmount("price", req.Price)
		if err != nil {
			return err
		}
		drift, err := parseSigned("annual_drift", req.AnnualDrift)
		if err != nil {
			return err
		}
		return s.engine.ConfigureOraclePrice(from, price, drift)
	})
}

func (s *Server) handlePriceBounds(w http.ResponseWriter, r *http.Request) {
	var req priceBoundsRequest
	s.admin(w, r, &req, func(from common.Address) error {
		minPrice, err := parseAmount("min_price", req.MinPrice)
		if err != nil {
			return err
		}
		maxPrice, err := parseAmount("max_price", req.MaxPrice)
		if err != nil {
			return err
		}
		minDrift, err := parseSigned("min_drift", req.MinDrift)
		if err != nil {
			return err
		}
		maxDrift, err := parseSigned("max_drift", req.MaxDrift)
		if err != nil {
			return err
		}
		return s.engine.SetPriceBounds(from, minPrice, maxPrice, minDrift, maxDrift)
	})
}

func (s *Server) handleReceivers(w http.ResponseWriter, r *http.Request) {
	var req receiversRequest
	s.admin(w, r, &req, func(from common.Address) error {
		tokens, err := parseAddress("token_receiver", req.TokenReceiver)
		if err != nil {
			return err
		}
		fees, err := parseAddress("fee_receiver", req.FeeReceiver)
		if err != nil {
			return err
		}
		return s.engine.SetReceivers(from, tokens, fees)
	})
}

func (s *Server) handleSwappers(w http.ResponseWriter, r *http.Request) {
	var req swapperRequest
	s.admin(w, r, &req, func(from common.Address) error {
		account, err := parseAddress("account", req.Account)
		if err != nil {
			return err
		}
		return s.engine.SetSwapper(from, account, req.Allowed)
	})
}

func (s *Server) handleWithdrawTokens(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	s.admin(w, r, &req, func(from common.Address) error {
		token, amount, err := req.parse()
		if err != nil {
			return err
		}
		return s.engine.WithdrawTokens(from, token, amount)
	})
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	s.admin(w, r, &req, func(from common.Address) error {
		token, amount, err := req.parse()
		if err != nil {
			return err
		}
		return s.engine.WithdrawFees(from, token, amount)
	})
}
