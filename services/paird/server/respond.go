package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/trace"

	"oraclepair/core/state"
	nativecommon "oraclepair/native/common"
	"oraclepair/native/pair"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message, kind string) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	body := map[string]string{"error": message}
	if kind != "" {
		body["kind"] = kind
	}
	if traceID := traceIDFromContext(r.Context()); traceID != "" {
		body["trace_id"] = traceID
	}
	writeJSON(w, status, body)
}

// fail maps err onto an HTTP status and logs it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := errorStatus(err)
	s.logger.Warn("request failed", "error", err, "path", r.URL.Path, "status", status)
	writeError(w, r, status, err.Error(), kind)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, pair.KindValidation.String()
	case errors.Is(err, state.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, pair.KindEconomic.String()
	case isQuotaError(err):
		return http.StatusTooManyRequests, "quota"
	}
	kind := pair.KindOf(err)
	switch kind {
	case pair.KindAuthorization:
		return http.StatusForbidden, kind.String()
	case pair.KindValidation, pair.KindBounds:
		return http.StatusBadRequest, kind.String()
	case pair.KindEconomic:
		return http.StatusUnprocessableEntity, kind.String()
	case pair.KindAccounting, pair.KindReentrancy, pair.KindState:
		return http.StatusConflict, kind.String()
	case pair.KindPaused:
		return http.StatusLocked, kind.String()
	case pair.KindArithmetic:
		return http.StatusInternalServerError, kind.String()
	}
	return http.StatusInternalServerError, "internal"
}

func isQuotaError(err error) bool {
	return errors.Is(err, nativecommon.ErrQuotaRequestsExceeded) ||
		errors.Is(err, nativecommon.ErrQuotaVolumeExceeded) ||
		errors.Is(err, nativecommon.ErrQuotaCounterOverflow)
}

func traceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

func decode(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return badRequest("invalid payload: %v", err)
	}
	return nil
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, badRequest("%s required", field)
	}
	v, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, badRequest("%s: invalid amount %q", field, raw)
	}
	return v, nil
}

func parseRate(field, raw string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, badRequest("%s: invalid rate %q", field, raw)
	}
	return v, nil
}

func parseSigned(field, raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, badRequest("%s: invalid integer %q", field, raw)
	}
	return v, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, badRequest("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parsePath(raw []string) ([]common.Address, error) {
	path := make([]common.Address, 0, len(raw))
	for i, entry := range raw {
		addr, err := parseAddress(fmt.Sprintf("path[%d]", i), entry)
		if err != nil {
			return nil, err
		}
		path = append(path, addr)
	}
	return path, nil
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func caller(r *http.Request) common.Address {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		return common.Address{}
	}
	return principal.Address
}
