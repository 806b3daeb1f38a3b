package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/yamops/yamkeeper/internal/domain"
)

// writeJSON marshals v and writes it with the given status code. A
// marshalling failure falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps an operation error onto the response. Infrastructure
// failures (upstream APIs, chain RPC, reverted transactions) are 5xx;
// every other error is a business answer and travels back as a 200 with
// an error payload, so clients can distinguish "the system broke" from
// "the question has no answer".
func writeFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	if domain.IsExternal(err) || errors.Is(err, domain.ErrTxFailed) {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, op+" failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
}

// renderFixed formats a fixed-point value as a plain decimal string for
// API clients.
func renderFixed(f domain.Fixed) string {
	return decimal.NewFromBigInt(f.Mantissa(), -int32(f.Scale())).String()
}

// parseAddress validates and parses a hex address path or body value.
func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// pathParam extracts a named path parameter (Go 1.22+ routing).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
