package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/STTM-NSU/account-bridge/internal/fetcher"
	"github.com/bytedance/sonic"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"success":false,"error":"internal server error","kind":"Internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// statusFor maps an error class to its http status.
func statusFor(err error) (int, string) {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest, "BadRequest"
	}
	kind := fetcher.Kind(err)
	switch kind {
	case "BadRequest":
		return http.StatusBadRequest, kind
	case "NotFound":
		return http.StatusNotFound, kind
	case "NotReady":
		return http.StatusServiceUnavailable, kind
	case "ProviderError":
		return http.StatusBadGateway, kind
	default:
		return http.StatusInternalServerError, "Internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

// parseIntParam reads an optional integer query parameter in [lo, hi].
func parseIntParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", errBadRequest, name, v)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s must be within [%d, %d], got %d", errBadRequest, name, lo, hi, n)
	}
	return n, nil
}
