package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"travelpay/internal/service"
)

const checkoutFailed = "payment could not be completed, please retry"

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto the error taxonomy. Client errors echo their message;
// everything else is logged and replaced with fallback.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := service.HTTPStatus(err)
	kind := service.Kind(err)

	msg := fallback
	switch {
	case errors.Is(err, service.ErrInvalidSignature):
		msg = "invalid signature"
	case status < http.StatusInternalServerError:
		msg = err.Error()
		slog.Info("request rejected", "event", "validation_failed", "path", r.URL.Path, "kind", kind, "error", err)
	default:
		slog.Error("request failed", "path", r.URL.Path, "kind", kind, "error", err)
	}

	writeJSON(w, status, errorResponse{Success: false, Error: msg, Kind: kind})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10))
	if err := dec.Decode(v); err != nil {
		return &service.ValidationError{Fields: []string{"body"}}
	}
	return nil
}
