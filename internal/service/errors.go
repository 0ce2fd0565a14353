package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrMalformedNotification = errors.New("malformed notification")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrRemoteGateway         = errors.New("remote gateway error")
	ErrStoreUnavailable      = errors.New("order store unavailable")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderIDTaken          = errors.New("order id already used by another gateway")
	ErrSessionExpired        = errors.New("gateway session expired")
	ErrNotConfigured         = errors.New("gateway not configured")
)

// ValidationError lists the request fields that were missing or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func requireFields(fields map[string]string, order ...string) error {
	var missing []string
	for _, name := range order {
		if strings.TrimSpace(fields[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrMalformedNotification):
		return "malformed_notification"

	case errors.Is(err, ErrValidation):
		return "validation"

	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"

	case errors.Is(err, ErrOrderIDTaken):
		return "order_conflict"

	case errors.Is(err, ErrOrderNotFound):
		return "not_found"

	case errors.Is(err, ErrRemoteGateway), errors.Is(err, ErrSessionExpired):
		return "remote_gateway"

	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrMalformedNotification),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidSignature):
		return http.StatusBadRequest

	case errors.Is(err, ErrOrderIDTaken):
		return http.StatusConflict

	case errors.Is(err, ErrOrderNotFound):
		return http.StatusNotFound

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}
