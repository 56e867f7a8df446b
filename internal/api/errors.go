package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-docsync/internal/circuitbreaker"
	"github.com/ryanbastic/go-docsync/internal/partition"
	"github.com/ryanbastic/go-docsync/internal/record"
	"github.com/ryanbastic/go-docsync/internal/session"
	"github.com/ryanbastic/go-docsync/internal/storage"
	"github.com/ryanbastic/go-docsync/internal/table"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// apiError maps an engine error onto an HTTP status. Unexpected errors are
// logged and hidden behind a generic 500.
func apiError(logger *slog.Logger, op string, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, storage.ErrContainerNotFound),
		errors.Is(err, storage.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, session.ErrNoQuery),
		errors.Is(err, session.ErrNotPaging),
		errors.Is(err, session.ErrNoPage):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, storage.ErrUnsupportedQuery),
		errors.Is(err, storage.ErrInvalidToken),
		errors.Is(err, storage.ErrMissingID),
		errors.Is(err, partition.ErrUnresolvable),
		errors.Is(err, record.ErrInvalid),
		errors.Is(err, table.ErrOutOfRange),
		errors.Is(err, table.ErrInvalidView):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(err.Error())
	}
	logger.Error(op+" failed", "error", err)
	return huma.Error500InternalServerError(op + " failed")
}
