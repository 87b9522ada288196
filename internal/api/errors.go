package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// statusForKind maps a contract-level error Kind to an HTTP status code
// (§4.5 / §7). Every code path outside this function must remain ignorant
// of HTTP.
func statusForKind(kind sandbox.Kind) int {
	switch kind {
	case sandbox.KindNotFound:
		return http.StatusNotFound
	case sandbox.KindConflict, sandbox.KindInvalidState:
		return http.StatusConflict
	case sandbox.KindValidation:
		return http.StatusUnprocessableEntity
	case sandbox.KindTimeout:
		return http.StatusGatewayTimeout
	case sandbox.KindEngineUnavailable, sandbox.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case sandbox.KindUnauthenticated:
		return http.StatusUnauthorized
	case sandbox.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func errUnauthenticated() error {
	return sandbox.New(sandbox.KindUnauthenticated, "missing api key")
}

func errForbidden() error {
	return sandbox.New(sandbox.KindForbidden, "invalid api key")
}

// writeError maps err onto the shared error envelope and an HTTP status.
// Internal errors get a correlation id and a full server-side log entry;
// nothing beyond {kind, message, correlation_id?} ever reaches the client.
func writeError(c echo.Context, err error) error {
	kind := sandbox.KindOf(err)
	status := statusForKind(kind)

	body := ErrorResponse{Error: ErrorBody{Kind: kind, Message: err.Error()}}
	if status == http.StatusInternalServerError {
		correlationID := uuid.NewString()
		body.Error.CorrelationID = correlationID
		body.Error.Message = "internal error"
		log.Error().Str("correlation_id", correlationID).Err(err).Msg("internal error")
	}
	return c.JSON(status, body)
}
