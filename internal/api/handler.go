// Package api implements the HTTP API Surface (spec.md §4.5): transport,
// authentication, validation, and error-to-status mapping only — no domain
// logic lives here, all of it is delegated to internal/lifecycle.Manager.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sandboxforge/orchestrator/internal/lifecycle"
	"github.com/sandboxforge/orchestrator/internal/metrics"
	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// requestUserHeader carries the caller-asserted identity used for ownership
// checks. The API key (checked by authMiddleware) authenticates the calling
// service; this header names which end user it is acting on behalf of, an
// implementer's choice.
const requestUserHeader = "X-User-Id"

// Version is reported on the health endpoint.
const Version = "1.0.0"

// Handler wires the Sandbox Lifecycle Manager to echo's routing.
type Handler struct {
	manager *lifecycle.Manager
	log     zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(manager *lifecycle.Manager, logger zerolog.Logger) *Handler {
	return &Handler{manager: manager, log: logger}
}

// RegisterRoutes mounts every endpoint in §6.1 onto e, with request logging
// applied to every route and auth applied to everything but the health probe.
func (h *Handler) RegisterRoutes(e *echo.Echo, apiKey, apiKeyHeaderName string) {
	e.Use(requestLogMiddleware(h.log))
	e.GET("/health", h.health)

	group := e.Group("")
	group.Use(authMiddleware(apiKey, apiKeyHeaderName, h.log))

	group.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	group.POST("/sandboxes", h.createSandbox)
	group.GET("/sandboxes", h.listSandboxes)
	group.GET("/sandboxes/:id", h.getSandbox)
	group.POST("/sandboxes/:id/exec", h.execSandbox)
	group.POST("/sandboxes/:id/heartbeat", h.heartbeat)
	group.POST("/sandboxes/:id/complete", h.complete)
	group.POST("/sandboxes/:id/error", h.reportError)
	group.DELETE("/sandboxes/:id", h.destroySandbox)
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: Version})
}

func (h *Handler) createSandbox(c echo.Context) error {
	var req CreateSandboxRequest
	if err := decodeStrict(c.Request(), &req); err != nil {
		return writeError(c, sandbox.Wrap(sandbox.KindValidation, err.Error(), nil))
	}
	if errs := validateStruct(req); len(errs) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, validationResponse(errs))
	}

	record, err := h.manager.CreateSandbox(c.Request().Context(), req.UserID, lifecycle.CreateOptions{
		TTLSeconds: req.TTLSeconds,
		Config:     req.Config,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, record)
}

func (h *Handler) listSandboxes(c echo.Context) error {
	userID := requestUserFrom(c)
	records, err := h.manager.ListSandboxes(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) getSandbox(c echo.Context) error {
	record, err := h.manager.GetSandbox(c.Request().Context(), c.Param("id"), requestUserFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) execSandbox(c echo.Context) error {
	var req ExecRequest
	if err := decodeStrict(c.Request(), &req); err != nil {
		return writeError(c, sandbox.Wrap(sandbox.KindValidation, err.Error(), nil))
	}
	if errs := validateStruct(req); len(errs) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, validationResponse(errs))
	}

	var cwdOverride *string
	if req.CWD != "" {
		cwdOverride = &req.CWD
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second

	result, err := h.manager.ExecInSandbox(c.Request().Context(), c.Param("id"), requestUserFrom(c), req.Command, cwdOverride, timeout)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ExecResponse{
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		CWD:      result.NewCWD,
	})
}

func (h *Handler) heartbeat(c echo.Context) error {
	if err := h.manager.Heartbeat(c.Request().Context(), c.Param("id"), requestUserFrom(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

func (h *Handler) complete(c echo.Context) error {
	var req CompleteRequest
	if err := decodeStrict(c.Request(), &req); err != nil {
		return writeError(c, sandbox.Wrap(sandbox.KindValidation, err.Error(), nil))
	}
	if err := h.manager.MarkComplete(c.Request().Context(), c.Param("id"), requestUserFrom(c), req.Result); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

func (h *Handler) reportError(c echo.Context) error {
	var req ErrorReportRequest
	if err := decodeStrict(c.Request(), &req); err != nil {
		return writeError(c, sandbox.Wrap(sandbox.KindValidation, err.Error(), nil))
	}
	if errs := validateStruct(req); len(errs) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, validationResponse(errs))
	}

	payload := req.Message
	if req.Details != "" {
		payload = req.Message + ": " + req.Details
	}
	if err := h.manager.MarkError(c.Request().Context(), c.Param("id"), requestUserFrom(c), payload); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

func (h *Handler) destroySandbox(c echo.Context) error {
	graceful, _ := strconv.ParseBool(c.QueryParam("graceful"))
	record, err := h.manager.DestroySandbox(c.Request().Context(), c.Param("id"), requestUserFrom(c), graceful, sandbox.StopReasonUserRequested)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

func requestUserFrom(c echo.Context) string {
	return c.Request().Header.Get(requestUserHeader)
}

func validationResponse(errs []ValidationError) ErrorResponse {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Field+": "+e.Message)
	}
	msg := "validation failed"
	if len(messages) > 0 {
		msg = messages[0]
	}
	return ErrorResponse{Error: ErrorBody{Kind: sandbox.KindValidation, Message: msg}}
}
