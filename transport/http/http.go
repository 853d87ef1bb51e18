// Package http implements the single external entry point the run engine
// exposes: POST /<host>/execute, per spec.md §6. It is a thin echo
// handler, grounded on the teacher pack's divinesense
// server/router/frontend/service.go idiom (echo.Context, response-header
// manipulation) — the teacher itself has no HTTP surface since it's a
// library, so the wiring here is enrichment from the rest of the pack
// rather than a direct port.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/agentforge/runengine/enginerr"
	"github.com/agentforge/runengine/host"
	"github.com/agentforge/runengine/run"
	"github.com/agentforge/runengine/telemetry"
)

// EngineVersion is reported on every response via X-Engine-Version.
const EngineVersion = "1.0.0"

// Runtime identifies this transport's execution substrate, reported via
// X-Run-Engine-Runtime. The spec treats the concrete transport as an
// external collaborator; this value just distinguishes this reference
// implementation from a Durable-Object-backed one.
const Runtime = "go-http"

// inputPayload mirrors the input object nested in an execute request body.
type inputPayload struct {
	AgentType  string `json:"agentType"`
	Prompt     string `json:"prompt"`
	SessionID  string `json:"sessionId"`
	ProviderID string `json:"providerId"`
	ModelID    string `json:"modelId"`
}

// messagePayload mirrors one entry of the request's messages array. The
// engine's Agent abstraction consumes only the synthesized prompt built by
// the Planner, so messages are accepted but neither logged nor otherwise
// used here.
type messagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// executeRequest mirrors the exact body shape of spec.md §6.
type executeRequest struct {
	RunID         string           `json:"runId"`
	SessionID     string           `json:"sessionId"`
	CorrelationID string           `json:"correlationId"`
	RequestOrigin string           `json:"requestOrigin"`
	Input         inputPayload     `json:"input"`
	Messages      []messagePayload `json:"messages"`
}

// Server exposes the RuntimeHost over HTTP.
type Server struct {
	Host   *host.Host
	Logger telemetry.Logger
	Echo   *echo.Echo
}

// New builds a Server and registers its routes on a fresh echo instance.
func New(h *host.Host, logger telemetry.Logger) *Server {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	e := echo.New()
	e.HideBanner = true
	s := &Server{Host: h, Logger: logger, Echo: e}
	e.POST("/:host/execute", s.handleExecute)
	return s
}

// handleExecute parses, validates, and runs one execute request, streaming
// the synthesized answer back as the response body.
func (s *Server) handleExecute(c echo.Context) error {
	ctx := c.Request().Context()

	var req executeRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return s.writeError(c, "", enginerr.Wrap(enginerr.KindParse, "malformed request body", err))
	}

	input, err := req.toRunInput()
	if err != nil {
		return s.writeError(c, req.RunID, err)
	}

	r, execErr := s.Host.Execute(ctx, req.RunID, input)
	if execErr != nil {
		return s.writeError(c, req.RunID, execErr)
	}

	s.setCommonHeaders(c, r.ID)
	c.Response().Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	if _, err := c.Response().Write([]byte(r.Output)); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// toRunInput validates the request body and projects it into run.Input.
// Validation failures are PolicyError/ValidationError per spec.md §7.
func (req executeRequest) toRunInput() (run.Input, error) {
	if strings.TrimSpace(req.RunID) == "" {
		return run.Input{}, enginerr.New(enginerr.KindValidation, "runId is required")
	}
	if strings.TrimSpace(req.Input.Prompt) == "" {
		return run.Input{}, enginerr.New(enginerr.KindValidation, "input.prompt is required")
	}
	agentType := run.AgentType(req.Input.AgentType)
	switch agentType {
	case run.AgentCoding, run.AgentReview, run.AgentCI:
	default:
		return run.Input{}, enginerr.New(enginerr.KindPolicy, "unsupported agentType "+req.Input.AgentType)
	}
	hasProvider := strings.TrimSpace(req.Input.ProviderID) != ""
	hasModel := strings.TrimSpace(req.Input.ModelID) != ""
	if hasProvider != hasModel {
		return run.Input{}, enginerr.New(enginerr.KindPolicy, "providerId and modelId must be supplied together or not at all")
	}

	sessionID := req.Input.SessionID
	if sessionID == "" {
		sessionID = req.SessionID
	}

	return run.Input{
		Prompt:     req.Input.Prompt,
		AgentType:  agentType,
		SessionID:  sessionID,
		ProviderID: req.Input.ProviderID,
		ModelID:    req.Input.ModelID,
	}, nil
}

// writeError maps err onto an HTTP status per enginerr.Error.HTTPStatus,
// defaulting to 500 for errors outside the taxonomy.
func (s *Server) writeError(c echo.Context, runID string, err error) error {
	status := http.StatusInternalServerError
	var ee *enginerr.Error
	if errors.As(err, &ee) {
		status = ee.HTTPStatus()
	}
	s.Logger.Error(c.Request().Context(), "execute failed", "runId", runID, "error", err)
	s.setCommonHeaders(c, runID)
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func (s *Server) setCommonHeaders(c echo.Context, runID string) {
	h := c.Response().Header()
	h.Set("X-Engine-Version", EngineVersion)
	h.Set("X-Run-Id", runID)
	h.Set("X-Run-Engine-Runtime", Runtime)
}

// ListenAndServe starts the echo server on addr, blocking until ctx is
// cancelled or the server fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Echo.Start(addr) }()
	select {
	case <-ctx.Done():
		return s.Echo.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
