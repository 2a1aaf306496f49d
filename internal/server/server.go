// Package server exposes the chat endpoint over HTTP and owns the mapping
// from the error taxonomy to response bodies. Every response, success or
// failure, carries the CORS header set.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/seongmin-ku/bedrockchat/internal/adapter"
	"github.com/seongmin-ku/bedrockchat/internal/agent"
	"github.com/seongmin-ku/bedrockchat/internal/config"
	"github.com/seongmin-ku/bedrockchat/internal/invoker"
	"github.com/seongmin-ku/bedrockchat/internal/logger"
)

const maxMessageLength = 10000

// Processor runs one validated request through the pipeline.
type Processor interface {
	Process(ctx context.Context, p agent.Params) (agent.Result, error)
}

// Server is the HTTP surface of the service.
type Server struct {
	echo    *echo.Echo
	agent   Processor
	bedrock config.BedrockConfig
}

// New creates the server and registers routes and middleware.
func New(a Processor, bedrock config.BedrockConfig) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, agent: a, bedrock: bedrock}

	e.Use(corsHeaders)
	e.Use(requestID)
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.errorHandler

	e.Any("/", s.handleChat)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// corsHeaders stamps every response with the fixed CORS header set and the
// JSON content type before any handler writes.
func corsHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set(echo.HeaderContentType, "application/json; charset=utf-8")
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		return next(c)
	}
}

// requestID assigns a correlation id to every request for logs and clients.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := uuid.NewString()
		c.Set("request_id", id)
		c.Response().Header().Set("X-Request-ID", id)
		return next(c)
	}
}

// errorHandler is the outermost boundary: panics recovered by the Recover
// middleware and any error a handler leaks end up here as a generic
// internal-error response, never a crash or a stack trace.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprintf("%v", he.Message)
	}
	// non-standard methods never reach handleChat; the router rejects them
	if code == http.StatusMethodNotAllowed {
		_ = c.JSON(code, errorResponse{
			Error:          "Method not allowed. Use POST method.",
			Kind:           "MethodNotAllowedError",
			Status:         "error",
			AllowedMethods: []string{"POST", "OPTIONS"},
		})
		return
	}
	logger.L.Error("unhandled error", "request_id", c.Get("request_id"), "error", err)
	_ = c.JSON(code, errorResponse{
		Error:  "An internal server error occurred: " + msg,
		Kind:   "InternalError",
		Status: "internal_error",
	})
}

type chatRequest struct {
	Message     string   `json:"message"`
	SessionID   string   `json:"session_id"`
	ModelID     string   `json:"model_id"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
}

type chatResponse struct {
	Response       string  `json:"response"`
	SessionID      *string `json:"session_id"`
	ModelUsed      string  `json:"model_used"`
	ProcessingTime float64 `json:"processing_time"`
	Region         string  `json:"region"`
	Status         string  `json:"status"`
}

type errorResponse struct {
	Error          string   `json:"error"`
	Kind           string   `json:"kind"`
	ErrorCode      string   `json:"error_code,omitempty"`
	Status         string   `json:"status"`
	RequiredFields []string `json:"required_fields,omitempty"`
	OptionalFields []string `json:"optional_fields,omitempty"`
	CurrentLength  int      `json:"current_length,omitempty"`
	MaxLength      int      `json:"max_length,omitempty"`
	AllowedMethods []string `json:"allowed_methods,omitempty"`
}

// handleChat is the single endpoint. Validation runs in order; the first
// failure wins and short-circuits to an error response.
func (s *Server) handleChat(c echo.Context) error {
	switch c.Request().Method {
	case http.MethodOptions:
		return c.JSON(http.StatusOK, map[string]string{"message": "CORS preflight successful"})
	case http.MethodPost:
		// fall through
	default:
		return c.JSON(http.StatusMethodNotAllowed, errorResponse{
			Error:          "Method not allowed. Use POST method.",
			Kind:           "MethodNotAllowedError",
			Status:         "error",
			AllowedMethods: []string{"POST", "OPTIONS"},
		})
	}

	var req chatRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:  "Request body is not valid JSON.",
			Kind:   "MalformedBodyError",
			Status: "error",
		})
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:          "A message is required.",
			Kind:           "MissingMessageError",
			Status:         "error",
			RequiredFields: []string{"message"},
			OptionalFields: []string{"session_id", "model_id", "max_tokens", "temperature"},
		})
	}

	if n := utf8.RuneCountInString(message); n > maxMessageLength {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:         fmt.Sprintf("Message is too long: %d characters (limit %d).", n, maxMessageLength),
			Kind:          "MessageTooLongError",
			Status:        "error",
			CurrentLength: n,
			MaxLength:     maxMessageLength,
		})
	}

	params := agent.Params{
		Message:     message,
		SessionID:   req.SessionID,
		ModelID:     s.bedrock.Model,
		MaxTokens:   s.bedrock.MaxTokens,
		Temperature: s.bedrock.Temperature,
	}
	if req.ModelID != "" {
		params.ModelID = req.ModelID
	}
	if req.MaxTokens != nil {
		params.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}

	logger.L.Info("chat request",
		"request_id", c.Get("request_id"),
		"session_id", req.SessionID,
		"model_id", params.ModelID,
		"message_length", utf8.RuneCountInString(message))

	result, err := s.agent.Process(c.Request().Context(), params)
	if err != nil {
		return s.backendError(c, err)
	}

	var sessionID *string
	if req.SessionID != "" {
		sessionID = &req.SessionID
	}
	return c.JSON(http.StatusOK, chatResponse{
		Response:       result.Reply,
		SessionID:      sessionID,
		ModelUsed:      params.ModelID,
		ProcessingTime: result.Elapsed,
		Region:         s.bedrock.Region,
		Status:         "success",
	})
}

// backendError maps the backend error taxonomy onto 500 responses. The
// access-denied and throttled kinds carry actionable text instead of a
// generic message.
func (s *Server) backendError(c echo.Context, err error) error {
	var (
		accessDenied *invoker.AccessDeniedError
		throttled    *invoker.ThrottledError
		validation   *invoker.ValidationError
		backend      *invoker.BackendError
		unsupported  *adapter.UnsupportedModelError
		malformed    *adapter.MalformedResponseError
	)

	body := errorResponse{Status: "aws_error"}
	switch {
	case errors.As(err, &accessDenied):
		body.Kind = "BackendAccessDeniedError"
		body.ErrorCode = accessDenied.Code
		body.Error = "Model access is not enabled. Enable model access for this model in the AWS console."
	case errors.As(err, &throttled):
		body.Kind = "BackendThrottledError"
		body.ErrorCode = throttled.Code
		body.Error = "Too many requests. Please retry in a moment."
	case errors.As(err, &validation):
		body.Kind = "BackendValidationError"
		body.ErrorCode = validation.Code
		body.Error = "The request was rejected by the backend: " + validation.Message
	case errors.As(err, &backend):
		body.Kind = "BackendError"
		body.ErrorCode = backend.Code
		body.Error = "Backend service error: " + backend.Message
	case errors.As(err, &unsupported):
		body.Kind = "UnsupportedModelError"
		body.Status = "error"
		body.Error = err.Error()
	case errors.As(err, &malformed):
		body.Kind = "MalformedResponseError"
		body.Status = "error"
		body.Error = err.Error()
	default:
		body.Kind = "InternalError"
		body.Status = "internal_error"
		body.Error = "An internal server error occurred: " + err.Error()
	}

	logger.L.Error("chat request failed",
		"request_id", c.Get("request_id"),
		"kind", body.Kind,
		"error", err)

	return c.JSON(http.StatusInternalServerError, body)
}
