package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seongmin-ku/bedrockchat/internal/agent"
	"github.com/seongmin-ku/bedrockchat/internal/config"
	"github.com/seongmin-ku/bedrockchat/internal/invoker"
)

type fakeProcessor struct {
	result     agent.Result
	err        error
	calls      int
	lastParams agent.Params
	panics     bool
}

func (f *fakeProcessor) Process(ctx context.Context, p agent.Params) (agent.Result, error) {
	if f.panics {
		panic("boom")
	}
	f.calls++
	f.lastParams = p
	return f.result, f.err
}

var testBedrock = config.BedrockConfig{
	Region:      "ap-northeast-2",
	Model:       "anthropic.claude-sonnet-4-20250514-v1:0",
	MaxTokens:   1000,
	Temperature: 0.7,
}

func doRequest(t *testing.T, s *Server, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleChat_Success_SessionLess(t *testing.T) {
	p := &fakeProcessor{result: agent.Result{Reply: "hi there", Elapsed: 0.42}}
	s := New(p, testBedrock)

	rec := doRequest(t, s, http.MethodPost, `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "hi there", body["response"])
	require.Nil(t, body["session_id"])
	require.Equal(t, testBedrock.Model, body["model_used"])
	require.Equal(t, 0.42, body["processing_time"])
	require.Equal(t, "ap-northeast-2", body["region"])
	require.Equal(t, "success", body["status"])

	require.Equal(t, 1, p.calls)
	require.Empty(t, p.lastParams.SessionID)
	require.Equal(t, 1000, p.lastParams.MaxTokens)
	require.Equal(t, 0.7, p.lastParams.Temperature)
}

func TestHandleChat_Overrides(t *testing.T) {
	p := &fakeProcessor{result: agent.Result{Reply: "ok"}}
	s := New(p, testBedrock)

	rec := doRequest(t, s, http.MethodPost,
		`{"message":"hello","session_id":"s1","model_id":"amazon.titan-text-express-v1","max_tokens":42,"temperature":0.1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "s1", body["session_id"])
	require.Equal(t, "amazon.titan-text-express-v1", body["model_used"])

	require.Equal(t, "s1", p.lastParams.SessionID)
	require.Equal(t, "amazon.titan-text-express-v1", p.lastParams.ModelID)
	require.Equal(t, 42, p.lastParams.MaxTokens)
	require.Equal(t, 0.1, p.lastParams.Temperature)
}

func TestHandleChat_CORSHeaders(t *testing.T) {
	p := &fakeProcessor{result: agent.Result{Reply: "ok"}}
	s := New(p, testBedrock)

	for _, method := range []string{http.MethodPost, http.MethodOptions, http.MethodGet} {
		rec := doRequest(t, s, method, `{"message":"hello"}`)
		h := rec.Header()
		require.Equal(t, "*", h.Get("Access-Control-Allow-Origin"), method)
		require.Equal(t, "POST, OPTIONS", h.Get("Access-Control-Allow-Methods"), method)
		require.Equal(t, "Content-Type, Authorization, X-Requested-With", h.Get("Access-Control-Allow-Headers"), method)
		require.Equal(t, "application/json; charset=utf-8", h.Get("Content-Type"), method)
		require.NotEmpty(t, h.Get("X-Request-ID"), method)
	}
}

func TestHandleChat_Preflight(t *testing.T) {
	p := &fakeProcessor{}
	s := New(p, testBedrock)

	// OPTIONS succeeds regardless of body content
	rec := doRequest(t, s, http.MethodOptions, `this is not json`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "CORS preflight successful", decodeBody(t, rec)["message"])
	require.Zero(t, p.calls)
}

func TestHandleChat_MethodNotAllowed(t *testing.T) {
	p := &fakeProcessor{}
	s := New(p, testBedrock)

	rec := doRequest(t, s, http.MethodGet, "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "MethodNotAllowedError", body["kind"])
	require.Equal(t, []any{"POST", "OPTIONS"}, body["allowed_methods"])
}

func TestHandleChat_MalformedBody(t *testing.T) {
	p := &fakeProcessor{}
	s := New(p, testBedrock)

	rec := doRequest(t, s, http.MethodPost, `{"message":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "MalformedBodyError", decodeBody(t, rec)["kind"])
	require.Zero(t, p.calls)
}

func TestHandleChat_MissingMessage(t *testing.T) {
	p := &fakeProcessor{}
	s := New(p, testBedrock)

	for _, payload := range []string{`{}`, `{"message":""}`, `{"message":"   \n\t "}`} {
		rec := doRequest(t, s, http.MethodPost, payload)
		require.Equal(t, http.StatusBadRequest, rec.Code, payload)

		body := decodeBody(t, rec)
		require.Equal(t, "MissingMessageError", body["kind"], payload)
		require.Equal(t, []any{"message"}, body["required_fields"], payload)
	}
	require.Zero(t, p.calls)
}

func TestHandleChat_MessageTooLong(t *testing.T) {
	p := &fakeProcessor{}
	s := New(p, testBedrock)

	long := strings.Repeat("a", 10001)
	rec := doRequest(t, s, http.MethodPost, `{"message":"`+long+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "MessageTooLongError", body["kind"])
	require.Equal(t, float64(10001), body["current_length"])
	require.Equal(t, float64(10000), body["max_length"])
	require.Zero(t, p.calls)

	// exactly at the limit passes validation
	p2 := &fakeProcessor{result: agent.Result{Reply: "ok"}}
	s2 := New(p2, testBedrock)
	rec = doRequest(t, s2, http.MethodPost, `{"message":"`+strings.Repeat("a", 10000)+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleChat_BackendErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		kind   string
		status string
	}{
		{"throttled", &invoker.ThrottledError{Code: "ThrottlingException", Message: "slow down"}, "BackendThrottledError", "aws_error"},
		{"access denied", &invoker.AccessDeniedError{Code: "AccessDeniedException", Message: "no access"}, "BackendAccessDeniedError", "aws_error"},
		{"validation", &invoker.ValidationError{Code: "ValidationException", Message: "bad field"}, "BackendValidationError", "aws_error"},
		{"generic backend", &invoker.BackendError{Code: "InternalServerException", Message: "oops"}, "BackendError", "aws_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProcessor{err: tc.err}
			s := New(p, testBedrock)

			rec := doRequest(t, s, http.MethodPost, `{"message":"hello"}`)
			require.Equal(t, http.StatusInternalServerError, rec.Code)

			body := decodeBody(t, rec)
			require.Equal(t, tc.kind, body["kind"])
			require.Equal(t, tc.status, body["status"])
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleChat_ThrottledMessageIsActionable(t *testing.T) {
	p := &fakeProcessor{err: &invoker.ThrottledError{Code: "ThrottlingException", Message: "slow down"}}
	s := New(p, testBedrock)

	rec := doRequest(t, s, http.MethodPost, `{"message":"hello"}`)
	body := decodeBody(t, rec)
	require.Contains(t, body["error"], "retry")
}

func TestHandleChat_PanicRecovered(t *testing.T) {
	p := &fakeProcessor{panics: true}
	s := New(p, testBedrock)

	rec := doRequest(t, s, http.MethodPost, `{"message":"hello"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "InternalError", body["kind"])
	require.Equal(t, "internal_error", body["status"])
}

func TestHandleChat_NonASCIIEmittedLiterally(t *testing.T) {
	p := &fakeProcessor{result: agent.Result{Reply: "안녕하세요!"}}
	s := New(p, testBedrock)

	rec := doRequest(t, s, http.MethodPost, `{"message":"인사해줘"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "안녕하세요!")
}
