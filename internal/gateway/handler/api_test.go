package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	summarysvc "testsummary/internal/gateway/service/summary"
	llmclient "testsummary/internal/llmClient"
	"testsummary/internal/testdoc"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{badRequest("pageSize"), http.StatusBadRequest, "bad_request"},
		{fmt.Errorf("test %q: %w", "x", testdoc.ErrNotFound), http.StatusNotFound, "not_found"},
		{summarysvc.ErrConfigurationMissing, http.StatusServiceUnavailable, "configuration_missing"},
		{fmt.Errorf("generate: %w", &llmclient.UpstreamError{Status: 500}), http.StatusBadGateway, "upstream_unavailable"},
		{errors.New("connection refused"), http.StatusServiceUnavailable, "store_unavailable"},
		{context.Canceled, 499, "cancelled"},
	}
	for _, tc := range cases {
		status, code := statusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?pageSize=201&page=2", nil)
	_, err := queryInt(r, "pageSize", 20, 1, 200)
	assert.True(t, errors.Is(err, errBadRequest))
	v, err := queryInt(r, "page", 1, 1, 100)
	assert.NoError(t, err)
	assert.Equal(t, 2, v)
	v, err = queryInt(r, "missing", 7, 1, 100)
	assert.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestSSESinkFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := newSSESink(rec)
	assert.NoError(t, sink.Open())
	assert.NoError(t, sink.Delta("line one\nline two"))
	assert.NoError(t, sink.Done())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.Equal(t,
		"retry: 300\n\n: keep-alive\n\n"+
			"data: \"line one\\nline two\"\n\n"+
			"event: done\ndata: done\n\n",
		rec.Body.String())
}

func TestSSESinkErrorOpensStream(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := newSSESink(rec)
	assert.NoError(t, sink.Error("upstream error: status 529"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: error\ndata: \"upstream error: status 529\"\n\n")
}
