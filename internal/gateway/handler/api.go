package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	summarycache "testsummary/internal/cache/summary"
	testdocrepo "testsummary/internal/gateway/repository/testdoc"
	"testsummary/internal/gateway/service/prefetch"
	summarysvc "testsummary/internal/gateway/service/summary"
	llmclient "testsummary/internal/llmClient"
	"testsummary/internal/synopsis"
	"testsummary/internal/testdoc"
)

// API serves the test listing and summary endpoints.
type API struct {
	docs     testdocrepo.Repository
	summary  *summarysvc.Service
	cache    *summarycache.Cache
	prefetch *prefetch.Scheduler
	testsDir string
	log      *slog.Logger
}

type Deps struct {
	Docs     testdocrepo.Repository
	Summary  *summarysvc.Service
	Cache    *summarycache.Cache
	Prefetch *prefetch.Scheduler
	// TestsDir is reported by /health when documents come from files.
	TestsDir string
	Logger   *slog.Logger
}

func NewAPI(d Deps) *API {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		docs:     d.Docs,
		summary:  d.Summary,
		cache:    d.Cache,
		prefetch: d.Prefetch,
		testsDir: d.TestsDir,
		log:      logger.With("component", "http"),
	}
}

// errBadRequest marks query validation failures.
var errBadRequest = errors.New("bad request")

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", errBadRequest, msg)
}

// statusFor maps service errors to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	var upstream *llmclient.UpstreamError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, testdoc.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, summarysvc.ErrConfigurationMissing):
		return http.StatusServiceUnavailable, "configuration_missing"
	case errors.As(err, &upstream):
		return http.StatusBadGateway, "upstream_unavailable"
	case errors.Is(err, context.Canceled):
		return 499, "cancelled"
	default:
		return http.StatusServiceUnavailable, "store_unavailable"
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= 500 {
		a.log.WarnContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryMode(r *http.Request) (synopsis.Mode, error) {
	mode, err := synopsis.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		return "", badRequest(err.Error())
	}
	return mode, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest(name + " must be a boolean")
	}
	return v, nil
}

// queryInt parses name within [lo, hi], returning def when absent.
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, badRequest(fmt.Sprintf("%s must be an integer between %d and %d", name, lo, hi))
	}
	return v, nil
}

// pathID returns the {id} route parameter. Ids derived from file paths
// arrive with escaped slashes.
func pathID(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if id, err := url.PathUnescape(raw); err == nil {
		raw = id
	}
	return strings.TrimSpace(raw)
}

func summaryRequest(r *http.Request, id string) (summarysvc.Request, error) {
	mode, err := queryMode(r)
	if err != nil {
		return summarysvc.Request{}, err
	}
	refresh, err := queryBool(r, "refresh")
	if err != nil {
		return summarysvc.Request{}, err
	}
	return summarysvc.Request{TestID: id, Mode: mode, Refresh: refresh}, nil
}
