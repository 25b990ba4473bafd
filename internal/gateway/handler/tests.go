package handler

import (
	"net/http"

	summarycache "testsummary/internal/cache/summary"
	testdocrepo "testsummary/internal/gateway/repository/testdoc"
	"testsummary/internal/gateway/service/prefetch"
	"testsummary/internal/synopsis"
	"testsummary/internal/testdoc"
)

type componentHealth struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type healthResponse struct {
	OK          bool            `json:"ok"`
	TestsDir    string          `json:"testsDir,omitempty"`
	TestsSource componentHealth `json:"testsSource"`
	Cache       componentHealth `json:"cache"`
	Generator   componentHealth `json:"generator"`
}

func check(name string, err error) componentHealth {
	h := componentHealth{Name: name, OK: err == nil}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}

// HandleHealth reports component availability. Only the document store is
// required for ok; cache and generator failures degrade service.
func (a *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs := check(a.docs.Name(), a.docs.Ping(ctx))
	resp := healthResponse{
		OK:          docs.OK,
		TestsDir:    a.testsDir,
		TestsSource: docs,
		Cache:       check(a.cache.Name(), a.cache.Ping(ctx)),
		Generator:   componentHealth{Name: a.summary.Generator(), OK: a.summary.Generator() != ""},
	}
	writeJSON(w, http.StatusOK, resp)
}

type listResponse struct {
	Items      []testdoc.ListItem `json:"items"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	TotalPages int                `json:"totalPages"`
}

// HandleListTests returns one page of tests and queues the page for
// background summary warming.
func (a *API) HandleListTests(w http.ResponseWriter, r *http.Request) {
	pageNum, err := queryInt(r, "page", 1, 1, 1<<30)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	size, err := queryInt(r, "pageSize", testdocrepo.DefaultPageSize, 1, testdocrepo.MaxPageSize)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	page := testdocrepo.Page{Number: pageNum, Size: size}
	tests, total, err := a.docs.ListTests(r.Context(), page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	items := make([]testdoc.ListItem, 0, len(tests))
	ids := make([]string, 0, len(tests))
	for _, t := range tests {
		items = append(items, t.Summary())
		ids = append(ids, t.ID)
	}
	a.prefetch.Submit(ids)

	writeJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Total:      total,
		Page:       page.Number,
		PageSize:   page.Size,
		TotalPages: page.TotalPages(total),
	})
}

type testDetail struct {
	testdoc.ListItem
	Mode        synopsis.Mode `json:"mode"`
	Synopsis    []string      `json:"synopsis"`
	ContentHash string        `json:"contentHash"`
}

func (a *API) HandleGetTest(w http.ResponseWriter, r *http.Request) {
	mode, err := queryMode(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	plan, err := a.summary.Plan(r.Context(), pathID(r), mode)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testDetail{
		ListItem:    plan.Test.Summary(),
		Mode:        plan.Mode,
		Synopsis:    plan.Synopsis,
		ContentHash: plan.Fingerprint,
	})
}

type debugCacheResponse struct {
	Cache    summarycache.MetricsSnapshot `json:"cache"`
	Prefetch prefetch.Stats               `json:"prefetch"`
}

func (a *API) HandleDebugCache(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, debugCacheResponse{
		Cache:    a.cache.Metrics(),
		Prefetch: a.prefetch.Stats(),
	})
}
