package handler

import "net/http"

// HandleSummary returns the complete summary, generating it on a cache miss.
func (a *API) HandleSummary(w http.ResponseWriter, r *http.Request) {
	req, err := summaryRequest(r, pathID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.summary.Summarize(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSummaryStream relays the summary as server-sent events. Request
// errors found before the stream opens are plain JSON error responses.
func (a *API) HandleSummaryStream(w http.ResponseWriter, r *http.Request) {
	req, err := summaryRequest(r, pathID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sink := newSSESink(w)
	if _, err := a.summary.Stream(r.Context(), req, sink); err != nil {
		if sink.opened {
			_ = sink.Error(err.Error())
			return
		}
		a.writeError(w, r, err)
	}
}
