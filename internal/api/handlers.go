package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/namematch"
	"github.com/sells-group/nonprofit-verify/internal/verify"
)

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := h.svc.Status()
	status := "ok"
	if st.RegistryOrgs == 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "datasets": st})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, verify.ErrInvalidIdentifier), errors.Is(err, verify.ErrBatchTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, verify.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Warn("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	switch code {
	case http.StatusBadRequest:
		writeError(w, code, err.Error())
	case http.StatusServiceUnavailable:
		writeError(w, code, "data sources temporarily unavailable")
	default:
		writeError(w, code, "internal error")
	}
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Lookup(r.Context(), chi.URLParam(r, "ein"), r.URL.Query().Get("state"))
	h.writeLookup(w, r, res, err)
}

// handleReverify drops any cached answer for the EIN and queries the sources again.
func (h *Handler) handleReverify(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reverify(r.Context(), chi.URLParam(r, "ein"), r.URL.Query().Get("state"))
	h.writeLookup(w, r, res, err)
}

func (h *Handler) writeLookup(w http.ResponseWriter, r *http.Request, res *verify.LookupResult, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if res.Outcome == verify.OutcomeNotFound {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "organization not found"})
		return
	}
	if res.Cached {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	writeJSON(w, http.StatusOK, res.Record)
}

type batchRequest struct {
	EINs []string `json:"eins"`
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	items, err := h.svc.BatchLookup(r.Context(), req.EINs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := namematch.Query{Text: q.Get("q"), State: q.Get("state")}
	var err error
	if query.Page, err = intParam(q.Get("page")); err != nil {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	if query.PageSize, err = intParam(q.Get("page_size")); err != nil {
		writeError(w, http.StatusBadRequest, "page_size must be a positive integer")
		return
	}

	page, err := h.svc.Search(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleRefreshes(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit == 0 {
		limit = 20
	}
	runs, err := h.svc.Refreshes(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// intParam parses an optional positive integer; empty yields 0.
func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}
