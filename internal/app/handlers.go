package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrWong99/phonescan/internal/export"
	"github.com/MrWong99/phonescan/internal/observe"
	"github.com/MrWong99/phonescan/internal/results"
)

// resultsHandler serves the persisted results.
type resultsHandler struct {
	store    results.Store
	exporter *export.Exporter
}

func listOptions(r *http.Request) (results.ListOptions, error) {
	opts := results.ListOptions{SessionID: r.URL.Query().Get("session_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errBadLimit
		}
		opts.Limit = n
	}
	return opts, nil
}

var errBadLimit = errors.New("limit must be a non-negative integer")

// list handles GET /v1/results?limit=n&session_id=id.
func (h *resultsHandler) list(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	recs, err := h.store.List(r.Context(), opts)
	if err != nil {
		observe.Logger(r.Context()).Error("list results failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list results failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": recs})
}

// xlsx handles GET /v1/results.xlsx with the same query parameters as list.
func (h *resultsHandler) xlsx(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="phonescan-results.xlsx"`)
	if _, err := h.exporter.WriteXLSX(r.Context(), w, opts); err != nil {
		observe.Logger(r.Context()).Error("xlsx export failed", "err", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
	}
}

// sessions handles GET /v1/sessions.
func sessionsHandler(sm *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sm.Active()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
