package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"media-migrator/internal/database"
)

const (
	defaultErrorLimit = 50
	maxErrorLimit     = 500
	defaultReclaimAge = 30 * time.Minute
	maxStartBodyBytes = 64 << 10
)

// GetStatus returns one tenant's snapshot, or a roll-up over all tenants
// when no tenant query parameter is given.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Status(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		writeServiceError(w, "status", err)
		return
	}
	writeJSONOK(w, snap)
}

// StartRun starts or resumes a tenant's run. The body is an optional JSON
// RunConfig whose non-zero fields override the defaults.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	tenant := mux.Vars(r)["tenant"]

	var overrides database.RunConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStartBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	m, err := h.svc.Start(r.Context(), tenant, overrides)
	if err != nil {
		writeServiceError(w, "start", err)
		return
	}
	writeJSONOK(w, m)
}

// PauseRun pauses a tenant's run.
func (h *Handlers) PauseRun(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Pause(r.Context(), mux.Vars(r)["tenant"])
	if err != nil {
		writeServiceError(w, "pause", err)
		return
	}
	writeJSONOK(w, m)
}

// RunBatch processes one batch for the tenant and returns its result.
func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RunBatch(r.Context(), mux.Vars(r)["tenant"])
	if err != nil {
		writeServiceError(w, "batch", err)
		return
	}
	writeJSONOK(w, res)
}

// ResetErrors requeues failed items of one tenant, or of every tenant.
func (h *Handlers) ResetErrors(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ResetErrors(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		writeServiceError(w, "reset errors", err)
		return
	}
	writeJSONOK(w, map[string]int64{"reset": n})
}

// ReclaimStale returns items stuck in processing to pending.
func (h *Handlers) ReclaimStale(w http.ResponseWriter, r *http.Request) {
	olderThan := defaultReclaimAge
	if v := r.URL.Query().Get("olderThan"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeJSONError(w, "Invalid olderThan duration: "+v, http.StatusBadRequest)
			return
		}
		olderThan = d
	}

	n, err := h.svc.ReclaimStale(r.Context(), olderThan)
	if err != nil {
		writeServiceError(w, "reclaim", err)
		return
	}
	writeJSONOK(w, map[string]int64{"reclaimed": n})
}

// GetErrors lists the tenant's most recent failed attempts.
func (h *Handlers) GetErrors(w http.ResponseWriter, r *http.Request) {
	limit := defaultErrorLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, "Invalid limit: "+v, http.StatusBadRequest)
			return
		}
		limit = min(n, maxErrorLimit)
	}

	logs, err := h.svc.RecentErrors(r.Context(), mux.Vars(r)["tenant"], limit)
	if err != nil {
		writeServiceError(w, "recent errors", err)
		return
	}
	if logs == nil {
		logs = []database.MigrationLog{}
	}
	writeJSONOK(w, logs)
}

// TriggerScan runs a discovery scan and returns its result.
func (h *Handlers) TriggerScan(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Scan(r.Context())
	if err != nil {
		writeServiceError(w, "scan", err)
		return
	}
	writeJSONOK(w, res)
}
