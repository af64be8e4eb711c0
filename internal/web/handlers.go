package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/user/vncguard/internal/daemon"
	"github.com/user/vncguard/internal/response"
	"github.com/user/vncguard/internal/util"
)

// Handlers contains the HTTP handlers.
type Handlers struct {
	daemon *daemon.Daemon
}

// NewHandlers creates handlers over the daemon's components.
func NewHandlers(d *daemon.Daemon) *Handlers {
	return &Handlers{daemon: d}
}

// Dashboard serves the main dashboard page.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := getDashboardTemplate().Execute(w, h.dashboardData()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) dashboardData() map[string]interface{} {
	data := make(map[string]interface{})

	data["active_sessions"] = h.daemon.Tracker().Active()
	if threats, err := h.daemon.Threats().GetRecent(20); err == nil {
		data["recent_threats"] = threats
	}
	data["blocks"] = h.daemon.Blocker().List()
	data["baseline"] = h.daemon.Baseline().Baseline()
	data["model_ready"] = h.daemon.Scorer().Ready()
	data["status"] = h.daemon.GetStatus()

	return data
}

// APIGetSessions returns active sessions, or recent ones with ?recent=N.
func (h *Handlers) APIGetSessions(w http.ResponseWriter, r *http.Request) {
	if n := r.URL.Query().Get("recent"); n != "" {
		limit, err := strconv.Atoi(n)
		if err != nil || limit <= 0 || limit > 500 {
			limit = 50
		}
		records, err := h.daemon.Sessions().GetRecent(limit)
		if err != nil {
			writeError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, records)
		return
	}

	writeJSON(w, h.daemon.Tracker().Active())
}

// APIGetSessionThreats handles /api/sessions/{id}/threats.
func (h *Handlers) APIGetSessionThreats(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[3] != "threats" {
		http.NotFound(w, r)
		return
	}

	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	threats, err := h.daemon.Threats().GetBySession(id)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, threats)
}

// APIGetThreats returns threats from the last 24 hours, or ?since=1h style
// windows.
func (h *Handlers) APIGetThreats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		if d, err := time.ParseDuration(sinceStr); err == nil {
			since = time.Now().Add(-d)
		}
	}

	threats, err := h.daemon.Threats().GetSince(since)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, threats)
}

// APIGetBlocks returns the active block list.
func (h *Handlers) APIGetBlocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.daemon.Blocker().List())
}

type blockRequest struct {
	Address string `json:"address"`
	Minutes int    `json:"minutes"`
	Reason  string `json:"reason"`
}

// APICreateBlock blocks an address manually. Zero minutes means permanent.
func (h *Handlers) APICreateBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "manual block via dashboard"
	}

	entry, err := h.daemon.Blocker().Block(req.Address,
		time.Duration(req.Minutes)*time.Minute, req.Reason, nil, response.ActorAdmin)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	util.Info("dashboard blocked %s", req.Address)
	writeJSON(w, entry)
}

// APIDeleteBlock handles DELETE /api/blocks/{ip}.
func (h *Handlers) APIDeleteBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	addr := strings.TrimPrefix(r.URL.Path, "/api/blocks/")
	ok, err := h.daemon.Blocker().Unblock(addr, response.ActorAdmin)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]string{"unblocked": addr})
}

// APIGetBaseline returns the current baseline snapshot.
func (h *Handlers) APIGetBaseline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.daemon.Baseline().Baseline())
}

type simulationRequest struct {
	Scenario string `json:"scenario"`
}

// APIStartSimulation starts an attack scenario.
func (h *Handlers) APIStartSimulation(w http.ResponseWriter, r *http.Request) {
	var req simulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	run, err := h.daemon.Simulator().Start(req.Scenario, time.Now())
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, run)
}

// APIGetSimulations lists active simulation runs.
func (h *Handlers) APIGetSimulations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.daemon.Simulator().Active())
}

// APIGetStatus returns the daemon status.
func (h *Handlers) APIGetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.daemon.GetStatus())
}

// APIGetStats returns the session and threat summary.
func (h *Handlers) APIGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"blocks":      h.daemon.Blocker().Stats(),
		"model_ready": h.daemon.Scorer().Ready(),
		"baseline":    h.daemon.Baseline().Baseline(),
	}

	if n, err := h.daemon.Sessions().CountActive(); err == nil {
		stats["active_sessions"] = n
	}
	if n, err := h.daemon.Sessions().Count(); err == nil {
		stats["total_sessions"] = n
	}
	if counts, err := h.daemon.Threats().CountBySeverity(); err == nil {
		stats["threats_by_severity"] = counts
	}

	writeJSON(w, stats)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
