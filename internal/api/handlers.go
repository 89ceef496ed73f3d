// Package api exposes the monitor's read accessors and control surface
// over HTTP. All handlers read hub-cached copies or the rule store;
// none of them touch monitoring state directly.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/KnivInstitute/IronWatch/internal/hub"
	"github.com/KnivInstitute/IronWatch/internal/log"
	"github.com/KnivInstitute/IronWatch/internal/model"
	"github.com/KnivInstitute/IronWatch/internal/storage"
)

// Handler handles HTTP requests.
type Handler struct {
	hub   *hub.Hub
	store *storage.Storage
}

// NewHandler creates a new API handler.
func NewHandler(h *hub.Hub, store *storage.Storage) *Handler {
	return &Handler{hub: h, store: store}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Read accessors
	mux.HandleFunc("GET /api/status", h.getStatus)
	mux.HandleFunc("GET /api/devices", h.listDevices)
	mux.HandleFunc("GET /api/statistics", h.getStatistics)
	mux.HandleFunc("GET /api/history", h.getHistory)
	mux.HandleFunc("GET /api/analytics", h.getAnalytics)
	mux.HandleFunc("GET /api/events", h.listEvents)

	// Monitor control
	mux.HandleFunc("POST /api/monitor/start", h.startMonitor)
	mux.HandleFunc("POST /api/monitor/stop", h.stopMonitor)
	mux.HandleFunc("POST /api/monitor/refresh", h.refreshMonitor)
	mux.HandleFunc("PUT /api/monitor/filter", h.setFilter)
	mux.HandleFunc("PUT /api/monitor/interval", h.setInterval)

	// Rule CRUD
	mux.HandleFunc("GET /api/rules/{list}", h.listRules)
	mux.HandleFunc("POST /api/rules/{list}", h.createRule)
	mux.HandleFunc("DELETE /api/rules/{id}", h.deleteRule)
	mux.HandleFunc("PUT /api/rules/{id}/enabled", h.setRuleEnabled)
	mux.HandleFunc("PUT /api/rules/{list}/mode", h.setListMode)
}

// getStatus handles GET /api/status
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.hub.Status())
}

// listDevices handles GET /api/devices
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	devices := h.hub.Devices()
	log.Debug("Listed devices", "count", len(devices))
	h.writeJSON(w, http.StatusOK, devices)
}

// getStatistics handles GET /api/statistics
func (h *Handler) getStatistics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.hub.Telemetry().Statistics)
}

// getHistory handles GET /api/history
func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.hub.Telemetry().History)
}

// getAnalytics handles GET /api/analytics
func (h *Handler) getAnalytics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.hub.Telemetry().Analytics)
}

// listEvents handles GET /api/events. With ?source=live it returns the
// in-memory event log from the hub cache, otherwise the persisted audit
// trail.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "live" {
		h.writeJSON(w, http.StatusOK, h.hub.Telemetry().SecurityEvents)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	events, err := h.store.ListSecurityEvents(limit)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, events)
}

// startMonitor handles POST /api/monitor/start
func (h *Handler) startMonitor(w http.ResponseWriter, r *http.Request) {
	h.sendCommand(w, h.hub.StartMonitoring())
}

// stopMonitor handles POST /api/monitor/stop
func (h *Handler) stopMonitor(w http.ResponseWriter, r *http.Request) {
	h.sendCommand(w, h.hub.StopMonitoring())
}

// refreshMonitor handles POST /api/monitor/refresh
func (h *Handler) refreshMonitor(w http.ResponseWriter, r *http.Request) {
	h.sendCommand(w, h.hub.RefreshDevices())
}

// setFilter handles PUT /api/monitor/filter
func (h *Handler) setFilter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filter string `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.sendCommand(w, h.hub.SetFilter(body.Filter))
}

// setInterval handles PUT /api/monitor/interval
func (h *Handler) setInterval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IntervalMs int `json:"interval_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IntervalMs < 1 {
		h.writeError(w, http.StatusBadRequest, "interval_ms must be a positive integer")
		return
	}
	h.sendCommand(w, h.hub.SetPollingInterval(time.Duration(body.IntervalMs)*time.Millisecond))
}

// listRules handles GET /api/rules/{list}
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	list, ok := parseList(r.PathValue("list"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "list must be blacklist or whitelist")
		return
	}
	rules, err := h.store.ListRules(list)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rules)
}

// createRule handles POST /api/rules/{list}
func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	list, ok := parseList(r.PathValue("list"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "list must be blacklist or whitelist")
		return
	}

	var rule model.DeviceRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		log.Warn("Invalid rule creation request body", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rule.Reason == "" {
		h.writeError(w, http.StatusBadRequest, "reason is required")
		return
	}
	if rule.VendorID == nil && rule.ProductID == nil && rule.DeviceClass == nil &&
		rule.Manufacturer == nil && rule.Product == nil && rule.SerialNumber == nil {
		h.writeError(w, http.StatusBadRequest, "at least one matcher field is required")
		return
	}
	rule.Enabled = true

	created, err := h.store.AddRule(list, rule)
	if err != nil {
		h.internalError(w, err)
		return
	}

	log.Info("Rule created", "id", created.ID, "list", list, "reason", created.Reason)
	h.reloadPolicy()
	h.writeJSON(w, http.StatusCreated, created)
}

// deleteRule handles DELETE /api/rules/{id}
func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteRule(id); err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			h.writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		h.internalError(w, err)
		return
	}
	log.Info("Rule deleted", "id", id)
	h.reloadPolicy()
	w.WriteHeader(http.StatusNoContent)
}

// setRuleEnabled handles PUT /api/rules/{id}/enabled
func (h *Handler) setRuleEnabled(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.SetRuleEnabled(id, body.Enabled); err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			h.writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		h.internalError(w, err)
		return
	}
	log.Info("Rule toggled", "id", id, "enabled", body.Enabled)
	h.reloadPolicy()
	w.WriteHeader(http.StatusNoContent)
}

// setListMode handles PUT /api/rules/{list}/mode
func (h *Handler) setListMode(w http.ResponseWriter, r *http.Request) {
	list, ok := parseList(r.PathValue("list"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "list must be blacklist or whitelist")
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.SetListEnabled(list, body.Enabled); err != nil {
		h.internalError(w, err)
		return
	}
	log.Info("List mode changed", "list", list, "enabled", body.Enabled)
	h.reloadPolicy()
	w.WriteHeader(http.StatusNoContent)
}

// reloadPolicy nudges the running service to pick up rule changes. The
// service may already be gone during shutdown; that is fine.
func (h *Handler) reloadPolicy() {
	if err := h.hub.ReloadPolicy(); err != nil {
		log.Warn("Policy reload not delivered", "error", err)
	}
}

func (h *Handler) sendCommand(w http.ResponseWriter, err error) {
	if err != nil {
		log.Error("Command delivery failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func parseList(s string) (model.RuleList, bool) {
	switch model.RuleList(s) {
	case model.Blacklist, model.Whitelist:
		return model.RuleList(s), true
	default:
		return "", false
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// internalError logs the error and writes a generic 500 response
func (h *Handler) internalError(w http.ResponseWriter, err error) {
	log.Error("Internal server error", "error", err)
	h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
}
