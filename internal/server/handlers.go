package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"axectl/internal/dispatch"
	"axectl/internal/fleet"
	"axectl/internal/logging"
	"axectl/internal/ops"
	"axectl/internal/poller"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/devices", s.handleListDevices)
	mux.HandleFunc("DELETE /api/devices/{id}", s.handleForgetDevice)
	mux.HandleFunc("POST /api/discover", s.handleDiscover)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/bulk", s.handleBulk)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	return s.logRequests(mux)
}

// logRequests wraps the mux with per-request access logging.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response: " + err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseFilter builds a device filter from query parameters. No parameters
// selects everything, matching the CLI's list default.
func parseFilter(r *http.Request) (fleet.Filter, error) {
	q := r.URL.Query()
	typeList := q.Get("type")
	ipList := q.Get("ip")
	if typeList == "" && ipList == "" {
		return fleet.FilterAll(), nil
	}
	return fleet.ParseFilter(false, typeList, ipList)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": s.svc.Registry.Len(),
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	devices := s.svc.Devices(f)
	s.metrics.observeFleet(devices)
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) handleForgetDevice(w http.ResponseWriter, r *http.Request) {
	removed, err := s.svc.Forget(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type discoverRequest struct {
	Network     string `json:"network,omitempty"`
	TimeoutMS   int    `json:"timeout_ms,omitempty"`
	Parallel    int    `json:"parallel,omitempty"`
	DisableMDNS bool   `json:"disable_mdns,omitempty"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	report, err := s.svc.Discover(r.Context(), ops.DiscoverOptions{
		Network:     req.Network,
		Timeout:     time.Duration(req.TimeoutMS) * time.Millisecond,
		Parallel:    req.Parallel,
		DisableMDNS: req.DisableMDNS,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.metrics.discoveries.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"addresses_scanned": report.AddressesScanned,
		"found":             report.Found,
		"inserted":          report.Inserted,
		"updated":           report.Updated,
		"duration_ms":       report.Duration.Milliseconds(),
	})
}

// statsResponse is one device row in the stats payload.
type statsResponse struct {
	Device fleet.Device         `json:"device"`
	Online bool                 `json:"online"`
	Stats  *fleet.StatsSnapshot `json:"stats,omitempty"`
	Error  string               `json:"error,omitempty"`
}

func statsRows(samples []poller.Sample) []statsResponse {
	rows := make([]statsResponse, 0, len(samples))
	for _, smp := range samples {
		row := statsResponse{Device: smp.Device, Online: smp.Online()}
		if smp.Err != nil {
			row.Error = smp.Err.Error()
		} else {
			snap := smp.Snapshot
			row.Stats = &snap
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, summary, err := s.svc.Poll(r.Context(), f, s.config.PollParallel, 0)
	if err != nil {
		logging.Warn("failed to persist cache after poll: " + err.Error())
	}
	s.metrics.observePoll(summary)

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": statsRows(samples),
		"summary": summary,
	})
}

type bulkRequest struct {
	Action       string `json:"action"`
	FanSpeed     int    `json:"fan_speed,omitempty"`
	PoolURL      string `json:"pool_url,omitempty"`
	PoolPort     int    `json:"pool_port,omitempty"`
	PoolUser     string `json:"pool_user,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	RestartAfter bool   `json:"restart_after,omitempty"`
	Confirm      bool   `json:"confirm,omitempty"`
	Types        string `json:"types,omitempty"`
	IPs          string `json:"ips,omitempty"`
	All          bool   `json:"all,omitempty"`
	Parallel     int    `json:"parallel,omitempty"`
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	f, err := fleet.ParseFilter(req.All, req.Types, req.IPs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.IsZero() {
		writeError(w, http.StatusBadRequest, "no targets: set all, types, or ips")
		return
	}

	cmd := dispatch.Command{
		Action:       dispatch.Action(req.Action),
		FanSpeed:     req.FanSpeed,
		PoolURL:      req.PoolURL,
		PoolPort:     req.PoolPort,
		PoolUser:     req.PoolUser,
		ImageURL:     req.ImageURL,
		RestartAfter: req.RestartAfter,
	}

	outcome, err := s.svc.Bulk(r.Context(), f, cmd, req.Confirm, req.Parallel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.metrics.observeBulk(outcome)

	if outcome.DryRun {
		// 202: the command is valid but nothing was executed; re-send
		// with confirm=true to apply it.
		writeJSON(w, http.StatusAccepted, map[string]any{
			"run_id":                outcome.RunID,
			"confirmation_required": true,
			"description":           cmd.Describe(),
			"targets":               outcome.Targets,
		})
		return
	}

	results := make([]map[string]any, 0, len(outcome.Results))
	for _, res := range outcome.Results {
		row := map[string]any{"device_id": res.Device.ID, "ok": res.Err == nil}
		if res.Err != nil {
			row["error"] = res.Err.Error()
		}
		results = append(results, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":    outcome.RunID,
		"succeeded": outcome.Succeeded,
		"failed":    outcome.Failed,
		"results":   results,
	})
}
