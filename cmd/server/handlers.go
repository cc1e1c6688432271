package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"signagectl/internal/checker"
	"signagectl/internal/export"
	"signagectl/internal/policy"
	"signagectl/internal/remediate"
	"signagectl/internal/wave"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] Error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.incrementErrorCount()
		log.Printf("[ERROR] Failed to decode request from %s: %v", r.RemoteAddr, err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.incrementRequestCount()
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if s.password == "" || !constantTimeCompare(body.Password, s.password) {
		s.incrementErrorCount()
		log.Printf("[WARN] Failed login attempt from %s", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Incorrect password."})
		return
	}

	token, err := newSessionToken()
	if err != nil {
		s.incrementErrorCount()
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sessionMu.Lock()
	s.sessions[token] = time.Now()
	s.sessionMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token})
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// authorized checks the bearer token issued by login. With no console
// password configured, everything is allowed.
func (s *Server) authorized(r *http.Request) bool {
	if s.password == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return s.sessionValid(token)
}

func (s *Server) sessionValid(token string) bool {
	if token == "" {
		return false
	}
	s.sessionMu.RLock()
	_, exists := s.sessions[token]
	s.sessionMu.RUnlock()
	return exists
}

// handleWS gates the streaming endpoint on the login session. Browsers
// cannot set headers on a websocket handshake, so the token may also arrive
// as a query parameter.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.incrementRequestCount()
	if s.password != "" && !s.authorized(r) && !s.sessionValid(r.URL.Query().Get("token")) {
		s.incrementErrorCount()
		log.Printf("[WARN] Unauthorized websocket subscriber from %s", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.hub.HandleWS(w, r)
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.authorized(r) {
		return true
	}
	s.incrementErrorCount()
	log.Printf("[WARN] Unauthorized request from %s: %s %s", r.RemoteAddr, r.Method, r.URL.Path)
	writeError(w, http.StatusUnauthorized, "unauthorized")
	return false
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	s.incrementRequestCount()
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireAuth(w, r) {
		return
	}

	customers, err := wave.FetchCustomers(r.Context(), s.gateway)
	if err != nil {
		s.incrementErrorCount()
		log.Printf("[ERROR] Failed to fetch clients: %v", err)
		writeError(w, http.StatusBadGateway, "failed to fetch clients")
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

// handleClientSubroutes dispatches /api/clients/{handle}/... paths.
func (s *Server) handleClientSubroutes(w http.ResponseWriter, r *http.Request) {
	s.incrementRequestCount()
	if !s.requireAuth(w, r) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/clients/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		http.NotFound(w, r)
		return
	}
	handle := segments[0]

	switch {
	case len(segments) == 2 && segments[1] == "locations" && r.Method == http.MethodGet:
		s.handleLocations(w, r, handle)
	case len(segments) == 4 && segments[1] == "locations" && segments[3] == "devices" && r.Method == http.MethodGet:
		s.handleLocationDevices(w, r, handle, segments[2])
	case len(segments) == 2 && segments[1] == "displays" && r.Method == http.MethodGet:
		s.handleDisplays(w, r, handle)
	case len(segments) == 2 && segments[1] == "reboot" && r.Method == http.MethodPost:
		s.handleReboot(w, r, handle)
	case len(segments) == 2 && segments[1] == "validate" && r.Method == http.MethodPost:
		s.handleValidate(w, r, handle)
	case len(segments) == 2 && segments[1] == "remediate" && r.Method == http.MethodPost:
		s.handleRemediate(w, r, handle)
	case len(segments) == 2 && segments[1] == "apply-recommended-settings" && r.Method == http.MethodPost:
		s.handleApplyRecommendedSettings(w, r, handle)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request, handle string) {
	sites, err := wave.FetchSites(r.Context(), s.gateway, handle)
	if err != nil {
		s.incrementErrorCount()
		log.Printf("[ERROR] Failed to fetch sites for %s: %v", handle, err)
		writeError(w, http.StatusBadGateway, "failed to fetch locations")
		return
	}
	writeJSON(w, http.StatusOK, sites)
}

type deviceSummary struct {
	ID     string `json:"id"`
	Alias  string `json:"alias"`
	Site   string `json:"siteName"`
	Online bool   `json:"online"`
}

func (s *Server) handleLocationDevices(w http.ResponseWriter, r *http.Request, handle, siteID string) {
	displays, err := wave.FetchDisplays(r.Context(), s.gateway, handle)
	if err != nil {
		s.incrementErrorCount()
		log.Printf("[ERROR] Failed to fetch devices for %s: %v", handle, err)
		writeError(w, http.StatusBadGateway, "failed to fetch devices")
		return
	}
	devices := make([]deviceSummary, 0)
	for i := range displays {
		d := &displays[i]
		if d.Site == nil || d.Site.ID != siteID {
			continue
		}
		devices = append(devices, deviceSummary{ID: d.ID, Alias: d.Alias, Site: d.SiteName(), Online: d.Online()})
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleDisplays(w http.ResponseWriter, r *http.Request, handle string) {
	displays, err := wave.FetchDisplays(r.Context(), s.gateway, handle)
	if err != nil {
		s.incrementErrorCount()
		log.Printf("[ERROR] Failed to fetch displays for %s: %v", handle, err)
		writeError(w, http.StatusBadGateway, "failed to fetch displays")
		return
	}
	writeJSON(w, http.StatusOK, displays)
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request, handle string) {
	var body struct {
		DisplayIDs []string `json:"displayIds"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if len(body.DisplayIDs) == 0 || len(body.DisplayIDs) > maxDeviceIDs {
		writeError(w, http.StatusBadRequest, "displayIds must contain between 1 and 100000 ids")
		return
	}

	log.Printf("[INFO] Rebooting %d displays for client %s", len(body.DisplayIDs), handle)
	displays, err := wave.RebootDisplays(r.Context(), s.gateway, body.DisplayIDs)
	if err != nil {
		s.incrementErrorCount()
		log.Printf("[ERROR] Failed to reboot displays for %s: %v", handle, err)
		writeError(w, http.StatusBadGateway, "failed to reboot displays")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"displays": displays})
}

// handleValidate runs a streaming configuration check. Per-batch progress
// is pushed to websocket subscribers as it happens; the HTTP response
// carries the terminal aggregate.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request, handle string) {
	var body struct {
		DisplayIDs  []string             `json:"displayIds"`
		Checks      policy.CheckSelector `json:"checks"`
		Interactive bool                 `json:"interactive"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if len(body.DisplayIDs) == 0 || len(body.DisplayIDs) > maxDeviceIDs {
		writeError(w, http.StatusBadRequest, "displayIds must contain between 1 and 100000 ids")
		return
	}
	checks := body.Checks
	if !checks.Any() {
		checks = policy.All()
	}

	runner := s.runner
	if body.Interactive {
		runner = checker.New(s.gateway, s.policy, checker.Options{BatchSize: checker.InteractiveBatchSize})
	}

	events, err := runner.Run(r.Context(), handle, body.DisplayIDs, checks)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var summary *checker.Summary
	for event := range events {
		switch {
		case event.Batch != nil:
			s.hub.Broadcast(Envelope{Type: "batch", RunID: event.RunID, Payload: event.Batch})
		case event.Summary != nil:
			summary = event.Summary
			s.hub.Broadcast(Envelope{Type: "summary", RunID: event.RunID, Payload: event.Summary})
		}
	}
	if summary == nil {
		// Run was abandoned before completion.
		s.incrementErrorCount()
		writeError(w, http.StatusRequestTimeout, "validation run did not complete")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type remediationRequest struct {
	DeviceID string                     `json:"deviceId"`
	Updates  *remediate.RequiredUpdates `json:"requiredUpdates,omitempty"`
	Issues   []policy.Issue             `json:"issues,omitempty"`
}

// handleRemediate corrects the given devices sequentially. Each device's
// updates are either supplied directly or derived from its issue list.
func (s *Server) handleRemediate(w http.ResponseWriter, r *http.Request, handle string) {
	var body struct {
		Devices []remediationRequest `json:"devices"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if len(body.Devices) == 0 {
		writeError(w, http.StatusBadRequest, "devices must not be empty")
		return
	}

	log.Printf("[INFO] Remediating %d devices for client %s", len(body.Devices), handle)
	outcomes := make([]remediate.Outcome, 0, len(body.Devices))
	for _, device := range body.Devices {
		if device.DeviceID == "" {
			continue
		}
		updates := remediate.FromIssues(device.Issues, s.policy)
		if device.Updates != nil {
			updates = *device.Updates
		}
		if !updates.Any() {
			continue
		}
		outcomes = append(outcomes, s.engine.Remediate(r.Context(), device.DeviceID, updates))
		if r.Context().Err() != nil {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func (s *Server) handleApplyRecommendedSettings(w http.ResponseWriter, r *http.Request, handle string) {
	var body struct {
		DisplayIDs []string `json:"displayIds"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if len(body.DisplayIDs) == 0 {
		writeError(w, http.StatusBadRequest, "displayIds must not be empty")
		return
	}

	log.Printf("[INFO] Applying recommended settings to %d displays for client %s", len(body.DisplayIDs), handle)
	results, err := wave.ApplyRecommendedSettings(r.Context(), s.gateway, body.DisplayIDs)
	if err != nil {
		s.incrementErrorCount()
		log.Printf("[ERROR] Failed to apply recommended settings for %s: %v", handle, err)
		writeError(w, http.StatusBadGateway, "failed to apply recommended settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totalDevicesUpdated": len(results), "updatedDevices": results})
}

// handleExport renders an aggregate issue list as a CSV download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.incrementRequestCount()
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireAuth(w, r) {
		return
	}

	var body struct {
		Issues []policy.DeviceIssueReport `json:"issues"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="config-report.csv"`)
	if err := export.WriteCSV(w, body.Issues); err != nil {
		log.Printf("[ERROR] Failed to write CSV export: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.incrementRequestCount()

	s.statsMu.Lock()
	requestCount := s.requestCount
	errorCount := s.errorCount
	s.statsMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"requests": requestCount,
		"errors":   errorCount,
	})
}
