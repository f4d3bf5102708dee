package webapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"genforge/metrics"
	"genforge/orchestrator"
	"genforge/pool"
	"genforge/shutdown"
)

// GenerateRequest is the POST /api/generate body.
type GenerateRequest struct {
	UserID   string   `json:"user_id"`
	Platform string   `json:"platform,omitempty"`
	Prompts  []string `json:"prompts"`

	// Reference is an optional base64-encoded reference image.
	Reference string `json:"reference,omitempty"`
}

// ArchiveInfo describes one produced archive without its payload.
type ArchiveInfo struct {
	Name      string `json:"name"`
	Files     int    `json:"files"`
	SizeBytes int    `json:"size_bytes"`
}

// GenerateResponse is the POST /api/generate reply.
type GenerateResponse struct {
	GenerationID string        `json:"generation_id"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	ElapsedMS    int64         `json:"elapsed_ms"`
	Archives     []ArchiveInfo `json:"archives,omitempty"`
}

// StatsResponse is the GET /api/stats reply.
type StatsResponse struct {
	Pool    pool.Stats        `json:"pool"`
	Batches *metrics.Snapshot `json:"batches,omitempty"`
}

// HealthResponse is the GET /api/health reply.
type HealthResponse struct {
	Status            string `json:"status"`
	AvailableCapacity int    `json:"available_capacity"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var reference []byte
	if req.Reference != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Reference)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reference is not valid base64")
			return
		}
		reference = decoded
	}

	orchReq := orchestrator.Request{
		UserID:    req.UserID,
		Platform:  req.Platform,
		Prompts:   req.Prompts,
		Reference: reference,
	}

	var record orchestrator.GenerationRecord
	run := func(ctx context.Context) error {
		var err error
		record, err = s.runner.Run(ctx, orchReq, s.sink)
		return err
	}

	var err error
	if s.manager != nil {
		err = s.manager.WrapOperation(r.Context(), "api-generate", run)
	} else {
		err = run(r.Context())
	}
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	archives := make([]ArchiveInfo, len(record.Archives))
	for i, a := range record.Archives {
		archives[i] = ArchiveInfo{Name: a.Name, Files: a.Files, SizeBytes: a.SizeBytes}
	}
	writeJSON(w, http.StatusOK, GenerateResponse{
		GenerationID: record.ID,
		Succeeded:    record.Succeeded,
		Failed:       record.Failed,
		ElapsedMS:    record.Elapsed.Milliseconds(),
		Archives:     archives,
	})
}

// writeRunError maps pipeline errors onto HTTP statuses.
func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shutdown.ErrTrackerClosed):
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
	case errors.Is(err, orchestrator.ErrNoPrompts), errors.Is(err, orchestrator.ErrTooManyPrompts):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("generation request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	resp := StatsResponse{Pool: s.pool.Stats()}
	if s.metrics != nil {
		snap := s.metrics.Snapshot()
		resp.Batches = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	resp := HealthResponse{
		Status:            "ok",
		AvailableCapacity: s.pool.AvailableCapacity(),
	}
	status := http.StatusOK
	if !s.pool.IsHealthy() {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
