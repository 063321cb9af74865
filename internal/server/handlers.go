package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/report-sentinel/internal/pipeline"
)

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

type guardRequest struct {
	Original  string `json:"original"`
	Candidate string `json:"candidate"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	var req pipeline.Request
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.RequestID = requestID

	outcome, err := s.processor.Process(r.Context(), req)
	if err != nil {
		var verr *pipeline.ValidationError
		var perr *pipeline.RewriteProviderError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Error())
		case errors.As(err, &perr):
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: perr.Error(), Retryable: perr.Retryable()})
		default:
			log.Error("Unexpected processing error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, outcome.Response())
}

func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request) {
	var req guardRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.processor.Guard(req.Original, req.Candidate))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["requestID"]

	records, err := s.processor.Audit(r.Context(), requestID)
	if err != nil {
		s.logger.Error("Failed to read audit trail", zap.String("audit_request_id", requestID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read audit trail")
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "no audit records for request")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requestId": requestID,
		"records":   records,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":             "report-sentinel",
		"version":          Version,
		"rewrite_provider": s.processor.Provider(),
		"audit_backend":    s.config.Audit.Backend,
		"cache_enabled":    s.config.Cache.Enabled,
		"rate_limit":       s.limiter != nil,
		"uptime":           time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.wsHub != nil {
		info["websocket"] = s.wsHub.GetStats()
	}
	writeJSON(w, http.StatusOK, info)
}

// decode reads a JSON body no larger than the configured limit
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	if s.config.Server.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
