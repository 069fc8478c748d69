package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/m-mizutani/herald"
)

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req herald.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, http.StatusBadRequest, "transcript is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = r.Header.Get("X-Session-ID")
	}

	resp, err := s.pipeline.HandleCommand(r.Context(), req)
	if err != nil {
		if errors.Is(err, herald.ErrEmptyTranscript) {
			writeError(w, http.StatusBadRequest, "transcript is required")
			return
		}
		slog.Error("failed to handle command", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to handle command")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type confirmRequest struct {
	PlanID string `json:"plan_id"`
}

func (s *server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "plan_id is required")
		return
	}

	resp, err := s.pipeline.ConfirmPlan(r.Context(), req.PlanID)
	if err != nil {
		switch {
		case errors.Is(err, herald.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, "plan not found")
		case errors.Is(err, herald.ErrPlanExpired):
			writeError(w, http.StatusGone, "plan expired")
		case errors.Is(err, herald.ErrPlanNotPending):
			writeError(w, http.StatusConflict, "plan was already confirmed or executed")
		default:
			slog.Error("failed to confirm plan", slog.Any("error", err), slog.String("plan_id", req.PlanID))
			writeError(w, http.StatusInternalServerError, "failed to confirm plan")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type deviceResultRequest struct {
	PlanID  string                      `json:"plan_id"`
	Results []herald.DeviceActionResult `json:"results"`
}

func (s *server) handleDeviceResult(w http.ResponseWriter, r *http.Request) {
	var req deviceResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "plan_id is required")
		return
	}
	if len(req.Results) == 0 {
		writeError(w, http.StatusBadRequest, "results are required")
		return
	}

	report, err := s.pipeline.ReportDeviceResults(r.Context(), req.PlanID, req.Results)
	if err != nil {
		switch {
		case errors.Is(err, herald.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, "plan not found")
		case errors.Is(err, herald.ErrPlanExpired):
			writeError(w, http.StatusGone, "plan expired")
		default:
			slog.Error("failed to reconcile device results", slog.Any("error", err), slog.String("plan_id", req.PlanID))
			writeError(w, http.StatusInternalServerError, "failed to reconcile device results")
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}
