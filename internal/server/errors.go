package server

import (
	"encoding/json"
	"net/http"
)

const (
	codeSessionNotFound    = "session_not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeMissingFile        = "missing_file"
	codeInvalidTeams       = "invalid_teams"
	codeInvalidConfig      = "invalid_config"
	codeNoTeams            = "no_teams"
	codeInfeasible         = "infeasible"
	codeWorkloadExceeded   = "workload_exceeded"
	codeNoSchedule         = "no_schedule"
	codeRenderFailed       = "render_failed"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
