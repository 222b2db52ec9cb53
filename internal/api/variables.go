package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/cloud4rpi-go/internal/device"
)

// handleGetConfig returns the variable configuration as it is published.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.device.ReadConfig())
}

// handleGetVariables returns the stored variable values. No binding is
// invoked, so sensors are not read and actuators are not touched.
func (s *Server) handleGetVariables(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.device.Values())
}

// handleGetDiagnostics resolves and returns the diagnostics.
func (s *Server) handleGetDiagnostics(w http.ResponseWriter, _ *http.Request) {
	diag, err := s.device.ReadDiag()
	if err != nil {
		s.logger.Error("reading diagnostics failed", "error", err)
		writeInternalError(w, device.ErrorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

// commandResponse is returned by POST /commands.
type commandResponse struct {
	Updates map[string]any `json:"updates"`
}

// handleCommand applies a command exactly like one received from the
// cloud: values go through the bindings and the updates are published.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd map[string]any
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "command must be a JSON object")
		return
	}
	if cmd == nil {
		writeBadRequest(w, "command must be a JSON object")
		return
	}

	updates, err := s.device.HandleCommand(r.Context(), cmd)
	switch {
	case err == nil:
		s.logger.Info("local command applied", "updates", updates)
		writeJSON(w, http.StatusOK, commandResponse{Updates: updates})

	case errors.Is(err, device.ErrUnexpectedVariableValueType),
		errors.Is(err, device.ErrUnexpectedVariableType):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, device.ErrorMessage(err))

	case len(updates) > 0:
		// applied locally, the publish failed
		s.logger.Warn("local command applied but not published", "error", err, "updates", updates)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())

	default:
		s.logger.Error("local command failed", "error", err)
		writeInternalError(w, device.ErrorMessage(err))
	}
}
