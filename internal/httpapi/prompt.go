package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/orchestrator"
)

// PromptHandler serves POST /prompt by decoding the request body and
// handing it to the Prompt Orchestrator (spec §4.6).
type PromptHandler struct {
	Orchestrator *orchestrator.Orchestrator
	Log          *slog.Logger
}

func (h *PromptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	if req.Prompt == nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "prompt is required",
		})
		return
	}

	resp := orchestrator.Run(r.Context(), h.Orchestrator, req)
	setPromptID(r, resp.Body.ID)
	if resp.GatewayErr != nil {
		writeJSON(w, resp.StatusCode, models.ErrorResponse{
			Error:    resp.GatewayErr.Code,
			Location: resp.GatewayErr.Location,
			Message:  resp.GatewayErr.Message,
		})
		return
	}
	writeJSON(w, resp.StatusCode, resp.Body)
}
