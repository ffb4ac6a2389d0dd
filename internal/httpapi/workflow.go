package httpapi

import (
	"net/http"
	"strings"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
)

// handleWorkflow accepts POST /workflow/<name>. The declarative
// "workflow -> prompt" template pack that resolves <name> into a concrete
// Prompt graph is an external collaborator out of scope here (spec
// Non-goals); this endpoint exists so the route is present and returns a
// typed 501 rather than a bare 404 until a template pack is wired in.
func handleWorkflow(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/workflow/")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "missing workflow name"})
		return
	}
	writeJSON(w, http.StatusNotImplemented, models.ErrorResponse{
		Error:   "workflow_unavailable",
		Message: "no workflow template pack is configured for " + name,
	})
}
