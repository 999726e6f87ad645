package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	appintegrations "github.com/depscan-io/depscan/internal/application/integrations"
	domain "github.com/depscan-io/depscan/internal/domain/integrations"
	scansdomain "github.com/depscan-io/depscan/internal/domain/scans"
	"github.com/depscan-io/depscan/internal/middleware"
)

// maskedIntegration is the API shape: raw config never leaves the server.
type maskedIntegration struct {
	*domain.Integration
	Config map[string]string `json:"config"`
}

func masked(i *domain.Integration) maskedIntegration {
	return maskedIntegration{Integration: i, Config: i.MaskedConfig()}
}

// POST /api/integrations
func (r *Router) handleCreateIntegration(w http.ResponseWriter, req *http.Request) error {
	var cmd appintegrations.CreateCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		return badRequest("invalid request body")
	}

	i, err := r.integrationsSvc.Create(req.Context(), middleware.GetUserID(req.Context()), cmd)
	if err != nil {
		return badRequest(err.Error())
	}
	// The webhook token is shown once, on creation.
	return writeJSON(w, http.StatusCreated, map[string]any{
		"integration":   masked(i),
		"webhook_token": i.WebhookToken,
	})
}

// GET /api/integrations
func (r *Router) handleListIntegrations(w http.ResponseWriter, req *http.Request) error {
	list, err := r.integrationsSvc.List(req.Context(), middleware.GetUserID(req.Context()))
	if err != nil {
		return err
	}
	out := make([]maskedIntegration, 0, len(list))
	for _, i := range list {
		out = append(out, masked(i))
	}
	return writeJSON(w, http.StatusOK, out)
}

func integrationIDParam(req *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid integration id")
	}
	return id, nil
}

// GET /api/integrations/{id}
func (r *Router) handleGetIntegration(w http.ResponseWriter, req *http.Request) error {
	id, err := integrationIDParam(req)
	if err != nil {
		return err
	}
	i, err := r.integrationsSvc.Get(req.Context(), middleware.GetUserID(req.Context()), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, masked(i))
}

// DELETE /api/integrations/{id}
func (r *Router) handleDeleteIntegration(w http.ResponseWriter, req *http.Request) error {
	id, err := integrationIDParam(req)
	if err != nil {
		return err
	}
	if err := r.integrationsSvc.Delete(req.Context(), middleware.GetUserID(req.Context()), id); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// POST /api/integrations/{id}/trigger
func (r *Router) handleTriggerPipeline(w http.ResponseWriter, req *http.Request) error {
	id, err := integrationIDParam(req)
	if err != nil {
		return err
	}
	var params domain.TriggerParams
	if req.Body != nil && req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
			return badRequest("invalid request body")
		}
	}

	out, err := r.integrationsSvc.Trigger(req.Context(), middleware.GetUserID(req.Context()), id, params)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, out)
}

// POST /api/integrations/{id}/list-resources
func (r *Router) handleListPipelineResources(w http.ResponseWriter, req *http.Request) error {
	id, err := integrationIDParam(req)
	if err != nil {
		return err
	}
	out, err := r.integrationsSvc.ListResources(req.Context(), middleware.GetUserID(req.Context()), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"resources": out})
}

// POST /api/integrations/webhook/{token}
// Called by CI/CD systems after a build publishes an artifact. Authenticated
// by the unguessable token alone.
func (r *Router) handleWebhook(w http.ResponseWriter, req *http.Request) error {
	token := chi.URLParam(req, "token")
	i, err := r.integrationsSvc.ResolveWebhook(req.Context(), token)
	if err != nil {
		// Don't leak whether the token exists.
		http.Error(w, "invalid webhook token", http.StatusUnauthorized)
		return nil
	}

	var payload domain.WebhookPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		return badRequest("invalid request body")
	}
	if payload.ArtifactURL == "" {
		return badRequest("artifact_url is required")
	}
	if err := middleware.ValidateArtifactURL(payload.ArtifactURL); err != nil {
		return badRequest(err.Error())
	}

	src := strings.ToLower(payload.Source)
	source := scansdomain.Source(src)
	if !scansdomain.ValidSource(src) || source == scansdomain.SourceUpload {
		source = scansdomain.Source(i.Type)
	}

	scan, err := r.scansSvc.IngestRemote(req.Context(), i.UserID,
		payload.ArtifactURL, middleware.SanitizeString(payload.ProjectName), source)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, scan)
}
