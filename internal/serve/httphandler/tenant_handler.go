package httphandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
)

// TenantHandler serves the public slug resolution used by client portals
// before any authentication happens.
type TenantHandler struct {
	Models *data.Models
}

type tenantResponse struct {
	Slug         string `json:"slug"`
	Status       string `json:"status"`
	BaseCurrency string `json:"baseCurrency"`
}

func (h TenantHandler) ResolveSlug(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	slug := chi.URLParam(req, "slug")

	tenant, err := h.Models.Tenants.GetBySlug(ctx, slug)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	httpresponse.Render(rw, http.StatusOK, tenantResponse{
		Slug:         tenant.Slug,
		Status:       string(tenant.Status),
		BaseCurrency: tenant.BaseCurrency,
	})
}
