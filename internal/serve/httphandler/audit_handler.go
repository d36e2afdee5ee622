package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/opsplane/opsplane-backend/internal/audit"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
)

type AuditHandler struct {
	Models       *data.Models
	AuditService *audit.Service
}

type auditLogResponse struct {
	ID             string          `json:"id"`
	SequenceNumber int64           `json:"sequenceNumber"`
	Hash           string          `json:"hash"`
	PreviousHash   string          `json:"previousHash,omitempty"`
	Action         string          `json:"action"`
	EntityName     string          `json:"entityName"`
	EntityID       string          `json:"entityId"`
	OldValues      json.RawMessage `json:"oldValues,omitempty"`
	NewValues      json.RawMessage `json:"newValues,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	IP             string          `json:"ip,omitempty"`
	Method         string          `json:"method,omitempty"`
	Path           string          `json:"path,omitempty"`
	StatusCode     int             `json:"statusCode,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func (h AuditHandler) List(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	page, pageLimit := parsePagination(req)

	query := req.URL.Query()
	logs, err := h.Models.AuditLogs.GetAll(ctx, data.AuditLogQueryParams{
		Action:     query.Get("action"),
		EntityName: query.Get("entity_name"),
		EntityID:   query.Get("entity_id"),
		UserID:     query.Get("user_id"),
		Page:       page,
		PageLimit:  pageLimit,
	})
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	out := make([]auditLogResponse, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		out = append(out, auditLogResponse{
			ID:             l.ID,
			SequenceNumber: l.SequenceNumber,
			Hash:           l.Hash,
			PreviousHash:   l.PreviousHash.String,
			Action:         l.Action,
			EntityName:     l.EntityName,
			EntityID:       l.EntityID,
			OldValues:      l.OldValues,
			NewValues:      l.NewValues,
			UserID:         l.UserID.String,
			IP:             l.IP,
			Method:         l.Method,
			Path:           l.Path,
			StatusCode:     l.StatusCode,
			CreatedAt:      l.CreatedAt,
		})
	}
	httpresponse.RenderWithMeta(rw, http.StatusOK, out, &httpresponse.Meta{Page: page, PageSize: pageLimit})
}

// Verify walks the tenant's hash chain and reports the first break, if any.
func (h AuditHandler) Verify(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	tenantID, err := tenantctx.Require(ctx)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	report, err := h.AuditService.VerifyChain(ctx, tenantID)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, report)
}
