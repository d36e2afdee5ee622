package httphandler

import (
	"net/http"

	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
)

// HealthHandler implements the liveness probe.
type HealthHandler struct {
	Version   string
	ServiceID string
	GitCommit string
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	ServiceID string `json:"service_id,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

func (h HealthHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	httpresponse.Render(rw, http.StatusOK, healthResponse{
		Status:    "pass",
		Version:   h.Version,
		ServiceID: h.ServiceID,
		GitCommit: h.GitCommit,
	})
}
