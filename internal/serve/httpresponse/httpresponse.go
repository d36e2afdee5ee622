// Package httpresponse renders the success envelope: {data, meta?}.
package httpresponse

import (
	"encoding/json"
	"net/http"

	"github.com/opsplane/opsplane-backend/pkg/log"
)

// Meta carries pagination details alongside list payloads.
type Meta struct {
	Page     int `json:"page,omitempty"`
	PageSize int `json:"pageSize,omitempty"`
	Total    int `json:"total,omitempty"`
}

type envelope struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

// Render writes the payload wrapped in the success envelope.
func Render(w http.ResponseWriter, statusCode int, data any) {
	RenderWithMeta(w, statusCode, data, nil)
}

func RenderWithMeta(w http.ResponseWriter, statusCode int, data any, meta *Meta) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(envelope{Data: data, Meta: meta}); err != nil {
		log.Errorf("writing response: %v", err)
	}
}
