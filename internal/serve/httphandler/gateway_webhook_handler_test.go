package httphandler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsplane/opsplane-backend/internal/webhook"
)

func Test_GatewayWebhookHandler_Receive_rejectsBeforeTouchingTheDatabase(t *testing.T) {
	const secret = "gw-shared-secret"

	// Models is nil on purpose: every case below must be rejected before the
	// handler reaches the database.
	handler := GatewayWebhookHandler{ProviderSecrets: map[string]string{"acme": secret}}
	r := chi.NewRouter()
	r.Post("/webhooks/incoming/{provider}", handler.Receive)

	signedHeaders := func(body string) map[string]string {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		return map[string]string{
			webhook.TimestampHeader: ts,
			webhook.SignatureHeader: webhook.Sign(secret, ts, body),
		}
	}

	testCases := []struct {
		name           string
		provider       string
		body           string
		headers        map[string]string
		wantStatusCode int
		wantInBody     string
	}{
		{
			name:           "🔴 unknown provider",
			provider:       "unknown",
			body:           `{}`,
			wantStatusCode: http.StatusNotFound,
		},
		{
			name:           "🔴 missing signature headers",
			provider:       "acme",
			body:           `{"providerAccountId":"acct-1","payoutId":"po-1","status":"completed"}`,
			wantStatusCode: http.StatusUnauthorized,
			wantInBody:     "invalid webhook signature",
		},
		{
			name:     "🔴 signature computed with the wrong secret",
			provider: "acme",
			body:     `{"providerAccountId":"acct-1","payoutId":"po-1","status":"completed"}`,
			headers: map[string]string{
				webhook.TimestampHeader: strconv.FormatInt(time.Now().Unix(), 10),
				webhook.SignatureHeader: webhook.Sign("another-secret", strconv.FormatInt(time.Now().Unix(), 10), `{"providerAccountId":"acct-1","payoutId":"po-1","status":"completed"}`),
			},
			wantStatusCode: http.StatusUnauthorized,
			wantInBody:     "invalid webhook signature",
		},
		{
			name:           "🔴 stale timestamp",
			provider:       "acme",
			body:           `{"providerAccountId":"acct-1","payoutId":"po-1","status":"completed"}`,
			headers:        staleHeaders(secret, `{"providerAccountId":"acct-1","payoutId":"po-1","status":"completed"}`),
			wantStatusCode: http.StatusUnauthorized,
			wantInBody:     "invalid webhook signature",
		},
		{
			name:           "🔴 valid signature over malformed JSON",
			provider:       "acme",
			body:           `{not json`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "🔴 valid signature but missing payoutId",
			provider:       "acme",
			body:           `{"providerAccountId":"acct-1","status":"completed"}`,
			wantStatusCode: http.StatusBadRequest,
			wantInBody:     "providerAccountId and payoutId are required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/webhooks/incoming/%s", tc.provider), strings.NewReader(tc.body))
			headers := tc.headers
			if headers == nil && tc.wantStatusCode != http.StatusNotFound && tc.wantStatusCode != http.StatusUnauthorized {
				headers = signedHeaders(tc.body)
			}
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			require.Equal(t, tc.wantStatusCode, rr.Code)
			if tc.wantInBody != "" {
				assert.Contains(t, rr.Body.String(), tc.wantInBody)
			}
		})
	}
}

func staleHeaders(secret, body string) map[string]string {
	ts := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	return map[string]string{
		webhook.TimestampHeader: ts,
		webhook.SignatureHeader: webhook.Sign(secret, ts, body),
	}
}
