package httphandler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_validateWebhookURL(t *testing.T) {
	testCases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "🟢 https URL", url: "https://hooks.example.com/opsplane", wantErr: false},
		{name: "🟢 https URL with port and query", url: "https://hooks.example.com:8443/cb?src=opsplane", wantErr: false},
		{name: "🔴 http is not allowed", url: "http://hooks.example.com/opsplane", wantErr: true},
		{name: "🔴 relative URL", url: "/opsplane", wantErr: true},
		{name: "🔴 missing host", url: "https://", wantErr: true},
		{name: "🔴 empty", url: "", wantErr: true},
		{name: "🔴 not a URL at all", url: "::::", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			httpErr := validateWebhookURL(tc.url)
			if tc.wantErr {
				require.NotNil(t, httpErr)
				assert.Equal(t, "url must be an absolute https URL", httpErr.Message)
			} else {
				assert.Nil(t, httpErr)
			}
		})
	}
}
