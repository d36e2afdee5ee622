package message

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Message_Validate(t *testing.T) {
	valid := Message{ToEmail: "a@b.co", Subject: "hello", HTML: "<p>hi</p>"}
	assert.NoError(t, valid.Validate())

	m := valid
	m.ToEmail = "  "
	assert.EqualError(t, m.Validate(), "message is missing a recipient email")

	m = valid
	m.Subject = ""
	assert.EqualError(t, m.Validate(), "message is missing a subject")

	m = valid
	m.HTML = ""
	assert.EqualError(t, m.Validate(), "message is missing a body")
}

func Test_ParseMessengerType(t *testing.T) {
	got, err := ParseMessengerType("aws_email")
	require.NoError(t, err)
	assert.Equal(t, MessengerTypeAWSEmail, got)

	got, err = ParseMessengerType("")
	require.NoError(t, err)
	assert.Equal(t, MessengerTypeDryRun, got)

	_, err = ParseMessengerType("CARRIER_PIGEON")
	assert.EqualError(t, err, `invalid messenger type "CARRIER_PIGEON"`)
}

func Test_RenderTemplate_locale_fallback(t *testing.T) {
	payload := map[string]any{"Name": "Ana", "TenantName": "Acme"}

	html, err := RenderTemplate("welcome", "es", payload)
	require.NoError(t, err)
	assert.Contains(t, html, "Hola Ana")

	// No French translation: falls back to English.
	html, err = RenderTemplate("welcome", "fr-FR", payload)
	require.NoError(t, err)
	assert.Contains(t, html, "Hi Ana")

	_, err = RenderTemplate("nonexistent", "en", payload)
	assert.Error(t, err)
}

func Test_RenderTemplate_escapes_html(t *testing.T) {
	html, err := RenderTemplate("welcome", "en", map[string]any{
		"Name":       "<script>alert(1)</script>",
		"TenantName": "Acme",
	})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func Test_DryRunClient_SendMessage(t *testing.T) {
	client := NewDryRunClient()
	assert.Equal(t, MessengerTypeDryRun, client.MessengerType())

	err := client.SendMessage(context.Background(), Message{ToEmail: "a@b.co", Subject: "s", HTML: "<p>x</p>"})
	assert.NoError(t, err)

	err = client.SendMessage(context.Background(), Message{})
	assert.Error(t, err)
}
