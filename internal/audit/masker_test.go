package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_MaskSensitiveValues(t *testing.T) {
	input := map[string]any{
		"email":         "ops@example.com",
		"Password":      "hunter2",
		"password_hash": "$argon2id$...",
		"api_key":       "sk_live_abc",
		"amount":        "120.50",
		"nested": map[string]any{
			"refresh_token": "tok_123",
			"note":          "keep",
		},
		"items": []any{
			map[string]any{"card_number": "4242424242424242", "qty": 2},
			"plain",
		},
	}

	got := MaskSensitiveValues(input)

	assert.Equal(t, "ops@example.com", got["email"])
	assert.Equal(t, maskedValue, got["Password"])
	assert.Equal(t, maskedValue, got["password_hash"])
	assert.Equal(t, maskedValue, got["api_key"])
	assert.Equal(t, "120.50", got["amount"])

	nested := got["nested"].(map[string]any)
	assert.Equal(t, maskedValue, nested["refresh_token"])
	assert.Equal(t, "keep", nested["note"])

	items := got["items"].([]any)
	assert.Equal(t, maskedValue, items[0].(map[string]any)["card_number"])
	assert.Equal(t, 2, items[0].(map[string]any)["qty"])
	assert.Equal(t, "plain", items[1])

	// input untouched
	assert.Equal(t, "hunter2", input["Password"])
}

func Test_MaskSensitiveValues_nil(t *testing.T) {
	assert.Nil(t, MaskSensitiveValues(nil))
}
