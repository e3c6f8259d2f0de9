package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecretKeepsPrefixAndSuffix(t *testing.T) {
	assert.Equal(t, "wst_****cdef", MaskSecret("wst_0123456789abcdef"))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "", MaskSecret("  "))
}

func TestMaskSensitiveOnlyTouchesCredentialKeys(t *testing.T) {
	masked := MaskSensitive(map[string]any{
		"channel_id": "123",
		"secret":     "whsec_0123456789abcdef",
		"nested": map[string]any{
			"token": "tok_zzzzzzzzzzzz1234",
			"count": 3,
		},
		"headers": []any{map[string]any{"x-webhook-signature": "sha256=abc"}},
	})

	assert.Equal(t, "123", masked["channel_id"])
	assert.Equal(t, "whsec_****cdef", masked["secret"])
	nested := masked["nested"].(map[string]any)
	assert.Equal(t, "tok_****1234", nested["token"])
	assert.Equal(t, 3, nested["count"])
	headers := masked["headers"].([]any)
	assert.Equal(t, "****=abc", headers[0].(map[string]any)["x-webhook-signature"])
}
