package inbound

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorAcceptsEveryAction(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	bodies := map[string]string{
		ActionSendMessage:      `{"action":"send_message","data":{"attachments":[{"fileName":"a.png","url":"https://cdn.example.com/a.png"}]}}`,
		ActionCreateChannel:    `{"action":"create_channel","data":{"name":"ops","isPrivate":true}}`,
		ActionCreateDepartment: `{"action":"create_department","data":{"name":"Platform"}}`,
		ActionAddMember:        `{"action":"add_member","data":{"userId":"42","role":"admin"}}`,
	}
	for action, body := range bodies {
		envelope, err := v.Validate([]byte(body))
		require.NoError(t, err, action)
		assert.Equal(t, action, envelope.Action)
	}
}

func TestValidatorRejections(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{name: "not json", body: `{`, field: "body"},
		{name: "unknown action", body: `{"action":"drop_tables","data":{}}`, field: "/action"},
		{name: "missing data", body: `{"action":"send_message"}`, field: "/"},
		{name: "empty message", body: `{"action":"send_message","data":{}}`, field: "/data"},
		{name: "owner role", body: `{"action":"add_member","data":{"userId":"42","role":"owner"}}`, field: "/data/role"},
		{name: "numeric id", body: `{"action":"add_member","data":{"userId":42}}`, field: "/data/userId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate([]byte(tc.body))
			require.ErrorIs(t, err, ErrInvalidPayload)
			var payloadErr *PayloadError
			require.ErrorAs(t, err, &payloadErr)
			assert.Contains(t, fieldPaths(payloadErr), tc.field)
		})
	}
}
