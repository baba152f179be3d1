package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionPayloadRoundTrip(t *testing.T) {
	cases := []Action{
		{Kind: KindAuthorizeRequest, UserID: 42},
		{Kind: KindIgnoreRequest, UserID: 7},
		{Kind: KindSendPasskey, UserID: 123456789},
		{Kind: KindCancelPasskey, UserID: 1},
	}
	for _, want := range cases {
		payload := want.Payload()
		got, ok := ParseAction(payload)
		require.True(t, ok, "payload %q should parse", payload)
		assert.Equal(t, want, got)
	}
}

func TestActionPayloadWireFormat(t *testing.T) {
	a := Action{Kind: KindSendPasskey, UserID: 42}
	assert.Equal(t, "send_passkey_42", a.Payload())
	assert.Equal(t, "send_passkey", a.Key())
}

func TestParseActionRejectsMalformed(t *testing.T) {
	for _, data := range []string{
		"",
		"authorize_request_",
		"authorize_request_abc",
		"unknown_action_9",
		"send_passkey",
	} {
		_, ok := ParseAction(data)
		assert.False(t, ok, "data %q should not parse", data)
	}
}

func TestParseActionKey(t *testing.T) {
	got, ok := ParseActionKey(KeyCancelPasskey, "99")
	require.True(t, ok)
	assert.Equal(t, Action{Kind: KindCancelPasskey, UserID: 99}, got)

	_, ok = ParseActionKey("bogus_key", "99")
	assert.False(t, ok)

	_, ok = ParseActionKey(KeyAuthorizeRequest, "not-a-number")
	assert.False(t, ok)
}

func TestNoneActionHasNoWireForm(t *testing.T) {
	a := Action{Kind: KindNone, UserID: 5}
	assert.Empty(t, a.Key())
	assert.Empty(t, a.Payload())
}
