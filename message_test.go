package remote

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	a, b := NewRequest("get_volume"), NewRequest("get_volume")
	assert.Equal(t, TypeRequest, a.Type)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotNil(t, a.Options)
}

func TestMessageEncode(t *testing.T) {
	msg := &Message{Name: "set_volume", Type: TypeRequest, ID: "id-1", DeviceID: "dev"}
	msg.With("volume", 40).With("relative", false)

	text, err := msg.Encode()
	require.NoError(t, err)

	back, err := ParseMessage(text)
	require.NoError(t, err)
	assert.Equal(t, "set_volume", back.Name)
	assert.Equal(t, TypeRequest, back.Type)
	assert.Equal(t, "id-1", back.ID)
	assert.Equal(t, "dev", back.DeviceID)
	assert.Equal(t, int64(40), back.IntOption("volume", -1))
	assert.False(t, back.BoolOption("relative", true))

	t.Run("nil options encode as object", func(t *testing.T) {
		text, err := (&Message{Name: "ping", ID: "p"}).Encode()
		require.NoError(t, err)
		assert.True(t, strings.Contains(text, `"options":{}`), text)
		assert.False(t, strings.Contains(text, "device_id"), text)
	})
}

func TestParseMessage(t *testing.T) {
	t.Run("server reply", func(t *testing.T) {
		msg, err := ParseMessage(`{"name":"authenticate","type":"response","id":"abc","options":{"authenticated":true,"environment":{"api_version":20}}}`)
		require.NoError(t, err)
		assert.Equal(t, RequestAuthenticate, msg.Name)
		assert.Equal(t, TypeResponse, msg.Type)
		assert.True(t, msg.BoolOption("authenticated", false))
		env, ok := msg.Option("environment")
		require.True(t, ok)
		assert.Equal(t, float64(20), env.(map[string]any)["api_version"])
	})

	t.Run("missing options", func(t *testing.T) {
		msg, err := ParseMessage(`{"name":"playback_overview_changed","type":"broadcast","id":"b"}`)
		require.NoError(t, err)
		assert.NotNil(t, msg.Options)
		assert.Equal(t, "fallback", msg.StringOption("state", "fallback"))
	})

	t.Run("invalid", func(t *testing.T) {
		for _, text := range []string{``, `not json`, `{"id":"x"}`, `{"name":"  "}`} {
			_, err := ParseMessage(text)
			assert.Error(t, err, text)
		}
	})
}

func TestAuthenticateRequest(t *testing.T) {
	msg := newAuthenticateRequest("pw", "dev-9")
	assert.Equal(t, RequestAuthenticate, msg.Name)
	assert.Equal(t, "pw", msg.StringOption(OptionPassword, ""))
	assert.Equal(t, "dev-9", msg.DeviceID)
}
