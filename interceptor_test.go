package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterceptorChain(t *testing.T) {
	var seen []string
	mk := func(name string, claim bool) Interceptor {
		return NewInterceptor(func(*Message, Responder) bool {
			seen = append(seen, name)
			return claim
		})
	}
	a, b, c := mk("a", false), mk("b", true), mk("c", false)

	var chain interceptorChain
	assert.True(t, chain.add(a))
	assert.True(t, chain.add(b))
	assert.True(t, chain.add(c))
	assert.False(t, chain.add(a))

	assert.True(t, chain.process(NewRequest("x"), nil))
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	seen = nil
	assert.True(t, chain.remove(b))
	assert.False(t, chain.remove(b))
	assert.False(t, chain.process(NewRequest("x"), nil))
	assert.Equal(t, []string{"a", "c"}, seen)
}

func TestInterceptorAnswersLocally(t *testing.T) {
	tr := newFakeTransport()
	s := newTestService(t, tr)

	local := NewInterceptor(func(msg *Message, r Responder) bool {
		if msg.Name != "get_local_volume" {
			return false
		}
		r.Respond(&Message{Name: msg.Name, Type: TypeResponse, ID: msg.ID, Options: map[string]any{"volume": 7}})
		return true
	})

	results := &msgRecorder{}
	var id int64
	onLoop(t, s, func() {
		s.AddInterceptor(local)
		s.AddInterceptor(local)
		// Works without a connection.
		id, _ = s.SendWithCallback(NewRequest("get_local_volume"), detachedClient, results.record, nil)
		// The reply is not delivered before the send returns.
		assert.Empty(t, results.all())
	})
	assert.Positive(t, id)
	require.Eventually(t, func() bool { return len(results.all()) == 1 }, waitFor, tick)
	assert.Equal(t, int64(7), results.all()[0].IntOption("volume", 0))

	t.Run("removed interceptor no longer claims", func(t *testing.T) {
		onLoop(t, s, func() {
			s.RemoveInterceptor(local)
			assert.Equal(t, int64(-1), s.Send(NewRequest("get_local_volume")))
		})
	})
}

func TestInterceptorSuppressesTransport(t *testing.T) {
	tr := newFakeTransport()
	s := newTestService(t, tr)
	c := &recordingClient{}
	conn := connected(t, s, tr, c)

	respond := func(from string) Interceptor {
		return NewInterceptor(func(msg *Message, r Responder) bool {
			r.Respond(&Message{Name: msg.Name, Type: TypeResponse, ID: msg.ID, Options: map[string]any{"from": from}})
			return msg.Name == "local"
		})
	}
	results := &msgRecorder{}
	onLoop(t, s, func() {
		s.AddInterceptor(respond("a"))
		s.AddInterceptor(respond("b"))
		_, _ = s.SendWithCallback(NewRequest("local"), c, results.record, nil)
	})

	require.Eventually(t, func() bool { return len(results.all()) == 1 && len(c.received()) >= 1 }, waitFor, tick)
	assert.Equal(t, "a", results.all()[0].StringOption("from", ""))
	assert.Equal(t, "b", c.received()[0].StringOption("from", ""))
	assert.Empty(t, conn.sentNamed("local"))
}
