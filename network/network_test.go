package network

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lixenwraith/buildrun/codec"
	"github.com/lixenwraith/buildrun/message"
)

func TestFrame_StreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	frames := []Frame{
		HelloFrame("p1"),
		WelcomeFrame(Welcome{Authority: "host", Players: 3}),
		RosterFrame(2),
		{Type: FrameHeartbeat},
	}
	for _, f := range frames {
		require.NoError(t, f.Encode(&buf))
	}

	hello, err := DecodeFrame(&buf)
	require.NoError(t, err)
	id, err := ParseHello(hello)
	require.NoError(t, err)
	assert.Equal(t, "p1", id)

	welcome, err := DecodeFrame(&buf)
	require.NoError(t, err)
	w, err := ParseWelcome(welcome)
	require.NoError(t, err)
	assert.Equal(t, Welcome{Authority: "host", Players: 3}, w)

	roster, err := DecodeFrame(&buf)
	require.NoError(t, err)
	n, err := ParseRoster(roster)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hb, err := DecodeFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, FrameHeartbeat, hb.Type)
	assert.Empty(t, hb.Payload)
}

func TestFrame_Errors(t *testing.T) {
	assert.ErrorIs(t, Frame{Payload: make([]byte, MaxPayload+1)}.Encode(&bytes.Buffer{}), ErrFrameTooLarge)

	_, err := ParseFrame(nil)
	assert.ErrorIs(t, err, codec.ErrMalformed)

	_, err = ParseHello(RosterFrame(1))
	assert.ErrorIs(t, err, codec.ErrMalformed)

	_, err = ParseHello(HelloFrame(""))
	assert.ErrorIs(t, err, codec.ErrMalformed)

	f, err := ParseFrame(WelcomeFrame(Welcome{Authority: "a", Players: 1}).Marshal())
	require.NoError(t, err)
	_, err = ParseWelcome(f)
	assert.NoError(t, err)
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"": RoleNone, "HOST": RoleHost, " peer ": RolePeer, "relay": RoleRelay} {
		got, err := ParseRole(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if want != RoleNone {
			assert.Equal(t, want, mustParse(t, got.String()))
		}
	}
	_, err := ParseRole("server")
	assert.Error(t, err)
}

func mustParse(t *testing.T, s string) Role {
	r, err := ParseRole(s)
	require.NoError(t, err)
	return r
}

func TestNewPeerID(t *testing.T) {
	a, b := NewPeerID(), NewPeerID()
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
}

func TestLoopback_Broadcast(t *testing.T) {
	lb := NewLoopback(nil)
	a := lb.Join("a")
	b := lb.Join("b")
	c := lb.Join("c")

	assert.True(t, a.IsAuthoritative())
	assert.False(t, b.IsAuthoritative())
	assert.Equal(t, "a", c.AuthorityID())
	assert.Equal(t, 3, a.PlayerCount())

	require.NoError(t, b.PushOutEvent(message.NewSignal(message.TagBuildReady)))
	require.NoError(t, b.PushOutEvent(message.TreasureSpawn{X: 1, Y: 2}))

	assert.False(t, b.IsInAvailable(), "sender never hears itself")
	for _, end := range []*LoopbackEnd{a, c} {
		env, ok := end.PopInEvent()
		require.True(t, ok)
		assert.Equal(t, "b", env.Sender)
		assert.Equal(t, uint32(1), env.Seq)
		assert.Equal(t, message.NewSignal(message.TagBuildReady), env.Msg)

		env, ok = end.PopInEvent()
		require.True(t, ok)
		assert.Equal(t, uint32(2), env.Seq)
		assert.Equal(t, message.TreasureSpawn{X: 1, Y: 2}, env.Msg)
	}

	require.NoError(t, c.Close())
	assert.Equal(t, 2, a.PlayerCount())
	assert.ErrorIs(t, c.PushOutEvent(message.NewSignal(message.TagHostStart)), ErrClosed)
}

func TestLoopback_DuplicateAndHold(t *testing.T) {
	lb := NewLoopback(nil)
	a := lb.Join("a")
	b := lb.Join("b")

	lb.SetDuplicate(true)
	lb.Hold("b")
	require.NoError(t, a.PushOutEvent(message.NewSignal(message.TagBuildReady)))
	assert.False(t, b.IsInAvailable())

	lb.Release("b")
	first, ok := b.PopInEvent()
	require.True(t, ok)
	second, ok := b.PopInEvent()
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestOffline(t *testing.T) {
	o := NewOffline("solo")
	assert.True(t, o.IsAuthoritative())
	assert.Equal(t, 1, o.PlayerCount())
	assert.NoError(t, o.PushOutEvent(message.NewSignal(message.TagBuildReady)))
	assert.False(t, o.IsInAvailable())
	assert.NoError(t, o.Close())
}

func testConfig(role Role, id, addr string) *Config {
	cfg := DefaultConfig()
	cfg.Role = role
	cfg.LocalID = id
	cfg.Address = addr
	cfg.HeartbeatInterval = 50 * time.Millisecond
	return cfg
}

func popWithin(t *testing.T, ch Channel) message.Envelope {
	t.Helper()
	var env message.Envelope
	require.Eventually(t, func() bool {
		var ok bool
		env, ok = ch.PopInEvent()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return env
}

func TestTCP_HostRelaysBetweenPeers(t *testing.T) {
	logger := zap.NewNop()
	host, err := ListenHost(testConfig(RoleHost, "host", "127.0.0.1:0"), logger)
	require.NoError(t, err)
	defer host.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	addr := host.Addr().String()
	p1, err := DialHost(ctx, testConfig(RolePeer, "p1", addr), logger)
	require.NoError(t, err)
	defer p1.Close()
	p2, err := DialHost(ctx, testConfig(RolePeer, "p2", addr), logger)
	require.NoError(t, err)
	defer p2.Close()

	assert.True(t, host.IsAuthoritative())
	assert.False(t, p1.IsAuthoritative())
	assert.Equal(t, "host", p2.AuthorityID())
	require.Eventually(t, func() bool {
		return host.PlayerCount() == 3 && p1.PlayerCount() == 3 && p2.PlayerCount() == 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p1.PushOutEvent(message.ColorAssign{PlayerID: "p1", Color: message.ColorRed}))
	for _, ch := range []Channel{host, p2} {
		env := popWithin(t, ch)
		assert.Equal(t, "p1", env.Sender)
		assert.Equal(t, message.ColorAssign{PlayerID: "p1", Color: message.ColorRed}, env.Msg)
	}

	require.NoError(t, host.PushOutEvent(message.TreasureSpawn{X: 4, Y: 5}))
	for _, ch := range []Channel{p1, p2} {
		env := popWithin(t, ch)
		assert.Equal(t, "host", env.Sender)
		assert.Equal(t, message.TreasureSpawn{X: 4, Y: 5}, env.Msg)
	}
	assert.False(t, p1.IsInAvailable())

	require.NoError(t, p2.Close())
	require.Eventually(t, func() bool { return p1.PlayerCount() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestTCP_DuplicateIDRejected(t *testing.T) {
	logger := zap.NewNop()
	host, err := ListenHost(testConfig(RoleHost, "host", "127.0.0.1:0"), logger)
	require.NoError(t, err)
	defer host.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p1, err := DialHost(ctx, testConfig(RolePeer, "p1", host.Addr().String()), logger)
	require.NoError(t, err)
	defer p1.Close()

	_, err = DialHost(ctx, testConfig(RolePeer, "p1", host.Addr().String()), logger)
	assert.ErrorIs(t, err, ErrPeerRejected)
}

func TestOpen_Roles(t *testing.T) {
	link, err := Open(context.Background(), testConfig(RoleNone, "", ""), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, link.LocalID())
	assert.NoError(t, link.Close())

	_, err = Open(context.Background(), testConfig(Role(99), "x", ""), nil)
	assert.Error(t, err)
}
