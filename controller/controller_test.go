package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/buildrun/grid"
	"github.com/lixenwraith/buildrun/message"
	"github.com/lixenwraith/buildrun/network"
	"github.com/lixenwraith/buildrun/obstacle"
	"github.com/lixenwraith/buildrun/physics"
	"github.com/lixenwraith/buildrun/spawn"
	"github.com/lixenwraith/buildrun/visual"
)

const step = time.Second / 60

var (
	spawnA = spawn.Position{X: 2, Y: 8}
	spawnB = spawn.Position{X: 10, Y: 8}
	spawnC = spawn.Position{X: 18, Y: 8}
	pool   = []spawn.Position{spawnA, spawnB, spawnC}
)

// fakeNet is a scripted channel: tests queue inbound envelopes and inspect sends
type fakeNet struct {
	local     string
	authority string
	players   int
	inbox     []message.Envelope
	sent      []message.Message
	seq       map[string]uint32
}

func newFakeNet(local, authority string, players int) *fakeNet {
	return &fakeNet{local: local, authority: authority, players: players, seq: make(map[string]uint32)}
}

func (f *fakeNet) IsInAvailable() bool { return len(f.inbox) > 0 }

func (f *fakeNet) PopInEvent() (message.Envelope, bool) {
	if len(f.inbox) == 0 {
		return message.Envelope{}, false
	}
	env := f.inbox[0]
	f.inbox = f.inbox[1:]
	return env, true
}

func (f *fakeNet) PushOutEvent(m message.Message) error {
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeNet) LocalID() string       { return f.local }
func (f *fakeNet) PlayerCount() int      { return f.players }
func (f *fakeNet) IsAuthoritative() bool { return f.local == f.authority }
func (f *fakeNet) AuthorityID() string   { return f.authority }

func (f *fakeNet) deliver(sender string, m message.Message) {
	f.seq[sender]++
	f.inbox = append(f.inbox, message.Envelope{Sender: sender, Seq: f.seq[sender], Msg: m})
}

func newController(t *testing.T, n Network) *Controller {
	t.Helper()
	sel, err := spawn.NewSelector(pool, spawn.NewRand(2024))
	require.NoError(t, err)
	cfg := DefaultConfig()
	return New(cfg, n, sel, visual.DefaultCatalog(), nil)
}

func createMsg(t *testing.T, id obstacle.TypeID, p obstacle.Params) message.Create {
	t.Helper()
	b, err := obstacle.EncodeParams(p)
	require.NoError(t, err)
	return message.Create{Type: uint8(id), Params: b}
}

func TestCreateNetworked_BroadcastsAndTracks(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)

	p := obstacle.PlatformParams{X: 3, Y: 4, W: 2, H: 2, Scale: 1}
	o, err := c.CreatePlatformNetworked(p)
	require.NoError(t, err)
	assert.Equal(t, 1, c.World().Len())
	assert.Equal(t, []*obstacle.Obstacle{o}, c.Objects())
	assert.False(t, c.CanPlace(grid.Cell{X: 2, Y: 3}, 1, 1))

	require.Len(t, n.sent, 1)
	assert.Equal(t, createMsg(t, obstacle.TypePlatform, p), n.sent[0])
	assert.Equal(t, uint64(1), c.Stats().Created)
}

func TestCreateEvent_BuildsRemoteObstacle(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)

	n.deliver("host", createMsg(t, obstacle.TypeMovingPlatform,
		obstacle.MovingPlatformParams{X: 0, Y: 0, W: 2, H: 1, EndX: 6, Speed: 3, Scale: 1}))
	n.deliver("host", createMsg(t, obstacle.TypeTreasure, obstacle.TreasureParams{X: 2, Y: 8, W: 1, H: 1, Scale: 1}))
	c.FixedUpdate(step)

	objs := c.Objects()
	require.Len(t, objs, 2)
	assert.Equal(t, obstacle.KindMovingPlatform, objs[0].Kind)
	assert.NotNil(t, c.Treasure())
	assert.Equal(t, uint64(2), c.Stats().Remote)
	assert.Empty(t, n.sent, "remote creates are not re-broadcast")
}

func TestCreateAndRemoteCreateMatch(t *testing.T) {
	hostNet := newFakeNet("host", "host", 2)
	peerNet := newFakeNet("p1", "host", 2)
	host := newController(t, hostNet)
	peer := newController(t, peerNet)

	_, err := host.CreateMovingPlatformNetworked(obstacle.MovingPlatformParams{X: 1.5, Y: -2, W: 3, H: 0.5, EndX: 9.25, EndY: 4, Speed: 2.5, Scale: 1})
	require.NoError(t, err)
	_, err = host.CreateHazardNetworked(obstacle.HazardParams{X: 4, Y: 0.5, W: 1, H: 1})
	require.NoError(t, err)
	_, err = host.CreateBoostNetworked(obstacle.BoostParams{X: 7, Y: 0.5, W: 1, H: 1, Scale: 2})
	require.NoError(t, err)

	for _, m := range hostNet.sent {
		peerNet.deliver("host", m)
	}
	peer.FixedUpdate(step)
	host.FixedUpdate(step)
	for range 120 {
		peer.FixedUpdate(step)
		host.FixedUpdate(step)
	}
	assert.Equal(t, host.World().Digest(), peer.World().Digest())
}

func TestWrongPhase(t *testing.T) {
	c := newController(t, newFakeNet("p1", "host", 2))
	c.phase = PhasePost

	_, err := c.CreateHazardNetworked(obstacle.HazardParams{W: 1, H: 1})
	assert.ErrorIs(t, err, ErrWrongPhase)
	assert.ErrorIs(t, c.Signal(message.TagBuildReady), ErrWrongPhase)
	_, err = c.PlaceObject(obstacle.HazardParams{W: 1, H: 1})
	assert.ErrorIs(t, err, ErrWrongPhase)
	assert.Zero(t, c.World().Len())

	c.phase = PhasePre
	assert.ErrorIs(t, c.ProcessMessageEvent("x", message.NewSignal(message.TagBuildReady)), ErrWrongPhase)
	assert.Zero(t, c.Facts().ReadyCount)
}

func TestDuplicatesSuppressed(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)

	n.deliver("p2", message.NewSignal(message.TagBuildReady))
	n.deliver("p2", message.NewSignal(message.TagBuildReady))
	dup := n.inbox[0]
	n.inbox = append(n.inbox, dup, n.inbox[1])
	c.FixedUpdate(step)

	assert.Equal(t, 2, c.Facts().ReadyCount)
	assert.Equal(t, uint64(2), c.Stats().Duplicates)

	// independent sender sequences
	n.deliver("p3", message.NewSignal(message.TagBuildReady))
	c.FixedUpdate(step)
	assert.Equal(t, 3, c.Facts().ReadyCount)
}

func TestUnknownTagsLeaveFactsUnchanged(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)
	before := c.Snapshot()

	for i := range 5 {
		n.deliver("p2", message.Unknown{Raw: message.Tag(0x70 + i)})
	}
	c.FixedUpdate(step)

	assert.Equal(t, before, c.Snapshot())
	assert.Equal(t, uint64(5), c.Stats().Unknown)
}

func TestMalformedAndUnregisteredCreateDropped(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)

	good := createMsg(t, obstacle.TypeHazard, obstacle.HazardParams{W: 1, H: 1})
	n.deliver("p2", message.Create{Type: good.Type, Params: good.Params[:3]})
	n.deliver("p2", message.Create{Type: 200, Params: good.Params})
	n.deliver("p2", good)
	c.FixedUpdate(step)

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Malformed)
	assert.Equal(t, uint64(1), st.ConfigErrors)
	assert.Equal(t, uint64(1), st.Remote)
	assert.Len(t, c.Objects(), 1)
}

func TestSpawnFromNonAuthorityRejected(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)
	_, err := c.CreateTreasureNetworked(obstacle.TreasureParams{X: spawnA.X, Y: spawnA.Y, W: 1, H: 1})
	require.NoError(t, err)

	n.deliver("p2", message.TreasureSpawn{X: 99, Y: 99})
	c.FixedUpdate(step)
	assert.Equal(t, uint64(1), c.Stats().Unauthorized)
	assert.Equal(t, spawnA, c.Facts().TreasurePos)

	n.deliver("host", message.TreasureSpawn{X: spawnC.X, Y: spawnC.Y})
	c.FixedUpdate(step)
	assert.Equal(t, spawnC, c.Facts().TreasurePos)
	assert.InDelta(t, float64(spawnC.X), physics.ToFloat(c.Treasure().Body.X), 1e-6)
}

func TestTreasureTakenThenStolen(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)

	require.NoError(t, c.AssignColor("p1", message.ColorRed))
	me, err := c.CreatePlayerNetworked(obstacle.PlayerParams{X: 5, Y: 1, Scale: 1, Color: message.ColorRed})
	require.NoError(t, err)
	tr, err := c.CreateTreasureNetworked(obstacle.TreasureParams{X: spawnA.X, Y: spawnA.Y, W: 1, H: 1, Scale: 1})
	require.NoError(t, err)

	require.NoError(t, c.Signal(message.TagTreasureTaken))
	assert.True(t, c.Facts().TreasureTaken)
	assert.Same(t, me, c.Carrier())
	assert.Equal(t, "treasure.taken", tr.Visual.Asset)

	c.FixedUpdate(step)
	assert.Equal(t, me.Body.X, tr.Body.X)
	assert.Equal(t, me.Body.Y+me.Body.HalfH+tr.Body.HalfH, tr.Body.Y)

	n.deliver("p2", message.NewSignal(message.TagTreasureStolen))
	c.FixedUpdate(step)
	assert.False(t, c.Facts().TreasureTaken)
	assert.Nil(t, c.Carrier())
	assert.Equal(t, "treasure", tr.Visual.Asset)
}

func TestTakenByRemoteColorInferred(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)

	n.deliver("host", message.ColorAssign{PlayerID: "p2", Color: message.ColorBlue})
	n.deliver("p2", createMsg(t, obstacle.TypePlayer, obstacle.PlayerParams{X: 1, Y: 1, Scale: 1, Color: message.ColorBlue}))
	n.deliver("p2", message.NewSignal(message.TagTreasureTaken))
	c.FixedUpdate(step)

	require.NotNil(t, c.Carrier())
	p, ok := c.Carrier().Player()
	require.True(t, ok)
	assert.Equal(t, message.ColorBlue, p.Color)
}

func TestTreasureLostReturnsToLastSpawn(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)
	tr, err := c.CreateTreasureNetworked(obstacle.TreasureParams{X: spawnA.X, Y: spawnA.Y, W: 1, H: 1})
	require.NoError(t, err)
	tr.Body.Teleport(50, 50)

	n.deliver("p2", message.NewSignal(message.TagTreasureLost))
	c.FixedUpdate(step)
	assert.InDelta(t, float64(spawnA.X), physics.ToFloat(tr.Body.X), 1e-6)
	assert.InDelta(t, float64(spawnA.Y), physics.ToFloat(tr.Body.Y), 1e-6)
}

func TestTrySetFilters(t *testing.T) {
	n := newFakeNet("p1", "host", 1)
	c := newController(t, n)
	a, err := c.CreatePlayerNetworked(obstacle.PlayerParams{Color: message.ColorRed})
	require.NoError(t, err)

	assert.False(t, c.TrySetFilters(), "session not full")
	n.players = 2
	assert.False(t, c.TrySetFilters(), "second avatar missing")

	b, err := c.CreatePlayerNetworked(obstacle.PlayerParams{X: 2, Color: message.ColorBlue})
	require.NoError(t, err)
	c.PreUpdate(step)
	assert.True(t, c.TrySetFilters())
	assert.False(t, physics.Filters(a.Body, b.Body))

	late, err := c.CreatePlayerNetworked(obstacle.PlayerParams{X: 4, Color: message.ColorGreen})
	require.NoError(t, err)
	assert.False(t, physics.Filters(a.Body, late.Body))

	hz, err := c.CreateHazardNetworked(obstacle.HazardParams{X: 0, Y: 0, W: 1, H: 1})
	require.NoError(t, err)
	assert.True(t, physics.Filters(a.Body, hz.Body))
}

func TestPlacementLifecycle(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)

	plat := obstacle.PlatformParams{X: 3, Y: 4, W: 2, H: 2, Scale: 1}
	o, err := c.PlaceObject(plat)
	require.NoError(t, err)
	assert.Empty(t, n.sent, "staged placements stay local")
	assert.Equal(t, []*obstacle.Obstacle{o}, c.Pending())

	_, err = c.PlaceObject(obstacle.HazardParams{X: 3.5, Y: 4.5, W: 1, H: 1})
	assert.ErrorIs(t, err, grid.ErrOccupied)

	_, err = c.PlaceObject(obstacle.PlatformParams{X: 3, Y: 4, W: 1, H: 1, Tag: obstacle.PlatformArt})
	require.NoError(t, err, "art overlays never conflict")

	lifted, err := c.MoveObject(grid.Cell{X: 3, Y: 4})
	require.NoError(t, err)
	assert.Same(t, o, lifted)
	assert.True(t, c.CanPlace(grid.Cell{X: 2, Y: 3}, 2, 2))
	assert.Equal(t, 1, c.World().Len())

	plat.X = 8
	_, err = c.PlaceObject(plat)
	require.NoError(t, err)

	require.NoError(t, c.BuildReady())
	require.Len(t, n.sent, 3)
	assert.IsType(t, message.Create{}, n.sent[0])
	assert.IsType(t, message.Create{}, n.sent[1])
	assert.Equal(t, message.NewSignal(message.TagBuildReady), n.sent[2])
	assert.Empty(t, c.Pending())
	assert.Len(t, c.Objects(), 2)
	assert.Equal(t, 1, c.Facts().ReadyCount)

	_, err = c.MoveObject(grid.Cell{X: 8, Y: 4})
	assert.ErrorIs(t, err, ErrNotMovable)

	removed, ok := c.RemoveWorldObject(grid.Cell{X: 8, Y: 4})
	require.True(t, ok)
	assert.Equal(t, obstacle.KindPlatform, removed.Kind)
	_, ok = c.RemoveWorldObject(grid.Cell{X: 8, Y: 4})
	assert.False(t, ok)
}

func TestResetLevelKeepsAvatars(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)

	player, err := c.CreatePlayerNetworked(obstacle.PlayerParams{Color: message.ColorRed})
	require.NoError(t, err)
	_, err = c.CreatePlatformNetworked(obstacle.PlatformParams{X: 0.5, Y: 0.5, W: 1, H: 1})
	require.NoError(t, err)
	_, err = c.CreateTreasureNetworked(obstacle.TreasureParams{X: 4, Y: 4, W: 1, H: 1})
	require.NoError(t, err)
	_, err = c.PlaceObject(obstacle.HazardParams{X: 6.5, Y: 0.5, W: 1, H: 1})
	require.NoError(t, err)
	n.deliver("host", message.NewSignal(message.TagBuildReady))
	n.deliver("host", message.NewSignal(message.TagResetLevel))
	c.FixedUpdate(step)

	assert.Equal(t, []*obstacle.Obstacle{player}, c.Objects())
	assert.Empty(t, c.Pending())
	assert.Nil(t, c.Treasure())
	assert.Equal(t, 1, c.World().Len())
	assert.True(t, c.CanPlace(grid.Cell{X: 0, Y: 0}, 1, 1))
	f := c.Facts()
	assert.False(t, f.LevelReset)
	assert.Zero(t, f.ReadyCount)
}

func TestSubmitRunsInFixedPhase(t *testing.T) {
	c := newController(t, newFakeNet("p1", "host", 2))
	var seen Phase
	require.True(t, c.Submit(func(c *Controller) {
		seen = c.Phase()
		_, err := c.CreateHazardNetworked(obstacle.HazardParams{W: 1, H: 1})
		assert.NoError(t, err)
	}))
	assert.Zero(t, c.World().Len())

	c.FixedUpdate(step)
	assert.Equal(t, PhaseFixed, seen)
	assert.Equal(t, 1, c.World().Len())
	assert.Equal(t, PhaseIdle, c.Phase())
}

func TestPostUpdateInterpolates(t *testing.T) {
	c := newController(t, newFakeNet("p1", "host", 2))
	o, err := c.CreateMovingPlatformNetworked(obstacle.MovingPlatformParams{W: 1, H: 1, EndX: 10, Speed: 60})
	require.NoError(t, err)
	c.FixedUpdate(step)
	before := c.Snapshot()
	c.PostUpdate(0.5)

	assert.InDelta(t, 0.5, o.Visual.RenderX, 0.01)
	assert.Equal(t, before, c.Snapshot())
	assert.Len(t, c.Items(), 1)
}

type recorder struct{ tags []message.Tag }

func (r *recorder) Observe(_ string, m message.Message) { r.tags = append(r.tags, m.Tag()) }

func TestObserverSeesAppliedFacts(t *testing.T) {
	n := newFakeNet("p1", "host", 2)
	c := newController(t, n)
	rec := &recorder{}
	c.SetObserver(rec)

	n.deliver("p2", message.NewSignal(message.TagMovementEnd))
	n.deliver("p2", message.TreasureSpawn{X: 1, Y: 1})
	c.FixedUpdate(step)
	assert.Equal(t, []message.Tag{message.TagMovementEnd}, rec.tags)
}

// The host wins the treasure three times in a row; the mirror peer must follow every respawn
func TestTwoPeerTreasureScenario(t *testing.T) {
	lb := network.NewLoopback(nil)
	hostLink := lb.Join("host")
	peerLink := lb.Join("p1")
	host := newController(t, hostLink)
	peer := newController(t, peerLink)

	frame := func() {
		host.FixedUpdate(step)
		peer.FixedUpdate(step)
	}

	_, err := host.CreateTreasureNetworked(obstacle.TreasureParams{X: spawnA.X, Y: spawnA.Y, W: 1, H: 1, Scale: 1})
	require.NoError(t, err)
	frame()
	require.NotNil(t, peer.Treasure())

	var picks []spawn.Position
	for range 6 {
		require.NoError(t, host.Signal(message.TagTreasureWon))
		frame()

		hf, pf := host.Facts(), peer.Facts()
		picks = append(picks, hf.LastSpawn)
		assert.Equal(t, hf.LastSpawn, pf.LastSpawn)
		assert.Equal(t, hf.TreasurePos, pf.TreasurePos)
		assert.Equal(t, host.Treasure().Body.X, peer.Treasure().Body.X)
		assert.Equal(t, host.Treasure().Body.Y, peer.Treasure().Body.Y)
	}

	assert.NotEqual(t, spawnA, picks[0], "first respawn repeats the initial spawn")
	history := append([]spawn.Position{spawnA}, picks...)
	for i := 1; i < len(history); i++ {
		assert.NotEqual(t, history[i-1], history[i], "pick %d repeats", i)
	}
	// each cycle starts from the spawn that closed the previous one
	assert.ElementsMatch(t, pool, history[0:3])
	assert.ElementsMatch(t, pool, history[2:5])
	assert.ElementsMatch(t, pool, history[4:7])

	assert.Equal(t, host.World().Digest(), peer.World().Digest())
	assert.Zero(t, peer.Stats().Unauthorized)
}

// A mirror peer's win is resolved by the host and mirrored back
func TestMirrorWinResolvedByHost(t *testing.T) {
	lb := network.NewLoopback(nil)
	host := newController(t, lb.Join("host"))
	peer := newController(t, lb.Join("p1"))

	_, err := host.CreateTreasureNetworked(obstacle.TreasureParams{X: spawnA.X, Y: spawnA.Y, W: 1, H: 1})
	require.NoError(t, err)
	peer.FixedUpdate(step)

	require.NoError(t, peer.Signal(message.TagTreasureWon))
	assert.Equal(t, spawnA, peer.Facts().TreasurePos, "mirror waits for the host's pick")

	host.FixedUpdate(step)
	peer.FixedUpdate(step)
	assert.NotEqual(t, spawnA, peer.Facts().TreasurePos)
	assert.Equal(t, host.Facts().TreasurePos, peer.Facts().TreasurePos)
}

func TestDuplicatingChannelConverges(t *testing.T) {
	lb := network.NewLoopback(nil)
	lb.SetDuplicate(true)
	host := newController(t, lb.Join("host"))
	peer := newController(t, lb.Join("p1"))

	_, err := host.CreatePlatformNetworked(obstacle.PlatformParams{X: 1, Y: 1, W: 2, H: 1})
	require.NoError(t, err)
	require.NoError(t, host.Signal(message.TagBuildReady))
	require.NoError(t, peer.Signal(message.TagBuildReady))
	host.FixedUpdate(step)
	peer.FixedUpdate(step)

	assert.Len(t, peer.Objects(), 1)
	assert.Equal(t, 2, host.Facts().ReadyCount)
	assert.Equal(t, 2, peer.Facts().ReadyCount)
	assert.Equal(t, host.Snapshot(), peer.Snapshot())
	assert.Equal(t, uint64(2), peer.Stats().Duplicates)
}
