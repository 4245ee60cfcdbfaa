package agents

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/talgya/crowdforce/internal/config"
	"github.com/talgya/crowdforce/internal/geom"
	"github.com/talgya/crowdforce/internal/world"
)

func newEnv(w, h int) *Env {
	p := config.Default()
	return &Env{
		Board:  world.New(w, h, p.AgentRadius),
		Crowd:  NewCrowd(),
		Params: p,
		Seed:   42,
	}
}

func spawn(t *testing.T, env *Env, s *Spawner, kind Kind, x, y int) *Agent {
	t.Helper()
	id, err := s.Spawn(env.Crowd, env.Board, env.Params, kind, geom.Point{X: x, Y: y})
	require.NoError(t, err)
	return env.Crowd.Get(id)
}

func TestForceTerms(t *testing.T) {
	n := r2.Vec{X: 1, Y: 0}

	f := InteractForce(n, 6, 6, config.A, config.B)
	assert.InDelta(t, config.A, f.X, 1e-9, "interaction equals A at contact")
	assert.Zero(t, f.Y)

	f = InteractForce(n, 6.4, 6, config.A, config.B)
	assert.InDelta(t, config.A*math.Exp(-1), f.X, 1e-9)

	f = BodyForce(n, 4, 6)
	assert.InDelta(t, 2*config.K, f.X, 1e-9)

	f = SlideForce(n, 4, 6, 0.5)
	assert.InDelta(t, 0, f.X, 1e-9)
	assert.InDelta(t, 2*config.K2*0.5, f.Y, 1e-9, "slide runs along the tangent")
}

func TestSpawnRejectsBadCells(t *testing.T) {
	env := newEnv(30, 30)
	s := NewSpawner(1)

	_, err := s.Spawn(env.Crowd, env.Board, env.Params, KindPassive, geom.Point{X: 30, Y: 5})
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = s.Spawn(env.Crowd, env.Board, env.Params, KindPassive, geom.Point{X: 1, Y: 1})
	assert.ErrorIs(t, err, ErrCellOccupied, "border obstacle")

	a := spawn(t, env, s, KindPoliceman, 10, 10)
	_, err = s.Spawn(env.Crowd, env.Board, env.Params, KindPassive, geom.Point{X: 10, Y: 10})
	assert.ErrorIs(t, err, ErrCellOccupied)

	assert.Equal(t, config.PolicemanMass, a.Mass)
	assert.InDelta(t, 160, a.MaxReaction, 1e-9)
	assert.Equal(t, -1, a.PushedAgo)
	assert.Equal(t, a.Pos, a.Home)
	assert.Equal(t, []AgentID{a.ID}, env.Crowd.Police)
}

func TestPassiveHeadsForTarget(t *testing.T) {
	env := newEnv(50, 50)
	env.Params.Target = geom.Point{X: 40, Y: 20}
	a := spawn(t, env, NewSpawner(1), KindPassive, 20, 20)

	a.UpdateState(env)
	assert.InDelta(t, 1, a.nextVelocity.X, 1e-9)
	assert.InDelta(t, 0, a.nextVelocity.Y, 1e-9)

	require.True(t, a.Commit(env))
	assert.Equal(t, geom.Point{X: 21, Y: 20}, a.Pos)
	assert.Equal(t, world.AgentCell, env.Board.Occupant(21, 20).Kind)
	assert.Zero(t, a.ItersWithoutMove)
}

func TestOverlappingAgentsRepel(t *testing.T) {
	env := newEnv(50, 50)
	env.Params.Target = geom.Point{X: 25, Y: 40}
	s := NewSpawner(1)
	left := spawn(t, env, s, KindPassive, 20, 20)
	right := spawn(t, env, s, KindPassive, 22, 20)
	left.Velocity = r2.Vec{X: 1}
	right.Velocity = r2.Vec{X: -1}

	before := left.Pos.Dist2(right.Pos)
	for _, a := range env.Crowd.Agents {
		a.UpdateState(env)
	}
	for _, a := range env.Crowd.Agents {
		a.Commit(env)
	}

	assert.Negative(t, left.Velocity.X)
	assert.Positive(t, right.Velocity.X)
	assert.Greater(t, left.Pos.Dist2(right.Pos), before)
}

func TestSpeedCapHolds(t *testing.T) {
	env := newEnv(60, 60)
	s := NewSpawner(3)
	s.PlaceAgents(env.Crowd, env.Board, env.Params, geom.Rect{Max: geom.Point{X: 59, Y: 59}})
	s.PlaceGuardsInRows(env.Crowd, env.Board, env.Params, geom.Rect{Min: geom.Point{X: 20, Y: 20}, Max: geom.Point{X: 40, Y: 40}})
	require.Positive(t, env.Crowd.Len())

	for tick := uint64(0); tick < 5; tick++ {
		env.Tick = tick
		for _, a := range env.Crowd.Agents {
			a.ApplyPushForces()
		}
		for _, a := range env.Crowd.Agents {
			a.UpdateState(env)
		}
		for _, a := range env.Crowd.Agents {
			a.Commit(env)
			assert.LessOrEqual(t, r2.Norm(a.Velocity), a.MaxSpeed(env.Params)+1e-9, "agent %d (%v)", a.ID, a.Kind)
		}
	}
}

func TestMoveBlockedCountsAsStuck(t *testing.T) {
	env := newEnv(30, 30)
	s := NewSpawner(1)
	a := spawn(t, env, s, KindPassive, 10, 10)
	spawn(t, env, s, KindPassive, 11, 10)

	a.nextVelocity = r2.Vec{X: 1}
	assert.False(t, a.Commit(env))
	assert.Equal(t, geom.Point{X: 10, Y: 10}, a.Pos)
	assert.Equal(t, 1, a.ItersWithoutMove)

	a.nextVelocity = r2.Vec{X: 0.2}
	assert.False(t, a.Commit(env), "a step that rounds to zero is a stuck tick")
	assert.Equal(t, 2, a.ItersWithoutMove)

	a.nextVelocity = r2.Vec{X: -40}
	assert.False(t, a.Commit(env), "off the board")
	assert.Equal(t, 3, a.ItersWithoutMove)
}

func TestPushProtocol(t *testing.T) {
	env := newEnv(40, 30)
	s := NewSpawner(1)
	tm := spawn(t, env, s, KindTroublemaker, 10, 10)
	cop := spawn(t, env, s, KindPoliceman, 14, 10)
	idle := spawn(t, env, s, KindPassive, 10, 20)
	pusher := spawn(t, env, s, KindModerate, 20, 20)

	tm.Mass = 60
	tm.nextVelocity = r2.Vec{X: 2}
	tm.PushToApply = r2.Vec{X: 10}
	tm.neighbors = []AgentID{cop.ID}

	require.True(t, tm.Commit(env))
	assert.Equal(t, StatePushingPoliceman, tm.State)
	assert.Equal(t, StateIsPushed, cop.State)
	assert.Equal(t, 0, cop.PushedAgo)
	assert.InDelta(t, 2*0.8*60+10, cop.Pushed.X, 1e-9)

	// An idle civilian does not take the push.
	tm.pushSomebody(env, idle)
	assert.Equal(t, StateNone, tm.State)
	assert.Zero(t, idle.Pushed)

	// Someone already mid-push does.
	pusher.State = StatePushingOther
	tm.pushSomebody(env, pusher)
	assert.Equal(t, StatePushingOther, tm.State)
	assert.Positive(t, pusher.Pushed.X)

	tm.pushSomebody(env, nil)
	assert.Equal(t, StateNone, tm.State)
}

func TestZeroVelocityPushHasNoDirection(t *testing.T) {
	env := newEnv(40, 30)
	s := NewSpawner(1)
	tm := spawn(t, env, s, KindTroublemaker, 10, 10)
	cop := spawn(t, env, s, KindPoliceman, 14, 10)
	tm.Velocity = r2.Vec{}

	tm.pushSomebody(env, cop)
	assert.Zero(t, cop.Pushed)
	assert.Equal(t, StateIsPushed, cop.State)
}

func TestApplyPushForces(t *testing.T) {
	env := newEnv(30, 30)
	s := NewSpawner(1)
	cop := spawn(t, env, s, KindPoliceman, 10, 10)
	civ := spawn(t, env, s, KindPassive, 20, 20)

	cop.BePushed(r2.Vec{X: 5})
	cop.chain = []AgentID{civ.ID}
	civ.Pushed = r2.Vec{Y: 3}

	cop.ApplyPushForces()
	civ.ApplyPushForces()

	assert.Equal(t, r2.Vec{X: 5}, cop.PushToApply)
	assert.Zero(t, cop.Pushed)
	assert.True(t, cop.wasPushed)
	assert.Equal(t, 1, cop.PushedAgo)
	assert.Equal(t, StateNone, cop.State)
	assert.Empty(t, cop.Chain())
	assert.Equal(t, r2.Vec{Y: 3}, civ.PushToApply)

	cop.ApplyPushForces()
	assert.False(t, cop.wasPushed)
	assert.Equal(t, 2, cop.PushedAgo)

	fresh := spawn(t, env, s, KindPoliceman, 20, 10)
	fresh.ApplyPushForces()
	assert.Equal(t, -1, fresh.PushedAgo, "never-pushed stays never-pushed")
}

func TestReact(t *testing.T) {
	env := newEnv(30, 30)
	cop := spawn(t, env, NewSpawner(1), KindPoliceman, 10, 10)

	cop.PushToApply = r2.Vec{X: 100}
	assert.Equal(t, r2.Vec{X: -100}, cop.react())
	assert.Zero(t, cop.Pushed)

	cop.PushToApply = r2.Vec{X: 300}
	cop.PushedAgo = -1
	r := cop.react()
	assert.InDelta(t, -160, r.X, 1e-9)
	assert.Zero(t, cop.Pushed, "never pushed: no carry-over")

	cop.PushedAgo = 1
	cop.react()
	assert.InDelta(t, 0.8*140, cop.Pushed.X, 1e-9)
}

func TestPolicemanReturnsToPost(t *testing.T) {
	env := newEnv(40, 40)
	cop := spawn(t, env, NewSpawner(1), KindPoliceman, 20, 20)
	require.NoError(t, env.Board.Move(cop.Pos, geom.Point{X: 22, Y: 20}))
	cop.Pos = geom.Point{X: 22, Y: 20}

	cop.UpdateState(env)
	assert.InDelta(t, -1, cop.nextVelocity.X, 1e-9)
	require.True(t, cop.Commit(env))
	assert.Equal(t, geom.Point{X: 21, Y: 20}, cop.Pos)
}

func policeLine(t *testing.T) (*Env, []*Agent) {
	env := newEnv(40, 30)
	s := NewSpawner(1)
	return env, []*Agent{
		spawn(t, env, s, KindPoliceman, 10, 10),
		spawn(t, env, s, KindPoliceman, 16, 10),
		spawn(t, env, s, KindPoliceman, 22, 10),
	}
}

func totalPush(c *Crowd) r2.Vec {
	var sum r2.Vec
	for _, id := range c.Police {
		sum = r2.Add(sum, c.Get(id).Pushed)
	}
	return sum
}

func TestRelayPassesExcessDownTheLine(t *testing.T) {
	env, line := policeLine(t)
	line[0].BePushed(r2.Vec{X: 300})

	assert.Equal(t, 2, ResolveRelay(env))
	assert.InDelta(t, 160, line[0].Pushed.X, 1e-9)
	assert.InDelta(t, 140, line[1].Pushed.X, 1e-9)
	assert.Zero(t, line[2].Pushed)
	assert.Equal(t, StateNone, line[1].State, "relayed force does not mark the receiver pushed")
	assert.Equal(t, []AgentID{line[0].ID}, line[1].Chain())
}

func TestRelaySpreadsAtEndOfLine(t *testing.T) {
	env, line := policeLine(t)
	line[0].BePushed(r2.Vec{X: 500})
	before := totalPush(env.Crowd)

	assert.Equal(t, 3, ResolveRelay(env))
	assert.Equal(t, []AgentID{line[0].ID, line[1].ID}, line[2].Chain())
	for i, cop := range line {
		assert.InDelta(t, 160+20.0/3, cop.Pushed.X, 1e-9, "policeman %d", i)
	}
	after := totalPush(env.Crowd)
	assert.InDelta(t, before.X, after.X, 1e-9)
	assert.InDelta(t, before.Y, after.Y, 1e-9)
}

func TestRelayUnderCapIsNoop(t *testing.T) {
	env, line := policeLine(t)
	line[0].BePushed(r2.Vec{X: 120})

	assert.Equal(t, 1, ResolveRelay(env))
	assert.InDelta(t, 120, line[0].Pushed.X, 1e-9)
	assert.Zero(t, line[1].Pushed)
}

func TestRelayTerminatesInDenseCluster(t *testing.T) {
	env := newEnv(60, 60)
	s := NewSpawner(1)
	for x := 20; x <= 32; x += 6 {
		for y := 20; y <= 32; y += 6 {
			spawn(t, env, s, KindPoliceman, x, y)
		}
	}
	require.Len(t, env.Crowd.Police, 9)

	for i, id := range env.Crowd.Police {
		angle := float64(i) * 2 * math.Pi / 9
		env.Crowd.Get(id).BePushed(r2.Vec{X: 2000 * math.Cos(angle), Y: 2000 * math.Sin(angle)})
	}
	before := totalPush(env.Crowd)

	n := ResolveRelay(env)
	assert.LessOrEqual(t, n, len(env.Crowd.Police))

	after := totalPush(env.Crowd)
	assert.InDelta(t, before.X, after.X, 1e-6)
	assert.InDelta(t, before.Y, after.Y, 1e-6)
}

func TestPlaceAgentsRespectsHalo(t *testing.T) {
	env := newEnv(50, 50)
	s := NewSpawner(7)
	s.PlaceObstacles(env.Board, geom.Rect{Max: geom.Point{X: 5, Y: 50}})

	n := s.PlaceAgents(env.Crowd, env.Board, env.Params, geom.Rect{Max: geom.Point{X: 50, Y: 50}})
	require.Positive(t, n)
	assert.Equal(t, n, env.Crowd.Len())
	assert.Equal(t, n, env.Board.AgentCount())

	spacing := 2*env.Params.AgentRadius + env.Params.CrowdSparsity
	for i, a := range env.Crowd.Agents {
		assert.Greater(t, a.Pos.X, 8, "agent %d at %v", a.ID, a.Pos)
		assert.Equal(t, world.Occupant{Kind: world.AgentCell, ID: int(a.ID)}, env.Board.Occupant(a.Pos.X, a.Pos.Y))
		for _, b := range env.Crowd.Agents[i+1:] {
			assert.GreaterOrEqual(t, a.Pos.Dist2(b.Pos), spacing*spacing)
		}
		assert.GreaterOrEqual(t, a.Mass, config.MassMin)
		assert.LessOrEqual(t, a.Mass, config.MassMax)
	}

	// The region is exhausted; a second pass places nothing.
	assert.Zero(t, s.PlaceAgents(env.Crowd, env.Board, env.Params, geom.Rect{Max: geom.Point{X: 50, Y: 50}}))
}

func TestPlaceAgentsIsDeterministic(t *testing.T) {
	region := geom.Rect{Min: geom.Point{X: 5, Y: 5}, Max: geom.Point{X: 70, Y: 50}}
	run := func() []View {
		env := newEnv(80, 60)
		NewSpawner(11).PlaceAgents(env.Crowd, env.Board, env.Params, region)
		out := make([]View, 0, env.Crowd.Len())
		for _, a := range env.Crowd.Agents {
			out = append(out, a.View())
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestKindMix(t *testing.T) {
	tests := []struct {
		name     string
		trouble  int
		moderate int
		want     Kind
	}{
		{name: "all troublemakers", trouble: 100, want: KindTroublemaker},
		{name: "all moderate", moderate: 100, want: KindModerate},
		{name: "all passive", want: KindPassive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := config.Default()
			p.TroublemakerPercent = tt.trouble
			p.ModeratePercent = tt.moderate
			s := NewSpawner(5)
			for i := 0; i < 200; i++ {
				assert.Equal(t, tt.want, s.kind(p))
			}
		})
	}
}

func TestPlaceGuardsInRows(t *testing.T) {
	env := newEnv(60, 40)
	s := NewSpawner(1)
	region := geom.Rect{Min: geom.Point{X: 10, Y: 10}, Max: geom.Point{X: 40, Y: 30}}

	n := s.PlaceGuardsInRows(env.Crowd, env.Board, env.Params, region)
	require.Positive(t, n)
	assert.Len(t, env.Crowd.Police, n)

	r := env.Params.AgentRadius
	first := env.Crowd.Get(env.Crowd.Police[0])
	assert.Equal(t, geom.Point{X: 40 - r - 1, Y: 10 + 3*r}, first.Pos, "first column starts at the right edge")
	for _, id := range env.Crowd.Police {
		a := env.Crowd.Get(id)
		assert.Equal(t, KindPoliceman, a.Kind)
		assert.True(t, region.StrictlyInside(a.Pos))
		assert.Zero(t, a.Velocity)
	}
}

func TestPlaceRubble(t *testing.T) {
	env := newEnv(80, 80)
	env.Params.RubbleThreshold = 0.5
	s := NewSpawner(2)
	n := s.PlaceRubble(env.Board, env.Params, geom.Rect{Min: geom.Point{X: 5, Y: 5}, Max: geom.Point{X: 75, Y: 75}})
	assert.Equal(t, 4+n, len(env.Board.ObstacleRects()))
}

type neighbour struct {
	kind Kind
	x, y int
	v    r2.Vec
}

func TestChooseVelocity(t *testing.T) {
	still := []neighbour{{KindPassive, 25, 20, r2.Vec{}}, {KindPassive, 20, 25, r2.Vec{}}}
	drifting := []neighbour{{KindPassive, 25, 20, r2.Vec{Y: 1}}, {KindPassive, 20, 25, r2.Vec{Y: 1}}}
	east := geom.Point{X: 40, Y: 20}

	tests := []struct {
		name   string
		kind   Kind
		target geom.Point
		old    r2.Vec
		stuck  int
		around []neighbour
		want   r2.Vec
	}{
		{name: "passive alone goes straight", kind: KindPassive, target: east, want: r2.Vec{X: 1}},
		{name: "one neighbour is not a flock", kind: KindPassive, target: east, around: drifting[:1], want: r2.Vec{X: 1}},
		{name: "flock average keeps old speed", kind: KindPassive, target: east, old: r2.Vec{X: 0.6, Y: 0.8}, around: drifting, want: r2.Vec{X: 1.0 / 3, Y: 2.0 / 3}},
		{name: "flock average at double speed", kind: KindPassive, target: east, old: r2.Vec{X: 1.2, Y: 1.6}, around: drifting, want: r2.Vec{X: 2.0 / 3, Y: 4.0 / 3}},
		{name: "passive stuck 5 keeps flocking", kind: KindPassive, target: east, stuck: 5, around: still, want: r2.Vec{}},
		{name: "passive stuck 6 breaks out", kind: KindPassive, target: east, stuck: 6, around: still, want: r2.Vec{X: 1}},
		{name: "passive stuck but fast keeps flocking", kind: KindPassive, target: east, old: r2.Vec{X: 1.2}, stuck: 6, around: still, want: r2.Vec{X: 1.2}},
		{name: "moderate alone", kind: KindModerate, target: geom.Point{X: 40, Y: 10}, want: r2.Vec{X: 2 * math.Sqrt(5), Y: -math.Sqrt(5)}},
		{name: "moderate stuck 2 keeps flocking", kind: KindModerate, target: east, stuck: 2, around: still, want: r2.Vec{}},
		{name: "moderate stuck 3 breaks out", kind: KindModerate, target: east, stuck: 3, around: still, want: r2.Vec{X: 5}},
		{name: "moderate stuck but fast keeps flocking", kind: KindModerate, target: east, old: r2.Vec{X: 1.6}, stuck: 3, around: still, want: r2.Vec{X: 1.6}},
		{name: "troublemaker charges", kind: KindTroublemaker, target: east, old: r2.Vec{Y: 2}, around: drifting, want: r2.Vec{X: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(50, 50)
			env.Params.Target = tt.target
			s := NewSpawner(1)
			a := spawn(t, env, s, tt.kind, 20, 20)
			for _, n := range tt.around {
				spawn(t, env, s, n.kind, n.x, n.y).Velocity = n.v
			}
			a.ItersWithoutMove = tt.stuck
			a.findNeighbors(env, a.Pos)
			require.Len(t, a.neighbors, len(tt.around))

			got := behaviors[tt.kind].choose(a, env, tt.old)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
		})
	}
}

func TestPassiveFleesTrouble(t *testing.T) {
	tests := []struct {
		name  string
		other Kind
		flees bool
	}{
		{name: "troublemaker", other: KindTroublemaker, flees: true},
		{name: "policeman", other: KindPoliceman, flees: true},
		{name: "moderate", other: KindModerate, flees: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(50, 50)
			env.Params.Target = geom.Point{X: 40, Y: 20}
			env.Tick = 7
			s := NewSpawner(1)
			a := spawn(t, env, s, KindPassive, 20, 20)
			spawn(t, env, s, tt.other, 24, 20)
			a.findNeighbors(env, a.Pos)

			assert.Equal(t, tt.flees, a.vicinityActive(env))
			got := choosePassive(a, env, r2.Vec{})
			if !tt.flees {
				assert.Equal(t, r2.Vec{X: 1}, got, "a lone neighbour leaves the desired velocity")
				return
			}
			bits := geom.Mix(env.Seed, env.Tick, int(a.ID))
			limit := env.Params.MaxSpeedPassive
			assert.InDelta(t, -2+geom.Bit(bits, 0)*limit, got.X, 1e-9)
			assert.InDelta(t, geom.Bit(bits, 1)*limit, got.Y, 1e-9)
			assert.InDelta(t, limit, math.Abs(got.X+2), 1e-9, "jitter is one cap per axis")
			assert.InDelta(t, limit, math.Abs(got.Y), 1e-9)
		})
	}
}

func TestPoliceAgentForces(t *testing.T) {
	damped := 0.1 * config.A
	tests := []struct {
		name      string
		other     Kind
		x         int
		offPost   bool
		wasPushed bool
		otherV    r2.Vec
		old       r2.Vec
		want      r2.Vec
	}{
		{name: "civilian at contact exerts nothing", other: KindPassive, x: 26},
		{name: "overlapping civilian: body and slide only", other: KindPassive, x: 22, old: r2.Vec{Y: 0.5},
			want: r2.Vec{X: -4 * config.K, Y: 4 * config.K2 * 0.5}},
		{name: "policeman on post", other: KindPoliceman, x: 26, wasPushed: true},
		{name: "policeman off post but not pushed", other: KindPoliceman, x: 26, offPost: true},
		{name: "pushed policeman off post, damped", other: KindPoliceman, x: 26, offPost: true, wasPushed: true,
			want: r2.Vec{X: -damped}},
		{name: "pushed policeman further away", other: KindPoliceman, x: 28, offPost: true, wasPushed: true,
			want: r2.Vec{X: -damped * math.Exp(-2/config.B)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(50, 50)
			s := NewSpawner(1)
			a := spawn(t, env, s, KindPoliceman, 20, 20)
			other := spawn(t, env, s, tt.other, tt.x, 20)
			other.Velocity = tt.otherV
			other.wasPushed = tt.wasPushed
			if tt.offPost {
				other.Home = geom.Point{X: 1, Y: 1}
			}
			a.findNeighbors(env, a.Pos)

			got := a.policeAgentForces(env, tt.old)
			assert.InDelta(t, tt.want.X, got.X, 1e-6)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-6)
		})
	}
}

func TestObstacleForces(t *testing.T) {
	env := newEnv(50, 50)
	a := spawn(t, env, NewSpawner(1), KindPassive, 20, 20)

	// A single obstacle cell at (22,20): two cells away, inside one radius.
	env.Board.AddObstacles(geom.Rect{Min: geom.Point{X: 21, Y: 19}, Max: geom.Point{X: 23, Y: 21}})
	a.findNeighbors(env, a.Pos)
	require.Equal(t, []geom.Point{{X: 22, Y: 20}}, a.obstacles)

	old := r2.Vec{X: 0.6, Y: 0.8}
	got := a.obstacleForces(env, old)
	assert.InDelta(t, -config.Aw*math.Exp(1/config.Bw)-config.K, got.X, 1e-6)
	assert.InDelta(t, config.K2, got.Y, 1e-6, "slide runs against the agent's own speed")

	far := newEnv(50, 50)
	b := spawn(t, far, NewSpawner(1), KindPassive, 20, 20)
	far.Board.AddObstacles(geom.Rect{Min: geom.Point{X: 23, Y: 19}, Max: geom.Point{X: 25, Y: 21}})
	b.findNeighbors(far, b.Pos)
	got = b.obstacleForces(far, old)
	assert.InDelta(t, -config.Aw*math.Exp(-1/config.Bw), got.X, 1e-9, "interaction only outside contact")
	assert.InDelta(t, 0, got.Y, 1e-9)
}

func TestPlaceGuardsFarOffBoardCorner(t *testing.T) {
	step := 2 * config.Default().AgentRadius
	far := -100000 * step

	near := newEnv(50, 50)
	n := NewSpawner(1).PlaceGuardsInRows(near.Crowd, near.Board, near.Params,
		geom.Rect{Max: geom.Point{X: 49, Y: 49}})
	require.Positive(t, n)

	off := newEnv(50, 50)
	m := NewSpawner(1).PlaceGuardsInRows(off.Crowd, off.Board, off.Params,
		geom.Rect{Min: geom.Point{X: far, Y: far}, Max: geom.Point{X: 49, Y: 49}})
	require.Equal(t, n, m)
	for i := range near.Crowd.Agents {
		assert.Equal(t, near.Crowd.Agents[i].Pos, off.Crowd.Agents[i].Pos)
	}
}

func TestPushStateRollback(t *testing.T) {
	env := newEnv(30, 30)
	s := NewSpawner(1)
	cop := spawn(t, env, s, KindPoliceman, 10, 10)
	civ := spawn(t, env, s, KindPassive, 20, 20)
	cop.BePushed(r2.Vec{X: 500})
	cop.chain = []AgentID{7}
	civ.BePushed(r2.Vec{Y: 3})

	saved := env.Crowd.SavePushState()
	cop.ApplyPushForces()
	civ.ApplyPushForces()
	require.Equal(t, StateNone, cop.State)

	late := spawn(t, env, s, KindPassive, 5, 20)
	env.Crowd.RestorePushState(saved)

	assert.Equal(t, StateIsPushed, cop.State)
	assert.Equal(t, r2.Vec{X: 500}, cop.Pushed)
	assert.Zero(t, cop.PushToApply)
	assert.Equal(t, 0, cop.PushedAgo)
	assert.Equal(t, []AgentID{7}, cop.chain)
	assert.Equal(t, r2.Vec{Y: 3}, civ.Pushed)
	assert.Zero(t, civ.PushToApply)
	assert.Equal(t, -1, late.PushedAgo, "agents spawned after the save are untouched")
}
