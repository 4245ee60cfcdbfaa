// Per-kind velocity choice and the two tick halves an agent runs: the
// read-only state update (parallel phase) and the position commit with
// its push (serial phase).
package agents

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/talgya/crowdforce/internal/config"
	"github.com/talgya/crowdforce/internal/geom"
	"github.com/talgya/crowdforce/internal/world"
)

// behavior is the dispatch table entry for one kind.
type behavior struct {
	choose     func(a *Agent, env *Env, old r2.Vec) r2.Vec
	accelerate func(a *Agent, env *Env, chosen, old r2.Vec) r2.Vec
	maxSpeed   func(p config.Params) float64
	pushes     bool
}

var behaviors = [...]behavior{
	KindPassive: {
		choose:     choosePassive,
		accelerate: accelerateAbsorbing,
		maxSpeed:   func(p config.Params) float64 { return p.MaxSpeedPassive },
	},
	KindModerate: {
		choose:     chooseModerate,
		accelerate: acceleratePushing,
		maxSpeed:   func(p config.Params) float64 { return p.MaxSpeedModerate },
		pushes:     true,
	},
	KindTroublemaker: {
		choose:     chooseTroublemaker,
		accelerate: acceleratePushing,
		maxSpeed:   func(p config.Params) float64 { return p.MaxSpeedTrouble },
		pushes:     true,
	},
	KindPoliceman: {
		choose:     choosePoliceman,
		accelerate: acceleratePoliceman,
		maxSpeed:   func(p config.Params) float64 { return p.MaxSpeedTrouble },
	},
}

// MaxSpeed returns the speed cap for the agent's kind.
func (a *Agent) MaxSpeed(p config.Params) float64 {
	return behaviors[a.Kind].maxSpeed(p)
}

// Deadlock breakers: a flocking agent stuck longer than this many ticks and
// slower than half its cap falls back to its raw desired velocity.
const (
	passiveStuckTicks  = 5
	moderateStuckTicks = 2
)

// UpdateState computes the agent's next velocity and acceleration. It reads
// only committed state of other agents and the board, and writes only to a.
func (a *Agent) UpdateState(env *Env) {
	old := a.Velocity
	a.findNeighbors(env, a.Pos.Add(geom.Step(old, config.TimePeriod)))

	b := behaviors[a.Kind]
	if a.Kind == KindPoliceman {
		a.reaction = a.react()
	}
	chosen := b.choose(a, env, old)
	acc := b.accelerate(a, env, chosen, old)

	a.nextAccel = acc
	a.nextVelocity = geom.Limit(r2.Add(old, r2.Scale(config.TimePeriod, acc)), b.maxSpeed(env.Params))
}

// findNeighbors fills the neighbour caches with everything strictly within
// the view radius of p.
func (a *Agent) findNeighbors(env *Env, p geom.Point) {
	a.neighbors = a.neighbors[:0]
	a.obstacles = a.obstacles[:0]

	view := env.Params.ViewRadius
	board := env.Board
	x0 := max(p.X-view, 0)
	x1 := min(p.X+view, board.Width-1)
	y0 := max(p.Y-view, 0)
	y1 := min(p.Y+view, board.Height-1)
	limit := view * view

	for i := x0; i <= x1; i++ {
		for j := y0; j <= y1; j++ {
			q := geom.Point{X: i, Y: j}
			if p.Dist2(q) >= limit {
				continue
			}
			switch o := board.Occupant(i, j); o.Kind {
			case world.AgentCell:
				if AgentID(o.ID) != a.ID {
					a.neighbors = append(a.neighbors, AgentID(o.ID))
				}
			case world.ObstacleCell:
				a.obstacles = append(a.obstacles, q)
			}
		}
	}
}

func choosePassive(a *Agent, env *Env, old r2.Vec) r2.Vec {
	desired := geom.UnitToward(a.Pos, env.Params.Target)
	if a.vicinityActive(env) {
		// Flee with jitter of one cap per axis, sign drawn per axis.
		bits := geom.Mix(env.Seed, env.Tick, int(a.ID))
		fl := env.Params.MaxSpeedPassive
		v := r2.Scale(-2, desired)
		return r2.Vec{X: v.X + geom.Bit(bits, 0)*fl, Y: v.Y + geom.Bit(bits, 1)*fl}
	}
	return a.flock(env, desired, old, passiveStuckTicks, env.Params.MaxSpeedPassive)
}

func chooseModerate(a *Agent, env *Env, old r2.Vec) r2.Vec {
	desired := r2.Scale(5, geom.UnitToward(a.Pos, env.Params.Target))
	return a.flock(env, desired, old, moderateStuckTicks, env.Params.MaxSpeedModerate)
}

func chooseTroublemaker(a *Agent, env *Env, _ r2.Vec) r2.Vec {
	return r2.Scale(10, geom.UnitToward(a.Pos, env.Params.Target))
}

func choosePoliceman(a *Agent, _ *Env, old r2.Vec) r2.Vec {
	if r2.Norm(a.reaction) < 0.5 {
		return geom.UnitToward(a.Pos, a.Home)
	}
	return old
}

// flock averages the neighbours' velocities with the desired one and keeps
// the previous speed.
func (a *Agent) flock(env *Env, desired, old r2.Vec, stuckTicks int, maxSpeed float64) r2.Vec {
	if len(a.neighbors) <= 1 {
		return desired
	}
	var sum r2.Vec
	weight := 0.0
	for _, id := range a.neighbors {
		v := env.Crowd.Get(id).Velocity
		sum = r2.Add(sum, v)
		weight += r2.Norm(v)
	}
	sum = r2.Add(sum, desired)
	weight += r2.Norm(desired)

	var v r2.Vec
	if weight > 0 {
		v = r2.Scale(r2.Norm(old)/weight, sum)
	}
	if a.ItersWithoutMove > stuckTicks && r2.Norm(v) < maxSpeed*0.5 {
		return desired
	}
	return v
}

// vicinityActive reports whether a policeman or troublemaker is in view.
func (a *Agent) vicinityActive(env *Env) bool {
	for _, id := range a.neighbors {
		switch env.Crowd.Get(id).Kind {
		case KindPoliceman, KindTroublemaker:
			return true
		}
	}
	return false
}

// accelerateAbsorbing takes the applied push into the agent's own motion.
func accelerateAbsorbing(a *Agent, env *Env, chosen, old r2.Vec) r2.Vec {
	acc := acceleratePushing(a, env, chosen, old)
	return r2.Add(acc, r2.Scale(1/a.Mass, a.PushToApply))
}

// acceleratePushing leaves the applied push out: pushing kinds carry it on
// into the next agent they push.
func acceleratePushing(a *Agent, env *Env, chosen, old r2.Vec) r2.Vec {
	acc := r2.Scale(1/config.TimePeriod, r2.Sub(chosen, old))
	acc = r2.Add(acc, r2.Scale(1/a.Mass, a.agentForces(env, old)))
	acc = r2.Add(acc, r2.Scale(1/a.Mass, a.obstacleForces(env, old)))
	return acc
}

func acceleratePoliceman(a *Agent, env *Env, chosen, old r2.Vec) r2.Vec {
	acc := r2.Scale(1/config.TimePeriod, r2.Sub(chosen, old))
	if !a.OnPost() {
		acc = r2.Add(acc, r2.Scale(1/a.Mass, a.policeAgentForces(env, old)))
		acc = r2.Add(acc, r2.Scale(1/a.Mass, a.obstacleForces(env, old)))
	}
	acc = r2.Add(acc, r2.Scale(1/a.Mass, a.PushToApply))
	acc = r2.Add(acc, r2.Scale(1/a.Mass, a.reaction))
	return acc
}

// Commit publishes the velocity computed by UpdateState, attempts the move,
// and for pushing kinds pushes whoever ends up ahead. Returns true if the
// agent changed cell.
func (a *Agent) Commit(env *Env) bool {
	a.Velocity = a.nextVelocity
	a.Acceleration = a.nextAccel

	moved := a.changePosition(env.Board)
	if behaviors[a.Kind].pushes {
		a.pushSomebody(env, a.closestAhead(env))
	}
	return moved
}

// changePosition moves the agent one velocity step if the target cell is
// inside the board and empty. Any failure counts as a stuck tick.
func (a *Agent) changePosition(board *world.Board) bool {
	to := a.Pos.Add(geom.Step(a.Velocity, config.TimePeriod))
	if to == a.Pos || !board.InBounds(to) || board.Occupant(to.X, to.Y).Kind != world.Empty {
		a.ItersWithoutMove++
		return false
	}
	if err := board.Move(a.Pos, to); err != nil {
		a.ItersWithoutMove++
		return false
	}
	a.Pos = to
	a.ItersWithoutMove = 0
	return true
}

// closestAhead finds the neighbour nearest to the cell the agent's current
// velocity points at, within body contact range.
func (a *Agent) closestAhead(env *Env) *Agent {
	ahead := a.Pos.Add(geom.Step(a.Velocity, config.TimePeriod))
	r := env.Params.AgentRadius
	best := 4 * r * r
	var closest *Agent
	for _, id := range a.neighbors {
		other := env.Crowd.Get(id)
		if d := ahead.Dist2(other.Pos); d < best {
			best = d
			closest = other
		}
	}
	return closest
}

// pushSomebody delivers the agent's push to target. Only policemen and
// agents already mid-push take it; pushing an idle civilian has no effect.
func (a *Agent) pushSomebody(env *Env, target *Agent) {
	a.State = StateNone
	if target == nil {
		return
	}
	maxSpeed := env.Params.MaxSpeedTrouble
	if a.Kind == KindModerate {
		maxSpeed = env.Params.MaxSpeedModerate
	}
	impulse := r2.Add(r2.Scale(maxSpeed*0.8*a.Mass, geom.Unit(a.Velocity)), a.PushToApply)

	switch {
	case target.Kind == KindPoliceman:
		a.State = StatePushingPoliceman
		target.BePushed(impulse)
	case target.State == StatePushingPoliceman || target.State == StatePushingOther:
		a.State = StatePushingOther
		target.BePushed(impulse)
	}
}

// BePushed adds an external push to the agent's accumulator.
func (a *Agent) BePushed(force r2.Vec) {
	a.Pushed = r2.Add(a.Pushed, force)
	if a.Kind == KindPoliceman {
		a.State = StateIsPushed
		a.PushedAgo = 0
	}
}

// ApplyPushForces moves last tick's accumulated push into effect and clears
// the accumulator. Policemen also drop their push state and relay chain.
func (a *Agent) ApplyPushForces() {
	a.PushToApply = a.Pushed
	a.Pushed = r2.Vec{}
	if a.Kind != KindPoliceman {
		return
	}
	a.wasPushed = a.State == StateIsPushed
	if a.PushedAgo >= 0 {
		a.PushedAgo++
	}
	a.chain = a.chain[:0]
	a.State = StateNone
}
