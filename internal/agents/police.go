package agents

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/talgya/crowdforce/internal/config"
	"github.com/talgya/crowdforce/internal/geom"
	"github.com/talgya/crowdforce/internal/world"
)

// recentPushTicks is how long after a push a policeman keeps passing the
// unabsorbed part of a push on to itself.
const recentPushTicks = 3

// react computes the policeman's reaction to the push it applies this tick.
// An over-capacity push is capped, and if the policeman was pushed recently
// most of the remainder is carried into its next tick.
func (a *Agent) react() r2.Vec {
	p := r2.Norm(a.PushToApply)
	if p <= a.MaxReaction {
		return r2.Scale(-1, a.PushToApply)
	}
	reaction := r2.Scale(-a.MaxReaction/p, a.PushToApply)
	if a.PushedAgo >= 0 && a.PushedAgo < recentPushTicks {
		a.Pushed = r2.Add(a.Pushed, r2.Scale(0.8, r2.Add(a.PushToApply, reaction)))
	}
	return reaction
}

// bePushedByPolice adds force relayed from another policeman. Unlike
// BePushed it leaves the push state alone.
func (a *Agent) bePushedByPolice(force r2.Vec) {
	a.Pushed = r2.Add(a.Pushed, force)
	a.PushedAgo = 0
}

// ResolveRelay spreads over-capacity push force through the police line.
// Every policeman currently pushed is processed first, in spawn order, then
// whoever they forwarded force to, each at most once. Returns how many
// policemen were processed.
func ResolveRelay(env *Env) int {
	crowd := env.Crowd
	visited := make(map[AgentID]bool, len(crowd.Police))
	var queue []AgentID
	for _, id := range crowd.Police {
		if crowd.Get(id).State == StateIsPushed {
			visited[id] = true
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++

		next := crowd.Get(id).considerForces(env)
		if next != nil && !visited[next.ID] {
			visited[next.ID] = true
			queue = append(queue, next.ID)
		}
	}
	return processed
}

// considerForces caps the policeman's accumulated push at its maximum
// reaction. The excess goes to the nearest policeman in the push direction,
// or if there is none it is shared evenly with the chain behind it.
// Returns the policeman that received force, if any.
func (a *Agent) considerForces(env *Env) *Agent {
	p := r2.Norm(a.Pushed)
	if p <= a.MaxReaction {
		return nil
	}
	reaction := r2.Scale(-a.MaxReaction/p, a.Pushed)
	excess := r2.Add(a.Pushed, reaction)

	if next := a.nearestInPushDirection(env); next != nil {
		next.bePushedByPolice(excess)
		a.Pushed = r2.Scale(-1, reaction)
		a.chain = append(a.chain, a.ID)
		next.chain = append(next.chain, a.chain...)
		return next
	}

	n := float64(len(a.chain))
	share := r2.Scale(1/(n+1), excess)
	for _, id := range a.chain {
		env.Crowd.Get(id).bePushedByPolice(share)
	}
	a.Pushed = r2.Sub(a.Pushed, r2.Scale(n/(n+1), excess))
	return nil
}

// nearestInPushDirection scans the board around the policeman for another
// policeman outside its chain lying closest to where the push points.
func (a *Agent) nearestInPushDirection(env *Env) *Agent {
	dir := geom.Limit(a.Pushed, 2)
	tx := float64(a.Pos.X) + dir.X*config.TimePeriod
	ty := float64(a.Pos.Y) + dir.Y*config.TimePeriod

	r := float64(env.Params.AgentRadius)
	best := 4 * r * r
	var closest *Agent
	for _, q := range geom.PointsInCircle(a.Pos, env.Params.ViewRadius) {
		if !env.Board.InBounds(q) {
			continue
		}
		o := env.Board.Occupant(q.X, q.Y)
		if o.Kind != world.AgentCell {
			continue
		}
		other := env.Crowd.Get(AgentID(o.ID))
		if other.Kind != KindPoliceman || other.ID == a.ID || a.inChain(other.ID) {
			continue
		}
		if d := geom.SquaredDistance(tx, ty, float64(q.X), float64(q.Y)); d < best {
			best = d
			closest = other
		}
	}
	return closest
}

func (a *Agent) inChain(id AgentID) bool {
	for _, c := range a.chain {
		if c == id {
			return true
		}
	}
	return false
}
