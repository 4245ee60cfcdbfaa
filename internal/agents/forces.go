// Helbing social-force terms.
// n points from the acting body toward this agent, d is the centre
// distance, and reach is the sum of radii (2r between agents, r against an
// obstacle cell).
package agents

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/talgya/crowdforce/internal/config"
	"github.com/talgya/crowdforce/internal/geom"
)

// InteractForce is the exponential repulsion, present at any distance.
func InteractForce(n r2.Vec, d, reach, a, b float64) r2.Vec {
	return r2.Scale(a*math.Exp((reach-d)/b), n)
}

// BodyForce is the linear penetration repulsion, applied on overlap.
func BodyForce(n r2.Vec, d, reach float64) r2.Vec {
	return r2.Scale(config.K*(reach-d), n)
}

// SlideForce is the tangential friction, applied on overlap. dv is the
// neighbour's speed minus this agent's previous speed.
func SlideForce(n r2.Vec, d, reach, dv float64) r2.Vec {
	return r2.Scale(config.K2*(reach-d)*dv, geom.Tangent(n))
}

// normalBetween returns the unit vector from other toward self and the
// distance between them.
func normalBetween(self, other geom.Point) (r2.Vec, float64) {
	diff := r2.Sub(self.Vec(), other.Vec())
	d := r2.Norm(diff)
	if d == 0 {
		return r2.Vec{}, 0
	}
	return r2.Scale(1/d, diff), d
}

// agentForces sums the forces the visible neighbours exert on a.
func (a *Agent) agentForces(env *Env, old r2.Vec) r2.Vec {
	reach := 2 * float64(env.Params.AgentRadius)
	oldSpeed := r2.Norm(old)

	var total r2.Vec
	for _, id := range a.neighbors {
		other := env.Crowd.Get(id)
		n, d := normalBetween(a.Pos, other.Pos)
		f := InteractForce(n, d, reach, config.A, config.B)
		if d < reach {
			f = r2.Add(f, BodyForce(n, d, reach))
			f = r2.Add(f, SlideForce(n, d, reach, r2.Norm(other.Velocity)-oldSpeed))
		}
		total = r2.Add(total, f)
	}
	return total
}

// obstacleForces sums the forces the visible obstacle cells exert on a.
func (a *Agent) obstacleForces(env *Env, old r2.Vec) r2.Vec {
	reach := float64(env.Params.AgentRadius)
	oldSpeed := r2.Norm(old)

	var total r2.Vec
	for _, p := range a.obstacles {
		n, d := normalBetween(a.Pos, p)
		f := InteractForce(n, d, reach, config.Aw, config.Bw)
		if d < reach {
			f = r2.Add(f, BodyForce(n, d, reach))
			f = r2.Add(f, SlideForce(n, d, reach, -oldSpeed))
		}
		total = r2.Add(total, f)
	}
	return total
}

// policeAgentForces is the policeman's variant of agentForces. Civilians
// exert no interaction force on it; another policeman does only while off
// its own post under push. Outside body contact the interaction is damped
// to a tenth.
func (a *Agent) policeAgentForces(env *Env, old r2.Vec) r2.Vec {
	reach := 2 * float64(env.Params.AgentRadius)
	oldSpeed := r2.Norm(old)

	var total r2.Vec
	for _, id := range a.neighbors {
		other := env.Crowd.Get(id)
		n, d := normalBetween(a.Pos, other.Pos)

		var interact r2.Vec
		if other.Kind == KindPoliceman && !other.OnPost() && other.wasPushed {
			interact = InteractForce(n, d, reach, config.A, config.B)
		}
		if d < reach {
			total = r2.Add(total, interact)
			total = r2.Add(total, BodyForce(n, d, reach))
			total = r2.Add(total, SlideForce(n, d, reach, r2.Norm(other.Velocity)-oldSpeed))
		} else {
			total = r2.Add(total, r2.Scale(0.1, interact))
		}
	}
	return total
}
