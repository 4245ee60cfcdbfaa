package agents

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/talgya/crowdforce/internal/config"
	"github.com/talgya/crowdforce/internal/world"
)

// Crowd is the agent arena. Handles are indices into Agents and stay valid
// until the crowd is discarded by a reset.
type Crowd struct {
	Agents []*Agent
	Police []AgentID // Policemen in spawn order
}

// NewCrowd creates an empty arena.
func NewCrowd() *Crowd {
	return &Crowd{}
}

// Get resolves a handle.
func (c *Crowd) Get(id AgentID) *Agent {
	return c.Agents[id]
}

// Len returns the number of agents.
func (c *Crowd) Len() int {
	return len(c.Agents)
}

func (c *Crowd) add(a *Agent) AgentID {
	a.ID = AgentID(len(c.Agents))
	c.Agents = append(c.Agents, a)
	if a.Kind == KindPoliceman {
		c.Police = append(c.Police, a.ID)
	}
	return a.ID
}

// PushState is the push bookkeeping of every agent in a crowd, saved so an
// aborted tick can be rolled back before anything moved.
type PushState struct {
	entries []pushEntry
}

type pushEntry struct {
	state     State
	pushed    r2.Vec
	toApply   r2.Vec
	pushedAgo int
	wasPushed bool
	chain     []AgentID
}

// SavePushState copies the push fields of every agent.
func (c *Crowd) SavePushState() PushState {
	entries := make([]pushEntry, len(c.Agents))
	for i, a := range c.Agents {
		entries[i] = pushEntry{
			state:     a.State,
			pushed:    a.Pushed,
			toApply:   a.PushToApply,
			pushedAgo: a.PushedAgo,
			wasPushed: a.wasPushed,
			chain:     append([]AgentID(nil), a.chain...),
		}
	}
	return PushState{entries: entries}
}

// RestorePushState puts back the push fields saved by SavePushState.
// Agents added since the save are left alone.
func (c *Crowd) RestorePushState(ps PushState) {
	for i, e := range ps.entries {
		a := c.Agents[i]
		a.State = e.state
		a.Pushed = e.pushed
		a.PushToApply = e.toApply
		a.PushedAgo = e.pushedAgo
		a.wasPushed = e.wasPushed
		a.chain = append(a.chain[:0], e.chain...)
	}
}

// Env is everything a behaviour method may read during a tick. Params is
// the snapshot taken when the tick began.
type Env struct {
	Board  *world.Board
	Crowd  *Crowd
	Params config.Params
	Seed   int64
	Tick   uint64
}
