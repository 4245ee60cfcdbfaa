// Package agents provides the crowd model: the agent record, the four
// behavioural kinds, the social-force computation, the push protocol, and
// the policeman force relay.
package agents

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/talgya/crowdforce/internal/geom"
)

// AgentID is a handle into the crowd arena.
type AgentID int

// Kind determines which behaviour table an agent uses.
type Kind uint8

const (
	KindPassive      Kind = iota // Follows the crowd, flees trouble
	KindModerate                 // Pushes its way toward the target
	KindTroublemaker             // Charges the target, always pushes
	KindPoliceman                // Holds a post, relays excess force
)

var kindNames = [...]string{"passive", "moderate", "troublemaker", "policeman"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind maps a kind name back to its tag.
func ParseKind(s string) (Kind, bool) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// Colour returns the display attribute renderers use for the kind.
func (k Kind) Colour() string {
	switch k {
	case KindPassive:
		return "green"
	case KindModerate:
		return "yellow"
	case KindTroublemaker:
		return "red"
	case KindPoliceman:
		return "blue"
	default:
		return "gray"
	}
}

// State is the observable push state of an agent.
type State uint8

const (
	StateNone             State = iota
	StateIsPushed                      // Policeman received an external push
	StatePushingPoliceman              // Last push landed on a policeman
	StatePushingOther                  // Last push landed on someone mid-push
)

func (s State) String() string {
	switch s {
	case StateIsPushed:
		return "is_pushed"
	case StatePushingPoliceman:
		return "pushing_policeman"
	case StatePushingOther:
		return "pushing_other"
	default:
		return "none"
	}
}

// Sentinel errors for direct placement.
var (
	ErrOutOfBounds  = errors.New("position out of bounds")
	ErrCellOccupied = errors.New("cell occupied")
)

// Agent is one body in the crowd. Kind-specific behaviour is looked up in
// the behaviours table; fields only used by policemen are zero otherwise.
type Agent struct {
	ID    AgentID
	Kind  Kind
	State State

	Pos          geom.Point
	Velocity     r2.Vec // Committed at the end of the previous tick
	Acceleration r2.Vec
	Mass         float64

	Pushed      r2.Vec // Incoming push accumulated for the next tick
	PushToApply r2.Vec // Push taking effect this tick

	ItersWithoutMove int // Consecutive ticks without a position change

	// Policeman.
	Home        geom.Point // Post to hold
	MaxReaction float64    // Largest push absorbed without yielding
	PushedAgo   int        // Ticks since last push, -1 = never
	chain       []AgentID  // Policemen relaying force into this one
	wasPushed   bool       // IsPushed snapshot taken at force settlement

	// Per-tick scratch, owned by the agent's worker in the parallel phase.
	neighbors    []AgentID
	obstacles    []geom.Point
	reaction     r2.Vec
	nextVelocity r2.Vec
	nextAccel    r2.Vec
}

// Chain returns the policemen currently relaying force into this one.
func (a *Agent) Chain() []AgentID {
	return append([]AgentID(nil), a.chain...)
}

// Neighbors returns the agent handles seen during the last state update.
func (a *Agent) Neighbors() []AgentID {
	return append([]AgentID(nil), a.neighbors...)
}

// OnPost reports whether a policeman stands on its home cell.
func (a *Agent) OnPost() bool {
	return a.Pos == a.Home
}

// View is the read-only projection handed to renderers.
type View struct {
	ID     AgentID `json:"id"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Kind   string  `json:"kind"`
	State  string  `json:"state"`
	Colour string  `json:"colour"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
}

// View projects the agent for display.
func (a *Agent) View() View {
	return View{
		ID:     a.ID,
		X:      a.Pos.X,
		Y:      a.Pos.Y,
		Kind:   a.Kind.String(),
		State:  a.State.String(),
		Colour: a.Kind.Colour(),
		VX:     a.Velocity.X,
		VY:     a.Velocity.Y,
	}
}
