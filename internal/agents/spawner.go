// Population generation: seeded random placement of crowds, police lines,
// obstacles, and rubble onto the board's free cells.
package agents

import (
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/talgya/crowdforce/internal/config"
	"github.com/talgya/crowdforce/internal/geom"
	"github.com/talgya/crowdforce/internal/world"
)

// initialVelocity is the starting velocity of every civilian.
var initialVelocity = r2.Vec{X: 0.8, Y: 0.8}

// Spawner creates agents for the simulation.
type Spawner struct {
	rng  *rand.Rand
	seed int64
}

// NewSpawner creates a spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:  rand.New(rand.NewSource(seed + 300)),
		seed: seed,
	}
}

// Spawn places one agent of the given kind on pos.
func (s *Spawner) Spawn(c *Crowd, b *world.Board, p config.Params, kind Kind, pos geom.Point) (AgentID, error) {
	if !b.InBounds(pos) {
		return 0, ErrOutOfBounds
	}
	if b.Occupant(pos.X, pos.Y).Kind != world.Empty {
		return 0, ErrCellOccupied
	}
	return s.place(c, b, s.newAgent(kind, pos, p)), nil
}

func (s *Spawner) place(c *Crowd, b *world.Board, a *Agent) AgentID {
	id := c.add(a)
	b.SetOccupant(a.Pos, world.Occupant{Kind: world.AgentCell, ID: int(id)})
	return id
}

func (s *Spawner) newAgent(kind Kind, pos geom.Point, p config.Params) *Agent {
	a := &Agent{
		Kind:      kind,
		Pos:       pos,
		Home:      pos,
		PushedAgo: -1,
	}
	if kind == KindPoliceman {
		a.Mass = config.PolicemanMass
		a.MaxReaction = config.PolicemanMass * p.MaxSpeedTrouble / config.TimePeriod
		return a
	}
	a.Mass = s.mass()
	a.Velocity = initialVelocity
	return a
}

// mass draws a body mass. Normal around the mean, clamped to the range.
func (s *Spawner) mass() float64 {
	m := config.MassMean + s.rng.NormFloat64()*config.MassDeviation
	return geom.Clamp(m, config.MassMin, config.MassMax)
}

// kind draws a civilian kind from the configured population mix.
func (s *Spawner) kind(p config.Params) Kind {
	roll := s.rng.Intn(100)
	switch {
	case roll >= 100-p.TroublemakerPercent:
		return KindTroublemaker
	case roll >= 100-p.ModeratePercent-p.TroublemakerPercent:
		return KindModerate
	default:
		return KindPassive
	}
}

// PlaceAgents fills region with a random crowd. Cells are drawn one at a
// time from the spawnable set, and each draw clears a spacing disc around
// it. Returns the number of agents placed.
func (s *Spawner) PlaceAgents(c *Crowd, b *world.Board, p config.Params, region geom.Rect) int {
	available := b.FreeCellsInRegion(region, true, p.AgentRadius)
	spacing := 2*p.AgentRadius + p.CrowdSparsity

	var fields []geom.Point
	for available.Len() > 0 {
		field := available.At(s.rng.Intn(available.Len()))
		fields = append(fields, field)
		s.clear(b, available, field, spacing)
	}

	for _, field := range fields {
		s.place(c, b, s.newAgent(s.kind(p), field, p))
	}
	return len(fields)
}

// PlaceGuardsInRows lays a police grid over region, right to left and top
// to bottom, skipping cells too close to something already there.
func (s *Spawner) PlaceGuardsInRows(c *Crowd, b *world.Board, p config.Params, region geom.Rect) int {
	r := p.AgentRadius
	available := b.FreeCellsInRegion(region, true, r)

	step := max(2*r, 1)
	right := min(region.Max.X, b.Width-1)
	bottom := min(region.Max.Y, b.Height-1)
	left := max(region.Min.X+r, 0)
	// Rows keep their phase from the region's top edge but start on the board.
	top := region.Min.Y + r
	if top < 0 {
		top += (-top + step - 1) / step * step
	}

	placed := 0
	for x := right - r - 1; x >= left; x -= step {
		for y := top; y <= bottom-r; y += step {
			field := geom.Point{X: x, Y: y}
			if !available.Contains(field) {
				continue
			}
			s.place(c, b, s.newAgent(KindPoliceman, field, p))
			s.clear(b, available, field, 2*r-1)
			placed++
		}
	}
	return placed
}

// PlaceObstacles turns every free cell strictly inside region into an
// obstacle.
func (s *Spawner) PlaceObstacles(b *world.Board, region geom.Rect) int {
	return b.AddObstacles(region)
}

// PlaceRubble scatters noise-shaped debris over region. Each call uses a
// fresh noise seed drawn from the spawner, so repeated calls differ but a
// replay from the same seed does not.
func (s *Spawner) PlaceRubble(b *world.Board, p config.Params, region geom.Rect) int {
	return b.ScatterRubble(region, s.rng.Int63(), p.RubbleThreshold)
}

// clear drops every cell strictly within radius of centre from both the
// candidate set and the board's free set.
func (s *Spawner) clear(b *world.Board, available *world.CellSet, centre geom.Point, radius int) {
	for _, q := range geom.PointsInCircle(centre, radius) {
		available.Remove(q)
		b.Reserve(q)
	}
}
