// Package world provides the simulation board: a fixed grid of cells, each
// owned by at most one agent or obstacle, plus the obstacle rectangles and
// the free-cell set the generator spawns into.
package world

import (
	"fmt"

	"github.com/talgya/crowdforce/internal/geom"
)

// OccupantKind tags what a cell holds.
type OccupantKind uint8

const (
	Empty OccupantKind = iota
	AgentCell
	ObstacleCell
)

// Occupant is the content of one cell. ID is the agent handle when Kind is
// AgentCell and is unused otherwise.
type Occupant struct {
	Kind OccupantKind
	ID   int
}

// IsAgent reports whether the cell holds an agent.
func (o Occupant) IsAgent() bool { return o.Kind == AgentCell }

// IsObstacle reports whether the cell holds an obstacle.
func (o Occupant) IsObstacle() bool { return o.Kind == ObstacleCell }

// Board is the world grid.
type Board struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	cells []Occupant // column-major: x*Height + y
	free  []bool     // eligible for spawning
	nFree int

	rects     []geom.Rect // obstacle placement regions, in insertion order
	obstacles int
	agents    int
}

// New creates a board of the given size with border walls of thickness
// radius.
func New(width, height, radius int) *Board {
	b := &Board{}
	b.Initialize(width, height, radius)
	return b
}

// Initialize discards all content, marks every cell free, and seeds the
// four border rectangles as permanent obstacles.
func (b *Board) Initialize(width, height, radius int) {
	b.Width = width
	b.Height = height
	b.cells = make([]Occupant, width*height)
	b.free = make([]bool, width*height)
	for i := range b.free {
		b.free[i] = true
	}
	b.nFree = width * height
	b.rects = nil
	b.obstacles = 0
	b.agents = 0

	b.AddObstacles(geom.Rect{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: width - 1, Y: radius}})
	b.AddObstacles(geom.Rect{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: radius, Y: height - 1}})
	b.AddObstacles(geom.Rect{Min: geom.Point{X: width - radius - 1, Y: 0}, Max: geom.Point{X: width - 1, Y: height - 1}})
	b.AddObstacles(geom.Rect{Min: geom.Point{X: 0, Y: height - radius - 1}, Max: geom.Point{X: width - 1, Y: height - 1}})
}

func (b *Board) idx(x, y int) int { return x*b.Height + y }

// InBounds returns true if p is a valid cell.
func (b *Board) InBounds(p geom.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < b.Width && p.Y < b.Height
}

// Occupant returns the content of cell (x, y). The caller checks bounds.
func (b *Board) Occupant(x, y int) Occupant {
	return b.cells[b.idx(x, y)]
}

// SetOccupant overwrites cell p. Occupying a cell removes it from the free
// set; emptying it returns it. The caller checks bounds.
func (b *Board) SetOccupant(p geom.Point, o Occupant) {
	i := b.idx(p.X, p.Y)
	switch b.cells[i].Kind {
	case AgentCell:
		b.agents--
	case ObstacleCell:
		b.obstacles--
	}
	switch o.Kind {
	case AgentCell:
		b.agents++
	case ObstacleCell:
		b.obstacles++
	}
	b.cells[i] = o
	b.setFree(i, o.Kind == Empty)
}

func (b *Board) setFree(i int, free bool) {
	if b.free[i] == free {
		return
	}
	b.free[i] = free
	if free {
		b.nFree++
	} else {
		b.nFree--
	}
}

// IsFree reports whether p is in the free set.
func (b *Board) IsFree(p geom.Point) bool {
	return b.InBounds(p) && b.free[b.idx(p.X, p.Y)]
}

// Reserve drops p from the free set without occupying it. The generator
// uses it to keep spacing between spawned bodies. Out-of-range cells are
// ignored.
func (b *Board) Reserve(p geom.Point) {
	if b.InBounds(p) {
		b.setFree(b.idx(p.X, p.Y), false)
	}
}

// FreeCount returns the size of the free set.
func (b *Board) FreeCount() int { return b.nFree }

// FreeCells returns the free set in grid order.
func (b *Board) FreeCells() []geom.Point {
	out := make([]geom.Point, 0, b.nFree)
	for x := 0; x < b.Width; x++ {
		for y := 0; y < b.Height; y++ {
			if b.free[b.idx(x, y)] {
				out = append(out, geom.Point{X: x, Y: y})
			}
		}
	}
	return out
}

// FreeCellsInRegion returns the free cells lying strictly inside r. With
// shrink set, r is first inset by radius and every cell in the radius band
// around an obstacle rectangle is left out.
func (b *Board) FreeCellsInRegion(r geom.Rect, shrink bool, radius int) *CellSet {
	if shrink {
		r = r.Inset(radius)
	}
	var halo []bool
	if shrink {
		halo = b.obstacleHalo(radius)
	}

	x0 := geom.Clamp(r.Min.X+1, 0, b.Width)
	x1 := geom.Clamp(r.Max.X-1, -1, b.Width-1)
	y0 := geom.Clamp(r.Min.Y+1, 0, b.Height)
	y1 := geom.Clamp(r.Max.Y-1, -1, b.Height-1)

	set := NewCellSet(0)
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			i := b.idx(x, y)
			if !b.free[i] || (halo != nil && halo[i]) {
				continue
			}
			set.Add(geom.Point{X: x, Y: y})
		}
	}
	return set
}

// obstacleHalo marks the band of width radius around each obstacle
// rectangle. The band edges are inclusive.
func (b *Board) obstacleHalo(radius int) []bool {
	halo := make([]bool, len(b.cells))
	mark := func(x, y int) {
		if x >= 0 && y >= 0 && x < b.Width && y < b.Height {
			halo[b.idx(x, y)] = true
		}
	}
	for _, rect := range b.rects {
		x1, y1 := rect.Min.X, rect.Min.Y
		x2, y2 := rect.Max.X, rect.Max.Y
		if x1-radius > 0 {
			x1 -= radius
		} else {
			x1 = 0
		}
		if y1-radius > 0 {
			y1 -= radius
		} else {
			y1 = 0
		}
		if x2+radius < b.Width {
			x2 += radius
		} else {
			x2 = b.Width - 1
		}
		if y2+radius < b.Height {
			y2 += radius
		} else {
			y2 = b.Height - 1
		}

		for i := x1; i <= x2; i++ {
			for j := y1; j <= y1+radius; j++ {
				mark(i, j)
			}
			for j := y2 - radius; j <= y2; j++ {
				mark(i, j)
			}
		}
		for j := max(rect.Min.Y, 0); j <= min(rect.Max.Y, b.Height-1); j++ {
			for i := x1; i <= x1+radius; i++ {
				mark(i, j)
			}
			for i := x2 - radius; i <= x2; i++ {
				mark(i, j)
			}
		}
	}
	return halo
}

// AddObstacles fills every free cell strictly inside r with an obstacle and
// records r as an obstacle rectangle. Returns the number of cells filled.
func (b *Board) AddObstacles(r geom.Rect) int {
	cells := b.FreeCellsInRegion(r, false, 0)
	b.rects = append(b.rects, r)
	for _, p := range cells.Items() {
		b.SetOccupant(p, Occupant{Kind: ObstacleCell})
	}
	return cells.Len()
}

// Move transfers the agent at from to the empty cell to.
func (b *Board) Move(from, to geom.Point) error {
	if !b.InBounds(from) || !b.InBounds(to) {
		return fmt.Errorf("move %v -> %v: out of bounds", from, to)
	}
	o := b.Occupant(from.X, from.Y)
	if !o.IsAgent() {
		return fmt.Errorf("move %v -> %v: source holds no agent", from, to)
	}
	if b.Occupant(to.X, to.Y).Kind != Empty {
		return fmt.Errorf("move %v -> %v: destination occupied", from, to)
	}
	b.SetOccupant(from, Occupant{})
	b.SetOccupant(to, o)
	return nil
}

// CenterOfMass returns the mean coordinate of all agents on the board.
// ok is false when there are none.
func (b *Board) CenterOfMass() (c geom.Point, ok bool) {
	var sx, sy, n int
	for x := 0; x < b.Width; x++ {
		for y := 0; y < b.Height; y++ {
			if b.cells[b.idx(x, y)].IsAgent() {
				sx += x
				sy += y
				n++
			}
		}
	}
	if n == 0 {
		return geom.Point{}, false
	}
	return geom.Point{X: sx / n, Y: sy / n}, true
}

// ObstacleRects returns a copy of the recorded obstacle rectangles.
func (b *Board) ObstacleRects() []geom.Rect {
	out := make([]geom.Rect, len(b.rects))
	copy(out, b.rects)
	return out
}

// ObstacleCount returns the number of obstacle cells.
func (b *Board) ObstacleCount() int { return b.obstacles }

// AgentCount returns the number of agent cells.
func (b *Board) AgentCount() int { return b.agents }

// String returns a summary of the board.
func (b *Board) String() string {
	return fmt.Sprintf("Board(%dx%d, agents=%d, obstacles=%d, free=%d)",
		b.Width, b.Height, b.agents, b.obstacles, b.nFree)
}
