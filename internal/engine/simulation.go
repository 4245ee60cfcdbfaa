// Simulation owns the board and the crowd and runs the three-phase tick.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/crowdforce/internal/agents"
	"github.com/talgya/crowdforce/internal/config"
	"github.com/talgya/crowdforce/internal/geom"
	"github.com/talgya/crowdforce/internal/world"
)

// Populate kinds.
const (
	PopulateObstacles = "obstacles"
	PopulateCrowd     = "crowd"
	PopulateGuards    = "guards"
	PopulateRubble    = "rubble"
)

var (
	ErrUnknownKind    = errors.New("unknown populate kind")
	ErrNotInitialized = errors.New("world not initialized")
)

// Op is one recorded populate call.
type Op struct {
	Kind string    `json:"kind"`
	Rect geom.Rect `json:"rect"`
}

// Scenario is everything needed to rebuild an initial board: its size,
// the run seed, and the populate calls in order.
type Scenario struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Seed   int64 `json:"seed"`
	Ops    []Op  `json:"ops"`
}

// Status is a summary of the simulation for operators.
type Status struct {
	Tick      uint64     `json:"tick"`
	Running   bool       `json:"running"`
	Paused    bool       `json:"paused"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Seed      int64      `json:"seed"`
	Agents    int        `json:"agents"`
	Police    int        `json:"police"`
	Obstacles int        `json:"obstacles"`
	FreeCells int        `json:"free_cells"`
	Moved     int        `json:"moved"` // Agents that changed cell last tick
	Target    geom.Point `json:"target"`
	StartedAt time.Time  `json:"started_at,omitzero"`
}

// Frame is the per-tick state handed to renderers.
type Frame struct {
	Tick   uint64        `json:"tick"`
	Target geom.Point    `json:"target"`
	Agents []agents.View `json:"agents"`
}

// Simulation holds the complete world state. All exported methods are safe
// for concurrent use; a tick never interleaves with a control operation.
type Simulation struct {
	mu    sync.Mutex
	store *config.Store
	seed  int64

	board   *world.Board
	crowd   *agents.Crowd
	spawner *agents.Spawner
	pool    *pool
	recipe  Scenario

	tick      uint64
	moved     int
	running   bool
	paused    bool
	startedAt time.Time

	// update is the phase-two body, swappable in tests.
	update func(a *agents.Agent, env *agents.Env)
}

// NewSimulation creates a simulation reading its parameters from store.
// The world is empty until InitializeWorld.
func NewSimulation(store *config.Store, seed int64) *Simulation {
	return &Simulation{
		store:  store,
		seed:   seed,
		update: (*agents.Agent).UpdateState,
	}
}

// InitializeWorld discards any existing world and creates an empty board
// of the given size.
func (s *Simulation) InitializeWorld(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialize(width, height)
}

func (s *Simulation) initialize(width, height int) {
	s.stopPool()
	p := s.store.Load()
	s.board = world.New(width, height, p.AgentRadius)
	s.crowd = agents.NewCrowd()
	s.spawner = agents.NewSpawner(s.seed)
	s.recipe = Scenario{Width: width, Height: height, Seed: s.seed}
	s.tick = 0
	s.moved = 0
	s.running = false
	s.paused = false
	s.startedAt = time.Time{}

	slog.Info("world initialized", "width", width, "height", height, "seed", s.seed)
}

func (s *Simulation) stopPool() {
	if s.pool != nil {
		s.pool.close()
		s.pool = nil
	}
}

// Populate fills the rectangle spanned by two arbitrary corners with the
// given kind of content. Returns how many agents or obstacle cells were
// placed; an exhausted region places nothing and is not an error.
func (s *Simulation) Populate(kind string, a, b geom.Point) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return 0, ErrNotInitialized
	}
	return s.populate(kind, geom.NormalizeRect(a, b))
}

func (s *Simulation) populate(kind string, r geom.Rect) (int, error) {
	p := s.store.Load()
	var n int
	switch kind {
	case PopulateObstacles:
		n = s.spawner.PlaceObstacles(s.board, r)
	case PopulateCrowd:
		n = s.spawner.PlaceAgents(s.crowd, s.board, p, r)
	case PopulateGuards:
		n = s.spawner.PlaceGuardsInRows(s.crowd, s.board, p, r)
	case PopulateRubble:
		n = s.spawner.PlaceRubble(s.board, p, r)
	default:
		return 0, fmt.Errorf("populate %q: %w", kind, ErrUnknownKind)
	}
	s.recipe.Ops = append(s.recipe.Ops, Op{Kind: kind, Rect: r})

	slog.Info("populated", "kind", kind, "rect", r, "placed", n, "agents", s.crowd.Len())
	return n, nil
}

// SpawnAgent places a single agent on an empty cell. Direct spawns are not
// part of the scenario recipe.
func (s *Simulation) SpawnAgent(kind agents.Kind, pos geom.Point) (agents.AgentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return 0, ErrNotInitialized
	}
	id, err := s.spawner.Spawn(s.crowd, s.board, s.store.Load(), kind, pos)
	if err != nil {
		return 0, fmt.Errorf("spawn %v at %v: %w", kind, pos, err)
	}
	return id, nil
}

// Start marks the run active and brings up the worker pool.
func (s *Simulation) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return ErrNotInitialized
	}
	s.ensurePool()
	if !s.running {
		s.running = true
		s.startedAt = time.Now()
	}
	s.paused = false
	return nil
}

// Pause suspends free-running ticks. Step still works while paused.
func (s *Simulation) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume lifts a pause.
func (s *Simulation) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

// Active reports whether the engine loop should be issuing ticks.
func (s *Simulation) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.paused
}

// Reset rebuilds an empty board at the current size. The generator is
// reseeded with the run seed, so repeating the same populate calls
// reproduces the same board.
func (s *Simulation) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return ErrNotInitialized
	}
	s.initialize(s.board.Width, s.board.Height)
	return nil
}

// Replay rebuilds the world described by sc, adopting its seed.
func (s *Simulation) Replay(sc Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed = sc.Seed
	s.initialize(sc.Width, sc.Height)
	for i, op := range sc.Ops {
		if _, err := s.populate(op.Kind, op.Rect); err != nil {
			return fmt.Errorf("replay op %d: %w", i, err)
		}
	}
	return nil
}

// Scenario returns the recipe of the current board.
func (s *Simulation) Scenario() Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.recipe
	sc.Ops = append([]Op(nil), s.recipe.Ops...)
	return sc
}

// SetTarget moves the point the crowd heads for. Policemen ignore it.
func (s *Simulation) SetTarget(p geom.Point) {
	s.store.Update(func(params *config.Params) { params.Target = p })
}

// Target returns the current crowd target.
func (s *Simulation) Target() geom.Point {
	return s.store.Load().Target
}

// Step executes exactly one tick.
func (s *Simulation) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return ErrNotInitialized
	}
	return s.step()
}

func (s *Simulation) ensurePool() {
	if s.pool == nil {
		s.pool = newPool(workerCount(s.store.Load().Workers))
	}
}

// step runs the tick pipeline:
//  1. serial: police relay, then every agent's push settlement
//  2. parallel: state update, reading only committed state
//  3. serial: commit and move in arena order, with pushes
//
// A failed phase two aborts the tick before anything moves, and rolls the
// push state back so the next step settles the same pushes again.
func (s *Simulation) step() error {
	s.ensurePool()
	env := &agents.Env{
		Board:  s.board,
		Crowd:  s.crowd,
		Params: s.store.Load(),
		Seed:   s.seed,
		Tick:   s.tick,
	}
	all := s.crowd.Agents
	saved := s.crowd.SavePushState()

	agents.ResolveRelay(env)
	for _, a := range all {
		a.ApplyPushForces()
	}

	err := s.pool.run(func(part, parts int) {
		for i := part; i < len(all); i += parts {
			s.update(all[i], env)
		}
	})
	if err != nil {
		s.crowd.RestorePushState(saved)
		return fmt.Errorf("tick %d: %w", s.tick, err)
	}

	moved := 0
	for _, a := range all {
		if a.Commit(env) {
			moved++
		}
	}
	s.moved = moved
	s.tick++
	return nil
}

// Agents returns a display view of every agent.
func (s *Simulation) Agents() []agents.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views()
}

func (s *Simulation) views() []agents.View {
	if s.crowd == nil {
		return nil
	}
	out := make([]agents.View, 0, s.crowd.Len())
	for _, a := range s.crowd.Agents {
		out = append(out, a.View())
	}
	return out
}

// ObstacleRects returns the recorded obstacle rectangles, borders first.
func (s *Simulation) ObstacleRects() []geom.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return nil
	}
	return s.board.ObstacleRects()
}

// Snapshot returns the current frame.
func (s *Simulation) Snapshot() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Frame{Tick: s.tick, Target: s.store.Load().Target, Agents: s.views()}
}

// Status returns a summary of the simulation.
func (s *Simulation) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Tick:      s.tick,
		Running:   s.running,
		Paused:    s.paused,
		Seed:      s.seed,
		Moved:     s.moved,
		Target:    s.store.Load().Target,
		StartedAt: s.startedAt,
	}
	if s.board != nil {
		st.Width = s.board.Width
		st.Height = s.board.Height
		st.Agents = s.crowd.Len()
		st.Police = len(s.crowd.Police)
		st.Obstacles = s.board.ObstacleCount()
		st.FreeCells = s.board.FreeCount()
	}
	return st
}

// Close releases the worker pool.
func (s *Simulation) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopPool()
}
