// Rubble generation using layered simplex noise.
// Scatters single-cell obstacles over a region where the noise field peaks,
// giving irregular debris fields instead of solid walls.
package world

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/crowdforce/internal/geom"
)

// Noise sampling parameters for rubble fields.
const (
	rubbleOctaves     = 2
	rubbleFrequency   = 0.15
	rubblePersistence = 0.5
)

// ScatterRubble places an obstacle on every free cell strictly inside r
// whose normalized noise value exceeds threshold. Each rubble cell is
// recorded as its own 3×3 obstacle rectangle (one cell strictly inside), so
// the spawn halo wraps individual debris rather than the whole region.
// Returns the number of cells filled.
func (b *Board) ScatterRubble(r geom.Rect, seed int64, threshold float64) int {
	noise := opensimplex.NewNormalized(seed)
	cells := b.FreeCellsInRegion(r, false, 0)

	placed := 0
	for _, p := range cells.Items() {
		if rubbleNoise(noise, p) <= threshold {
			continue
		}
		b.SetOccupant(p, Occupant{Kind: ObstacleCell})
		b.rects = append(b.rects, geom.Rect{
			Min: geom.Point{X: p.X - 1, Y: p.Y - 1},
			Max: geom.Point{X: p.X + 1, Y: p.Y + 1},
		})
		placed++
	}
	return placed
}

// rubbleNoise samples the noise field at cell p, summing rubbleOctaves
// layers that each double the frequency and scale down by
// rubblePersistence. The result stays in the noise's [0, 1) range.
func rubbleNoise(noise opensimplex.Noise, p geom.Point) float64 {
	var sum, norm float64
	freq, weight := rubbleFrequency, 1.0
	for i := 0; i < rubbleOctaves; i++ {
		sum += weight * noise.Eval2(float64(p.X)*freq, float64(p.Y)*freq)
		norm += weight
		freq *= 2
		weight *= rubblePersistence
	}
	return sum / norm
}
