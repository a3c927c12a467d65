package tourist

import "math/rand"

// seededRand adapts a deterministic math/rand generator to the IntN method
// used by the tests (math/rand/v2 is not available on go1.21).
type seededRand struct{ *rand.Rand }

func (r seededRand) IntN(n int) int { return r.Intn(n) }

func newSeededRand(seed1, seed2 uint64) seededRand {
	return seededRand{rand.New(rand.NewSource(int64(seed1<<32 ^ seed2)))}
}
