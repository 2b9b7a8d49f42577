package testutils

import "github.com/argus-labs/presence/pkg/assert"

// Gen enumerates every combination of bounded choices made inside a `for !g.Done()` loop.
// Each iteration replays a value sequence and Done advances it to the next smallest sequence that
// still satisfies the recorded bounds, incrementing the rightmost position first.
//
// See: <https://matklad.github.io/2021/11/07/generate-all-the-things.html>
type Gen struct {
	started bool
	v       [32]struct{ value, bound uint32 }
	p       int
	pMax    int
}

func NewGen() *Gen {
	return &Gen{}
}

// Done returns true when all combinations have been produced.
func (g *Gen) Done() bool {
	if !g.started {
		g.started = true
		return false
	}
	for i := g.pMax - 1; i >= 0; i-- {
		if g.v[i].value < g.v[i].bound {
			g.v[i].value++
			g.pMax = i + 1
			g.p = 0
			return false
		}
	}
	return true
}

func (g *Gen) gen(bound uint32) uint32 {
	assert.That(g.p < len(g.v), "exhaustigen: exceeded maximum depth of %d", len(g.v))
	if g.p == g.pMax {
		g.v[g.p].value = 0
		g.pMax++
	}
	g.v[g.p].bound = bound
	g.p++
	return g.v[g.p-1].value
}

// Intn returns an int in [0, bound].
func (g *Gen) Intn(bound int) int {
	return int(g.gen(uint32(bound))) //nolint:gosec // bounds are small in tests
}

// Pick returns one element of slice, visiting every element across iterations.
func Pick[T any](g *Gen, slice []T) T {
	assert.That(len(slice) > 0, "exhaustigen: empty slice")
	return slice[g.Intn(len(slice)-1)]
}
