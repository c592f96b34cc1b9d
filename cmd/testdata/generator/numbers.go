package generator

import (
	"fmt"
	"io"
	"math/rand/v2"
)

// IntGenerator writes one integer per line in [-Bound, Bound] for addconst.
type IntGenerator struct {
	Bound int
	rand  *rand.Rand
}

func (g *IntGenerator) Init(r *rand.Rand) {
	g.rand = r
}

func (g *IntGenerator) WriteLine(w io.Writer) error {
	_, err := fmt.Fprintln(w, g.value())
	return err
}

func (g *IntGenerator) value() int {
	return g.rand.IntN(2*g.Bound+1) - g.Bound
}

func (g *IntGenerator) Description() string {
	return "One integer per line (addconst)"
}

func (g *IntGenerator) DefaultCount() int64 {
	return 1e5
}

// RowGenerator writes rows "a,b,c" for dotproduct.
type RowGenerator struct {
	IntGenerator
}

func (g *RowGenerator) WriteLine(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d,%d,%d\n", g.value(), g.value(), g.value())
	return err
}

func (g *RowGenerator) Description() string {
	return "Rows of three comma separated integers (dotproduct)"
}
