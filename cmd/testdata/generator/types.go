package generator

import (
	"io"
	"math/rand/v2"
)

// Generator produces input files for one dmap application.
type Generator interface {
	// Init gives the generator its own random source.
	Init(r *rand.Rand)

	// WriteLine writes a single input line.
	WriteLine(w io.Writer) error

	Description() string

	// DefaultCount is the suggested number of lines.
	DefaultCount() int64
}
