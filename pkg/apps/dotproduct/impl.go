package dotproduct

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pkg.jsn.cam/dmap/pkg/dmap"
)

// Row is one input element and Vector the environment every row is
// multiplied with.
type (
	Row    [3]int
	Vector [3]int
)

// App computes the dot product of every input row with the vector given
// as the "vector" parameter.
type App struct{}

// Dot is the element transform.
func Dot(row Row, v *Vector) int {
	return row[0]*v[0] + row[1]*v[1] + row[2]*v[2]
}

// ParseTriple reads three integers separated by commas and/or spaces.
func ParseTriple(s string) ([3]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) != 3 {
		return [3]int{}, fmt.Errorf("expected 3 integers, got %q", s)
	}

	var t [3]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return [3]int{}, fmt.Errorf("expected 3 integers, got %q", s)
		}
		t[i] = n
	}

	return t, nil
}

func (App) Run(ctx context.Context, exec dmap.Exec, p dmap.Params) error {
	if !exec.IsMaster {
		_, err := dmap.MapWithEnv(ctx, exec, Dot, nil, nil, p.Options)
		return err
	}

	raw, ok := p.Values["vector"]
	if !ok {
		return fmt.Errorf("dotproduct needs --param vector=a,b,c")
	}

	v, err := ParseTriple(raw)
	if err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	vector := Vector(v)

	lines, err := p.ReadLines()
	if err != nil {
		return err
	}

	rows := make([]Row, len(lines))
	for i, line := range lines {
		t, err := ParseTriple(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		rows[i] = Row(t)
	}

	out, err := dmap.MapWithEnv(ctx, exec, Dot, rows, &vector, p.Options)
	if err != nil {
		return err
	}

	return dmap.WriteLines(p, out)
}

func (App) Description() string {
	return "Dot product of every row \"a,b,c\" with the environment vector (--param vector=a,b,c)"
}
