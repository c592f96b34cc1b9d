package addconst

import (
	"context"
	"fmt"
	"strconv"

	"pkg.jsn.cam/dmap/pkg/dmap"
)

// Offset is the environment record.
type Offset struct {
	Add int `json:"add"`
}

// App adds a constant to every integer of its input. Without the "add"
// parameter no environment is sent and the input is copied unchanged.
type App struct{}

// Add is the element transform.
func Add(n int, env *Offset) int {
	if env == nil {
		return n
	}
	return n + env.Add
}

func (App) Run(ctx context.Context, exec dmap.Exec, p dmap.Params) error {
	if !exec.IsMaster {
		_, err := dmap.MapWithEnv(ctx, exec, Add, nil, nil, p.Options)
		return err
	}

	var env *Offset
	if raw, ok := p.Values["add"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("add: expected an integer, got %q", raw)
		}
		env = &Offset{Add: n}
	}

	lines, err := p.ReadLines()
	if err != nil {
		return err
	}

	input := make([]int, len(lines))
	for i, line := range lines {
		n, err := strconv.Atoi(line)
		if err != nil {
			return fmt.Errorf("line %d: expected an integer, got %q", i+1, line)
		}
		input[i] = n
	}

	out, err := dmap.MapWithEnv(ctx, exec, Add, input, env, p.Options)
	if err != nil {
		return err
	}

	return dmap.WriteLines(p, out)
}

func (App) Description() string {
	return "Adds the environment constant (--param add=N) to one integer per line"
}
