package uppercase

import (
	"context"

	"pkg.jsn.cam/dmap/pkg/dmap"
)

// App upper-cases the ASCII letters of its input, one byte per element.
type App struct{}

// Upper maps one byte. Non-ASCII bytes pass through unchanged.
func Upper(b byte) byte {
	if 'a' <= b && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

func (App) Run(ctx context.Context, exec dmap.Exec, p dmap.Params) error {
	if !exec.IsMaster {
		_, err := dmap.Map(ctx, exec, Upper, nil, p.Options)
		return err
	}

	text, err := p.ReadInput()
	if err != nil {
		return err
	}

	out, err := dmap.Map(ctx, exec, Upper, text, p.Options)
	if err != nil {
		return err
	}

	return p.WriteOutput(out)
}

func (App) Description() string {
	return "Upper-cases the ASCII letters of a text file, byte by byte"
}
