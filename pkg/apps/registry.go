// Package apps registers the programs the dmap command can run.
package apps

import (
	"errors"
	"fmt"
	"slices"

	"pkg.jsn.cam/dmap/pkg/apps/addconst"
	"pkg.jsn.cam/dmap/pkg/apps/dotproduct"
	"pkg.jsn.cam/dmap/pkg/apps/uppercase"
	"pkg.jsn.cam/dmap/pkg/dmap"
)

// ErrUnknownApp is returned by Get and Description.
var ErrUnknownApp = errors.New("unknown app")

var Apps = map[string]dmap.App{
	"uppercase":  uppercase.App{},
	"dotproduct": dotproduct.App{},
	"addconst":   addconst.App{},
}

func IsValid(name string) bool {
	_, exists := Apps[name]
	return exists
}

func Get(name string) (dmap.App, error) {
	app, exists := Apps[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownApp, name)
	}
	return app, nil
}

// List returns the registered names, sorted.
func List() []string {
	names := make([]string, 0, len(Apps))
	for name := range Apps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func Description(name string) (string, error) {
	app, err := Get(name)
	if err != nil {
		return "", err
	}
	return app.Description(), nil
}
