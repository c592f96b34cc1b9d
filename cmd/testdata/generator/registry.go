package generator

import (
	"fmt"
	"slices"
)

// Registry maps application names to generator factories.
var Registry = map[string]func() Generator{
	"uppercase":  func() Generator { return &TextGenerator{WordsPerLine: 8} },
	"addconst":   func() Generator { return &IntGenerator{Bound: 1000} },
	"dotproduct": func() Generator { return &RowGenerator{IntGenerator{Bound: 100}} },
}

// Get returns a fresh generator by name.
func Get(name string) (Generator, error) {
	factory, exists := Registry[name]
	if !exists {
		return nil, fmt.Errorf("unknown generator: %s", name)
	}
	return factory(), nil
}

// List returns all generator names, sorted.
func List() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
