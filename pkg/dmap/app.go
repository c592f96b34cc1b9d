package dmap

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// App is a complete dmap program: the master reads Params.Input, maps it
// across the workers and writes Params.Output; a worker only serves chunks.
type App interface {
	Run(ctx context.Context, exec Exec, p Params) error
	Description() string
}

// Params carries what an App needs besides its role.
type Params struct {
	// Input and Output are file paths; "-" or "" means stdin/stdout.
	Input  string
	Output string
	// Values holds app-specific key=value settings.
	Values  map[string]string
	Options Options

	stdin  io.Reader
	stdout io.Writer
}

// WithStdio replaces stdin and stdout for "-" paths.
func (p Params) WithStdio(stdin io.Reader, stdout io.Writer) Params {
	p.stdin, p.stdout = stdin, stdout
	return p
}

// Value returns the setting for key, or def when it is unset.
func (p Params) Value(key, def string) string {
	if v, ok := p.Values[key]; ok {
		return v
	}
	return def
}

// ReadInput returns the whole input.
func (p Params) ReadInput() ([]byte, error) {
	if p.Input == "" || p.Input == "-" {
		r := p.stdin
		if r == nil {
			r = os.Stdin
		}
		return io.ReadAll(r)
	}

	data, err := os.ReadFile(p.Input)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// ReadLines returns the non-blank input lines, trimmed.
func (p Params) ReadLines() ([]string, error) {
	data, err := p.ReadInput()
	if err != nil {
		return nil, err
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}

	return lines, sc.Err()
}

// WriteOutput writes data to the output, creating or truncating the file.
func (p Params) WriteOutput(data []byte) error {
	if p.Output == "" || p.Output == "-" {
		w := p.stdout
		if w == nil {
			w = os.Stdout
		}
		_, err := w.Write(data)
		return err
	}

	if err := os.WriteFile(p.Output, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// WriteLines writes one value per line.
func WriteLines[T any](p Params, values []T) error {
	var b strings.Builder
	for _, v := range values {
		fmt.Fprintln(&b, v)
	}
	return p.WriteOutput([]byte(b.String()))
}
