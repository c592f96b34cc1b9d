package generator

import (
	"io"
	"math/rand/v2"
	"strings"
)

// TextGenerator writes lines of mixed-case words for the uppercase app.
type TextGenerator struct {
	WordsPerLine int
	rand         *rand.Rand
}

var words = []string{
	"the", "Quick", "brown", "fox", "jumps", "over", "lazy", "Dog",
	"map", "chunk", "worker", "Master", "socket", "frame", "stream", "ünïcode",
}

func (g *TextGenerator) Init(r *rand.Rand) {
	g.rand = r
}

func (g *TextGenerator) WriteLine(w io.Writer) error {
	n := max(1, g.WordsPerLine)

	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(words[g.rand.IntN(len(words))])
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

func (g *TextGenerator) Description() string {
	return "Text lines of mixed-case words (uppercase)"
}

func (g *TextGenerator) DefaultCount() int64 {
	return 1e4
}
