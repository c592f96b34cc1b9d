package main

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// progressReporter draws a bar for the master's merged elements. The bar is
// created on the first report since the input size is only known once the
// application has read its input.
type progressReporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{w: w}
}

func (p *progressReporter) report(processed, total int) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription("mapping"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	_ = p.bar.Set(processed)
}

func (p *progressReporter) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
