package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

const barWidth = 30

// progressBar renders the dispatch progress of a round on one terminal line.
// It renders nothing when the writer is not a terminal.
type progressBar struct {
	mu    sync.Mutex
	w     io.Writer
	label string
	tty   bool
}

func newProgressBar(w io.Writer, label string) *progressBar {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &progressBar{w: w, label: label, tty: tty}
}

// Update draws done out of total and ends the line once the round is fully
// dispatched
func (p *progressBar) Update(done, total int) {
	if !p.tty || total <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.w, "\r"+render(p.label, done, total))
	if done >= total {
		fmt.Fprintln(p.w)
	}
}

func render(label string, done, total int) string {
	done = min(max(done, 0), total)
	filled := barWidth * done / total
	return fmt.Sprintf("%-8s [%s%s] %d/%d",
		label, strings.Repeat("#", filled), strings.Repeat(" ", barWidth-filled), done, total)
}
