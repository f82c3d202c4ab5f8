package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/mediarelay/internal/utils"
	"golang.org/x/term"
)

// ProgressBar renders a percent as a fixed-width bar.
func ProgressBar(percent, width int) string {
	if width <= 0 {
		width = 30
	}
	percent = max(0, min(percent, 100))
	filled := percent * width / 100
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	bar += strings.Repeat(" ", width-filled)
	bar += StyleSymbols["bullet"]
	return fmt.Sprintf("%s %3d%%", bar, percent)
}

// Progress draws a single, redrawn status line for one transfer. On a
// non-terminal writer it prints a line per 10% step instead.
type Progress struct {
	mu          sync.Mutex
	out         io.Writer
	interactive bool
	width       int
	start       time.Time
	lastDecile  int
	lastPercent int
	drawn       bool
}

func NewProgress(out io.Writer) *Progress {
	p := &Progress{out: out, width: 30, start: time.Now(), lastDecile: -1, lastPercent: -1}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.interactive = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w < 80 {
			p.width = max(10, w-50)
		}
	}
	return p
}

// Update redraws the line for the given byte counts. total is 0 when unknown.
func (p *Progress) Update(received, total int64, percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.interactive {
		if decile := percent / 10; decile > p.lastDecile {
			p.lastDecile = decile
			fmt.Fprintln(p.out, p.line(received, total, percent))
		}
		return
	}
	if percent == p.lastPercent && percent != 100 && time.Since(p.start) < time.Second {
		return
	}
	p.lastPercent = percent
	p.drawn = true
	fmt.Fprintf(p.out, "\r\033[K%s", debugStyle.Render(p.line(received, total, percent)))
}

// Done ends the redrawn line.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interactive && p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

func (p *Progress) line(received, total int64, percent int) string {
	size := utils.FormatBytes(uint64(received))
	if total > 0 {
		size += " / " + utils.FormatBytes(uint64(total))
	} else {
		size += " / ?"
	}
	elapsed := time.Since(p.start).Seconds()
	return fmt.Sprintf("%s %s %s %s %s", ProgressBar(percent, p.width), StyleSymbols["bullet"], size, StyleSymbols["bullet"], utils.FormatSpeed(received, elapsed))
}
