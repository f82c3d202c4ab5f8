package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "•"+strings.Repeat(" ", 10)+"•   0%", ProgressBar(0, 10))
	assert.Equal(t, "•"+strings.Repeat("━", 5)+strings.Repeat(" ", 5)+"•  50%", ProgressBar(50, 10))
	assert.Equal(t, "•"+strings.Repeat("━", 10)+"• 100%", ProgressBar(150, 10))
	assert.Equal(t, "•"+strings.Repeat(" ", 10)+"•   0%", ProgressBar(-3, 10))
}

func TestProgress_NonInteractive(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	for _, pct := range []int{1, 5, 12, 19, 55, 95, 100} {
		p.Update(int64(pct)*10, 1000, pct)
	}
	p.Done()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// one line per new decile: 0, 1, 5, 9, 10
	assert.Len(t, lines, 5)
	assert.Contains(t, lines[len(lines)-1], "100%")
	assert.Contains(t, lines[0], "10 B / 1000 B")
}
