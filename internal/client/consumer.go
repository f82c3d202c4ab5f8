package client

import (
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"regexp"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/mediarelay/internal/utils"
)

var ErrTransfer = errors.New("transfer failed")

// DefaultReferenceSize is the assumed payload size used to estimate progress
// when the server declares no length.
const DefaultReferenceSize = 200 * 1024

// estimateCap is where the estimate stops until the stream really ends.
const estimateCap = 95

const defaultFilename = "video"

var filenameRegex = regexp.MustCompile(`filename="?([^"]+)"?`)

// Transfer is the state of one in-flight response body. Percent is derived
// from Received and Total on every chunk.
type Transfer struct {
	Received int64
	Total    int64 // 0 when the response declared no length
	Chunks   [][]byte
	Percent  int
}

type Payload struct {
	Name string
	Data []byte
}

type Consumer struct {
	ReferenceSize int64
	BufferSize    int
	OnProgress    func(t Transfer)
}

// Consume reads resp.Body to the end, reporting progress after every chunk,
// and returns the assembled payload. A read error discards everything
// received so far. The body is closed either way.
func (c *Consumer) Consume(resp *http.Response) (*Payload, error) {
	defer resp.Body.Close()
	ref := c.ReferenceSize
	if ref <= 0 {
		ref = DefaultReferenceSize
	}
	bufSize := c.BufferSize
	if bufSize <= 0 {
		bufSize = utils.DefaultBufferSize
	}

	t := Transfer{Total: max(resp.ContentLength, 0)}
	buf := make([]byte, bufSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.Chunks = append(t.Chunks, chunk)
			t.Received += int64(n)
			t.Percent = max(t.Percent, progress(t.Received, t.Total, ref))
			c.report(t)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Debug().Str("op", "client/consume").Int64("received", t.Received).Err(err).Msg("Stream aborted")
			return nil, fmt.Errorf("%w after %d bytes: %v", ErrTransfer, t.Received, err)
		}
	}
	t.Percent = 100
	c.report(t)

	data := make([]byte, 0, t.Received)
	for _, chunk := range t.Chunks {
		data = append(data, chunk...)
	}
	return &Payload{
		Name: FilenameFromHeader(resp.Header.Get("Content-Disposition")),
		Data: data,
	}, nil
}

func (c *Consumer) report(t Transfer) {
	if c.OnProgress != nil {
		c.OnProgress(t)
	}
}

// progress returns the exact percentage when total is known, otherwise an
// estimate against ref that never passes estimateCap.
func progress(received, total, ref int64) int {
	if total > 0 {
		return clampPercent(math.Round(100 * float64(received) / float64(total)))
	}
	return min(estimateCap, clampPercent(math.Round(100*float64(received)/float64(ref))))
}

func clampPercent(p float64) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(p)
}

// FilenameFromHeader extracts the filename of a Content-Disposition value,
// defaulting to "video".
func FilenameFromHeader(header string) string {
	if header == "" {
		return defaultFilename
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	if m := filenameRegex.FindStringSubmatch(header); m != nil && m[1] != "" {
		return m[1]
	}
	return defaultFilename
}
