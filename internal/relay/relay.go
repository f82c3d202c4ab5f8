package relay

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/mediarelay/internal/store"
	"github.com/tanq16/mediarelay/internal/utils"
)

var ErrIO = errors.New("relay i/o failure")

// Releaser gives back the transient resources backing a relayed file.
type Releaser interface {
	Release() error
}

// Send streams f to w as an attachment and releases ws afterwards, whatever
// the outcome. It returns the number of body bytes written.
//
// Headers are only written once the file is open, so an open failure still
// leaves the caller free to send a JSON error. After that, a failure can only
// cut the response short.
func Send(w http.ResponseWriter, ws Releaser, f *store.File) (written int64, err error) {
	defer func() {
		if relErr := ws.Release(); relErr != nil {
			log.Warn().Str("op", "relay/send").Err(relErr).Msg("Error releasing transient file")
		}
	}()

	src, err := os.Open(f.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: opening %s: %v", ErrIO, f.Name, err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", ErrIO, f.Name, err)
	}

	h := w.Header()
	h.Set("Content-Type", contentType(f.Path))
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	h.Set("Content-Disposition", ContentDisposition(f.Name))
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, utils.DefaultBufferSize)
	written, err = io.CopyBuffer(w, onlyReader{src}, buf)
	if err != nil {
		log.Error().Str("op", "relay/send").Err(err).Int64("written", written).Int64("size", info.Size()).Msg("Relay interrupted")
		return written, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if written != info.Size() {
		return written, fmt.Errorf("%w: short copy %d of %d bytes", ErrIO, written, info.Size())
	}
	log.Debug().Str("op", "relay/send").Str("file", f.Name).Int64("bytes", written).Msg("Relay complete")
	return written, nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// ContentDisposition renders an attachment header with a quoted filename.
// Names outside printable ASCII also get an RFC 2231 filename* parameter and
// an underscore-substituted ASCII fallback.
func ContentDisposition(name string) string {
	if name == "" {
		name = "video"
	}
	quoted := `attachment; filename="` + quoteEscaper.Replace(asciiFallback(name)) + `"`
	if isPrintableASCII(name) {
		return quoted
	}
	extended := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if extended == "" {
		return quoted
	}
	return quoted + strings.TrimPrefix(extended, "attachment")
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

func asciiFallback(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '_'
		}
		return r
	}, s)
}

func contentType(path string) string {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return m.String()
}

// onlyReader hides os.File's WriterTo so copies always go through buf.
type onlyReader struct {
	io.Reader
}
