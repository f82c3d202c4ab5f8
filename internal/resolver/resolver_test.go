package resolver

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/mediarelay/internal/utils"
)

// fakeYtdlp writes an executable shell script standing in for yt-dlp.
func fakeYtdlp(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func newTestResolver(t *testing.T, binary string, timeout time.Duration) *YtdlpResolver {
	t.Helper()
	r, err := NewYtdlpResolver(Config{Binary: binary, Timeout: timeout})
	require.NoError(t, err)
	return r
}

func TestValidateSourceURL(t *testing.T) {
	valid := []string{
		"https://example.com/v",
		"http://example.com/watch?v=1",
		"  HTTPS://Example.com/x  ",
	}
	for _, raw := range valid {
		_, err := ValidateSourceURL(raw)
		assert.NoError(t, err, raw)
	}
	invalid := []string{
		"",
		"   ",
		"example.com/v",
		"/relative/path",
		"ftp://example.com/file",
		"file:///etc/passwd",
		"javascript:alert(1)",
		"https://",
		"http://[::1",
	}
	for _, raw := range invalid {
		_, err := ValidateSourceURL(raw)
		assert.ErrorIs(t, err, ErrInvalidInput, raw)
	}

	_, err := ValidateSourceURL("ftp://example.com/file")
	assert.ErrorIs(t, err, ErrInvalidScheme)
	_, err = ValidateSourceURL("example.com/v")
	assert.NotErrorIs(t, err, ErrInvalidScheme)
}

func TestExtractDirectURL(t *testing.T) {
	t.Run("Should return the last non-empty line", func(t *testing.T) {
		got, err := ExtractDirectURL("warning: x\nhttps://cdn.example/v.mp4\n\n  \n")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/v.mp4", got)
	})

	t.Run("Should handle CRLF output", func(t *testing.T) {
		got, err := ExtractDirectURL("WARNING: slow\r\nhttps://cdn.example/a.m4a\r\n")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/a.m4a", got)
	})

	t.Run("Should fail on blank output", func(t *testing.T) {
		_, err := ExtractDirectURL("\n \n")
		assert.ErrorIs(t, err, ErrExternalTool)
	})
}

func TestNewYtdlpResolver(t *testing.T) {
	_, err := NewYtdlpResolver(Config{})
	assert.ErrorIs(t, err, ErrBinaryNotFound)

	_, err = NewYtdlpResolver(Config{Binary: "/bin/true", Format: "8k-hdr"})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = NewYtdlpResolver(Config{Binary: "/bin/true", OutputStem: "../escape"})
	assert.Error(t, err)

	r, err := NewYtdlpResolver(Config{Binary: "/bin/true", Format: "audio"})
	require.NoError(t, err)
	assert.Equal(t, "bestaudio[ext=m4a]/bestaudio", r.format)
	assert.Equal(t, utils.DefaultTimeout, r.timeout)
}

func TestFormats(t *testing.T) {
	names := Formats()
	assert.Contains(t, names, "best")
	assert.Contains(t, names, "audio")
	assert.IsNonDecreasing(t, names)
	assert.Len(t, names, len(ytdlpFormats))
}

func TestYtdlpResolver_ResolveURL(t *testing.T) {
	t.Run("Should pass resolve-mode flags and return stdout", func(t *testing.T) {
		argsFile := filepath.Join(t.TempDir(), "args")
		bin := fakeYtdlp(t, `echo "$@" > `+argsFile+`
echo "warning: x"
echo "https://cdn.example/v.mp4"
echo "noise on stderr" >&2`)
		r := newTestResolver(t, bin, time.Minute)

		out, err := r.ResolveURL(context.Background(), "https://example.com/v")
		require.NoError(t, err)
		direct, err := ExtractDirectURL(out)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/v.mp4", direct)

		args, err := os.ReadFile(argsFile)
		require.NoError(t, err)
		assert.Contains(t, string(args), "--skip-download")
		assert.Contains(t, string(args), "--get-url")
		assert.Contains(t, string(args), "-f best")
		assert.True(t, strings.HasSuffix(strings.TrimSpace(string(args)), "https://example.com/v"))
	})

	t.Run("Should map non-zero exit to ErrExternalTool", func(t *testing.T) {
		bin := fakeYtdlp(t, `echo "ERROR: unsupported URL" >&2
exit 3`)
		r := newTestResolver(t, bin, time.Minute)
		_, err := r.ResolveURL(context.Background(), "https://example.com/v")
		assert.ErrorIs(t, err, ErrExternalTool)
		assert.Contains(t, err.Error(), "exit code 3")
	})

	t.Run("Should kill the process after the timeout", func(t *testing.T) {
		bin := fakeYtdlp(t, `exec sleep 10`)
		r := newTestResolver(t, bin, 100*time.Millisecond)
		start := time.Now()
		_, err := r.ResolveURL(context.Background(), "https://example.com/v")
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("Should stop when the caller cancels", func(t *testing.T) {
		bin := fakeYtdlp(t, `exec sleep 10`)
		r := newTestResolver(t, bin, time.Minute)
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(100*time.Millisecond, cancel)
		_, err := r.ResolveURL(ctx, "https://example.com/v")
		assert.ErrorIs(t, err, ErrExternalTool)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestYtdlpResolver_Materialize(t *testing.T) {
	t.Run("Should write into the given directory with a tool-chosen extension", func(t *testing.T) {
		bin := fakeYtdlp(t, `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; fi
  shift
done
out=$(printf '%s' "$out" | sed 's/%(title)s/clip/; s/%(ext)s/webm/')
printf 'media-bytes' > "$out"
echo "[download] 100% of 11B"`)
		r := newTestResolver(t, bin, time.Minute)
		dir := t.TempDir()

		require.NoError(t, r.Materialize(context.Background(), "https://example.com/v", dir))
		data, err := os.ReadFile(filepath.Join(dir, "clip.webm"))
		require.NoError(t, err)
		assert.Equal(t, "media-bytes", string(data))
	})

	t.Run("Should map non-zero exit to ErrExternalTool", func(t *testing.T) {
		bin := fakeYtdlp(t, `exit 1`)
		r := newTestResolver(t, bin, time.Minute)
		err := r.Materialize(context.Background(), "https://example.com/v", t.TempDir())
		assert.ErrorIs(t, err, ErrExternalTool)
	})
}

func TestLineWriter(t *testing.T) {
	var got []string
	w := newLineWriter(func(line string) { got = append(got, line) })
	_, _ = w.Write([]byte("one\n\ntw"))
	_, _ = w.Write([]byte("o\nthree"))
	assert.Equal(t, []string{"one", "two"}, got)
	w.Flush()
	assert.Equal(t, []string{"one", "two", "three"}, got)
	assert.Equal(t, "one | two | three", w.Tail())
}

func TestEnsureYtdlp(t *testing.T) {
	t.Run("Should accept an existing configured path", func(t *testing.T) {
		bin := fakeYtdlp(t, "exit 0")
		got, err := EnsureYtdlp(bin, false, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, bin, got)
	})

	t.Run("Should reject a missing configured path", func(t *testing.T) {
		_, err := EnsureYtdlp(filepath.Join(t.TempDir(), "nope"), false, t.TempDir())
		assert.ErrorIs(t, err, ErrBinaryNotFound)
	})
}
