package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ResolveURL runs yt-dlp without downloading and returns its standard output.
func (r *YtdlpResolver) ResolveURL(ctx context.Context, sourceURL string) (string, error) {
	args := []string{
		"--no-warnings",
		"--skip-download",
		"--get-url",
		"--no-playlist",
		"-f", r.format,
		sourceURL,
	}
	var stdout bytes.Buffer
	if err := r.run(ctx, "resolver/resolve", args, &stdout); err != nil {
		return "", err
	}
	return stdout.String(), nil
}

// Materialize runs yt-dlp to download sourceURL into dir. The extension of the
// written file is chosen by yt-dlp.
func (r *YtdlpResolver) Materialize(ctx context.Context, sourceURL, dir string) error {
	args := []string{
		"--newline",
		"--no-warnings",
		"--no-playlist",
		"--restrict-filenames",
		"-f", r.format,
	}
	if r.ffmpeg != "" {
		args = append(args, "--ffmpeg-location", r.ffmpeg)
	}
	args = append(args, "-o", filepath.Join(dir, r.outputStem+".%(ext)s"), sourceURL)
	stdout := newLineWriter(func(line string) {
		log.Debug().Str("op", "resolver/materialize").Msg(line)
	})
	defer stdout.Flush()
	return r.run(ctx, "resolver/materialize", args, stdout)
}

func (r *YtdlpResolver) run(ctx context.Context, op string, args []string, stdout io.Writer) error {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.binary, args...)
	cmd.WaitDelay = killGrace
	stderr := newLineWriter(func(line string) {
		log.Debug().Str("op", op).Str("stream", "stderr").Msg(line)
	})
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	log.Debug().Str("op", op).Msgf("Executing yt-dlp command: %s", cmd.String())

	err := cmd.Run()
	stderr.Flush()
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		log.Error().Str("op", op).Dur("timeout", r.timeout).Msg("yt-dlp killed after timeout")
		return fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
	case ctx.Err() != nil:
		log.Warn().Str("op", op).Err(ctx.Err()).Msg("yt-dlp cancelled by caller")
		return fmt.Errorf("%w: %w", ErrExternalTool, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.Error().Str("op", op).Int("exit_code", exitErr.ExitCode()).Str("stderr", stderr.Tail()).Msg("yt-dlp command failed")
		return fmt.Errorf("%w: exit code %d", ErrExternalTool, exitErr.ExitCode())
	}
	log.Error().Str("op", op).Err(err).Msg("Error running yt-dlp")
	return fmt.Errorf("%w: %v", ErrExternalTool, err)
}
