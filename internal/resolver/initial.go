package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/mediarelay/internal/utils"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrExternalTool   = errors.New("external tool failed")
	ErrTimeout        = errors.New("external tool timed out")
	ErrUnknownFormat  = errors.New("unsupported format")
	ErrBinaryNotFound = errors.New("yt-dlp not found")

	ErrInvalidScheme = fmt.Errorf("%w: unsupported scheme", ErrInvalidInput)
)

// Resolver is the narrow contract the relay has with the resolution tool.
// ResolveURL returns the tool's raw standard output; Materialize writes
// exactly one media file into dir.
type Resolver interface {
	ResolveURL(ctx context.Context, sourceURL string) (string, error)
	Materialize(ctx context.Context, sourceURL, dir string) error
}

var ytdlpFormats = map[string]string{
	"best":     "best",
	"bestav":   "bestvideo+bestaudio/best",
	"best60":   "bestvideo[fps<=60]+bestaudio/best",
	"bestmp4":  "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]",
	"decent":   "bestvideo[height<=1080]+bestaudio/best",
	"decent60": "bestvideo[height<=1080][fps<=60]+bestaudio/best",
	"cheap":    "bestvideo[height<=720]+bestaudio/best",
	"1080p":    "bestvideo[height=1080][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]",
	"720p":     "bestvideo[height=720][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]",
	"480p":     "bestvideo[height=480][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]",
	"audio":    "bestaudio[ext=m4a]/bestaudio",
}

// Formats lists the accepted format preset names, sorted.
func Formats() []string {
	names := make([]string, 0, len(ytdlpFormats))
	for name := range ytdlpFormats {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

type Config struct {
	Binary     string        // path to yt-dlp; empty means discover
	FFmpeg     string        // optional ffmpeg location for merged formats
	Format     string        // preset name from ytdlpFormats
	OutputStem string        // yt-dlp output template without extension
	Timeout    time.Duration // per invocation; zero means utils.DefaultTimeout
}

// killGrace bounds how long Wait blocks on output pipes after the process is killed.
const killGrace = 5 * time.Second

type YtdlpResolver struct {
	binary     string
	ffmpeg     string
	format     string
	outputStem string
	timeout    time.Duration
}

func NewYtdlpResolver(cfg Config) (*YtdlpResolver, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("%w: no binary configured", ErrBinaryNotFound)
	}
	if cfg.Format == "" {
		cfg.Format = utils.DefaultFormat
	}
	selector, ok := ytdlpFormats[cfg.Format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, cfg.Format)
	}
	if cfg.OutputStem == "" {
		cfg.OutputStem = utils.DefaultOutputStem
	}
	if strings.ContainsAny(cfg.OutputStem, `/\`) {
		return nil, fmt.Errorf("output stem must not contain path separators")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = utils.DefaultTimeout
	}
	log.Debug().Str("op", "resolver/new").Str("binary", cfg.Binary).Str("format", selector).Dur("timeout", cfg.Timeout).Msg("yt-dlp resolver configured")
	return &YtdlpResolver{
		binary:     cfg.Binary,
		ffmpeg:     cfg.FFmpeg,
		format:     selector,
		outputStem: cfg.OutputStem,
		timeout:    cfg.Timeout,
	}, nil
}

// ValidateSourceURL accepts only absolute http(s) URLs with a host.
func ValidateSourceURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", ErrInvalidInput)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("%w: url must be absolute", ErrInvalidInput)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w %q", ErrInvalidScheme, parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: url has no host", ErrInvalidInput)
	}
	return parsed, nil
}

// EnsureYtdlp finds a usable yt-dlp binary. An explicit path wins, then PATH,
// then a binary next to the executable, then (when allowed) a fresh download
// into cacheDir.
func EnsureYtdlp(configured string, autoInstall bool, cacheDir string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBinaryNotFound, err)
		}
		return configured, nil
	}
	path, err := exec.LookPath("yt-dlp")
	if err == nil {
		return path, nil
	}
	execDir, err := os.Executable()
	if err == nil {
		ytdlpPath := filepath.Join(filepath.Dir(execDir), "yt-dlp")
		if runtime.GOOS == "windows" {
			ytdlpPath += ".exe"
		}
		if _, err := os.Stat(ytdlpPath); err == nil {
			return ytdlpPath, nil
		}
	}
	if !autoInstall {
		return "", fmt.Errorf("%w: install it or pass --auto-install", ErrBinaryNotFound)
	}
	return downloadYtdlp(cacheDir)
}

// LookupFFmpeg returns the ffmpeg path if one is installed, or "".
func LookupFFmpeg() string {
	path, err := exec.LookPath("ffmpeg")
	if err == nil {
		return path
	}
	execDir, err := os.Executable()
	if err == nil {
		ffmpegPath := filepath.Join(filepath.Dir(execDir), "ffmpeg")
		if runtime.GOOS == "windows" {
			ffmpegPath += ".exe"
		}
		if _, err := os.Stat(ffmpegPath); err == nil {
			return ffmpegPath
		}
	}
	return ""
}
