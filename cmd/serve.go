package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/mediarelay/internal/output"
	"github.com/tanq16/mediarelay/internal/pipeline"
	"github.com/tanq16/mediarelay/internal/resolver"
	"github.com/tanq16/mediarelay/internal/server"
	"github.com/tanq16/mediarelay/internal/store"
	"github.com/tanq16/mediarelay/internal/utils"
)

func newServeCmd() *cobra.Command {
	var configPath string
	flagCfg := utils.DefaultServerConfig()

	cmd := &cobra.Command{
		Use:   "serve [--listen ADDR] [--config FILE]",
		Short: "Run the relay HTTP server",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := resolveServeConfig(cmd, configPath, flagCfg)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if err := runServer(cfg); err != nil {
				log.Error().Str("op", "cmd/serve").Err(err).Msg("Server stopped with error")
				os.Exit(1)
			}
		},
	}

	bindServeFlags(cmd, &configPath, &flagCfg)
	return cmd
}

func bindServeFlags(cmd *cobra.Command, configPath *string, cfg *utils.ServerConfig) {
	f := cmd.Flags()
	f.StringVarP(configPath, "config", "c", "", "Path to a YAML server config (flags override it)")
	f.StringVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Address to listen on")
	f.StringVar(&cfg.TempDir, "temp-dir", cfg.TempDir, "Directory for transient downloads")
	f.StringVar(&cfg.YtdlpPath, "ytdlp", "", "Path to the yt-dlp binary (default: discover)")
	f.BoolVar(&cfg.AutoInstall, "auto-install", false, "Download yt-dlp if it cannot be found")
	f.StringVar(&cfg.Format, "format", cfg.Format, "Format preset ("+strings.Join(resolver.Formats(), ", ")+")")
	f.StringVar(&cfg.OutputStem, "output-stem", cfg.OutputStem, "yt-dlp output template for the file name, without extension")
	f.DurationVar(&cfg.Timeout, "process-timeout", cfg.Timeout, "Kill yt-dlp after this long (eg. 90s, 10m)")
	f.DurationVar(&cfg.SweepAfter, "sweep-after", cfg.SweepAfter, "Remove leftover workspaces older than this at start-up (0 disables)")
	f.Int64Var(&cfg.MaxBodyBytes, "max-body", cfg.MaxBodyBytes, "Maximum request body size in bytes")
}

// resolveServeConfig layers explicitly set flags over the config file, which
// itself sits over the defaults, and rejects unknown format presets.
func resolveServeConfig(cmd *cobra.Command, configPath string, flagCfg utils.ServerConfig) (utils.ServerConfig, error) {
	cfg, err := mergeServeConfig(cmd, configPath, flagCfg)
	if err != nil {
		return cfg, err
	}
	if !slices.Contains(resolver.Formats(), cfg.Format) {
		return cfg, fmt.Errorf("%w: %q (choose from %s)", resolver.ErrUnknownFormat, cfg.Format, strings.Join(resolver.Formats(), ", "))
	}
	return cfg, nil
}

func mergeServeConfig(cmd *cobra.Command, configPath string, flagCfg utils.ServerConfig) (utils.ServerConfig, error) {
	if configPath == "" {
		return flagCfg, nil
	}
	cfg, err := utils.LoadServerConfig(configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = flagCfg.Listen
	}
	if flags.Changed("temp-dir") {
		cfg.TempDir = flagCfg.TempDir
	}
	if flags.Changed("ytdlp") {
		cfg.YtdlpPath = flagCfg.YtdlpPath
	}
	if flags.Changed("auto-install") {
		cfg.AutoInstall = flagCfg.AutoInstall
	}
	if flags.Changed("format") {
		cfg.Format = flagCfg.Format
	}
	if flags.Changed("output-stem") {
		cfg.OutputStem = flagCfg.OutputStem
	}
	if flags.Changed("process-timeout") {
		cfg.Timeout = flagCfg.Timeout
	}
	if flags.Changed("sweep-after") {
		cfg.SweepAfter = flagCfg.SweepAfter
	}
	if flags.Changed("max-body") {
		cfg.MaxBodyBytes = flagCfg.MaxBodyBytes
	}
	return cfg, nil
}

func runServer(cfg utils.ServerConfig) error {
	st, err := store.New(cfg.TempDir)
	if err != nil {
		return err
	}
	if cfg.SweepAfter > 0 {
		if n, err := st.Sweep(cfg.SweepAfter); err != nil {
			log.Warn().Str("op", "cmd/serve").Err(err).Msg("Error sweeping leftover workspaces")
		} else if n > 0 {
			log.Info().Str("op", "cmd/serve").Int("removed", n).Msg("Removed leftover workspaces")
		}
	}

	binary, err := resolver.EnsureYtdlp(cfg.YtdlpPath, cfg.AutoInstall, filepath.Join(st.Root(), "bin"))
	if err != nil {
		return fmt.Errorf("error ensuring yt-dlp: %w", err)
	}
	ffmpeg := resolver.LookupFFmpeg()
	if ffmpeg == "" {
		output.PrintWarning("ffmpeg not found, formats that need merging may fail")
	}
	r, err := resolver.NewYtdlpResolver(resolver.Config{
		Binary:     binary,
		FFmpeg:     ffmpeg,
		Format:     cfg.Format,
		OutputStem: cfg.OutputStem,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return err
	}

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(pipeline.NewService(r, st), server.Config{MaxBodyBytes: cfg.MaxBodyBytes})
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", cfg.Listen, err)
	}
	output.PrintSuccess(fmt.Sprintf("Relay listening on http://%s", ln.Addr().String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx, ln)
}
