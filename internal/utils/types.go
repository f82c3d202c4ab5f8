package utils

import "time"

// ServerConfig is the on-disk shape of the serve command configuration.
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	TempDir      string        `yaml:"temp_dir"`
	YtdlpPath    string        `yaml:"ytdlp_path"`
	AutoInstall  bool          `yaml:"auto_install"`
	Format       string        `yaml:"format"`
	Timeout      time.Duration `yaml:"timeout"`
	SweepAfter   time.Duration `yaml:"sweep_after"`
	OutputStem   string        `yaml:"output_stem"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

type HTTPClientConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
}
