package utils

import "time"

const DefaultBufferSize = 32 * 1024 // 32KB read buffer for relayed streams
const DefaultListen = "127.0.0.1:3000"
const DefaultServer = "http://127.0.0.1:3000"
const DefaultTempDir = ".mediarelay-temp"
const DefaultFormat = "best"
const DefaultOutputStem = "%(title)s"
const DefaultMaxBodyBytes = 64 * 1024
const DefaultTimeout = 10 * time.Minute
const DefaultSweepAfter = 6 * time.Hour
const ToolUserAgent = "mediarelay/1.0"

// DefaultServerConfig returns the values used when neither flags nor a config file set them.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Listen:       DefaultListen,
		TempDir:      DefaultTempDir,
		Format:       DefaultFormat,
		Timeout:      DefaultTimeout,
		SweepAfter:   DefaultSweepAfter,
		OutputStem:   DefaultOutputStem,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}
