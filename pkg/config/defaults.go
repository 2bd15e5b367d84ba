package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// AppConfigDir is the directory under the root dir that holds config files.
	AppConfigDir = "config"
	// ConfigFileName is the base name of the configuration file.
	ConfigFileName = "devnode"
	// ConfigExtension is the config file format.
	ConfigExtension = "yaml"
	// ConfigName is ConfigFileName with the file extension.
	ConfigName = ConfigFileName + "." + ConfigExtension

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "DEVNODE"

	// DefaultTxLimit is the per-block transaction cap in instant mining.
	DefaultTxLimit = 1000
)

// DefaultRootDir returns the default root directory, ~/.devnode, falling
// back to a relative path when the home directory cannot be resolved.
var DefaultRootDir = defaultRootDir()

func defaultRootDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".devnode"
	}
	return filepath.Join(home, ".devnode")
}

// DefaultConfig returns the default node configuration.
func DefaultConfig() Config {
	return Config{
		RootDir: DefaultRootDir,
		DBPath:  "data",
		Node: NodeConfig{
			BlockTime: DurationWrapper{Duration: 0 * time.Second},
			NoMining:  false,
			TxLimit:   DefaultTxLimit,
		},
		Fork: ForkConfig{
			URL:         "",
			BlockNumber: 0,
		},
		Instrumentation: InstrumentationConfig{
			Prometheus:           false,
			PrometheusListenAddr: ":26660",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
