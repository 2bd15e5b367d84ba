// Package config loads and validates the node configuration from defaults,
// a YAML configuration file, and command line flags, in ascending order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// FlagRootDir is a flag for specifying the root directory
	FlagRootDir = "home"
	// FlagDBPath is a flag for specifying the database path
	FlagDBPath = "db_path"

	// FlagBlockTime is a flag for fixed-interval mining; 0 selects instant mining
	FlagBlockTime = "node.block_time"
	// FlagNoMining is a flag for disabling block production entirely
	FlagNoMining = "node.no_mining"
	// FlagTxLimit is a flag for the per-block transaction cap in instant mining
	FlagTxLimit = "node.tx_limit"

	// FlagForkURL is a flag for the upstream chain to fork off
	FlagForkURL = "fork.url"
	// FlagForkBlockNumber is a flag for the fork boundary height (0 = latest)
	FlagForkBlockNumber = "fork.block_number"
	// FlagForkChainID is a flag for the expected upstream chain ID
	FlagForkChainID = "fork.chain_id"

	// FlagLogLevel is a flag for specifying the log level
	FlagLogLevel = "log.level"
	// FlagLogFormat is a flag for specifying the log format
	FlagLogFormat = "log.format"

	// FlagPrometheus is a flag for enabling Prometheus metrics
	FlagPrometheus = "instrumentation.prometheus"
	// FlagPrometheusListenAddr is a flag for the Prometheus listen address
	FlagPrometheusListenAddr = "instrumentation.prometheus_listen_addr"
)

// ErrReadYaml is returned when the configuration file cannot be decoded.
var ErrReadYaml = errors.New("reading yaml config")

// DurationWrapper wraps time.Duration so durations render as strings
// ("250ms", "5s") in the YAML configuration file.
type DurationWrapper struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d DurationWrapper) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DurationWrapper) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = duration
	return nil
}

// Config stores the devnode configuration.
type Config struct {
	RootDir string `mapstructure:"-" yaml:"-" comment:"Root directory where devnode files are located"`

	// Base configuration
	DBPath string `mapstructure:"db_path" yaml:"db_path" comment:"Path inside the root directory where the database is located"`

	// Node specific configuration
	Node NodeConfig `mapstructure:"node" yaml:"node"`

	// Fork configuration
	Fork ForkConfig `mapstructure:"fork" yaml:"fork"`

	// Instrumentation configuration
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation" yaml:"instrumentation"`

	// Logging configuration
	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// NodeConfig holds block-production settings.
type NodeConfig struct {
	// BlockTime selects fixed-interval mining when non-zero. Zero means
	// instant mining: a block as soon as transactions are ready.
	BlockTime DurationWrapper `mapstructure:"block_time" yaml:"block_time" comment:"Fixed mining interval (duration). 0 mines a block as soon as transactions are ready. Examples: \"1s\", \"12s\", \"2m30s\"."`

	// NoMining disables block production entirely until a mode change.
	NoMining bool `mapstructure:"no_mining" yaml:"no_mining" comment:"Disable block production. Blocks are only produced on explicit request."`

	// TxLimit caps transactions per block in instant mining.
	TxLimit int `mapstructure:"tx_limit" yaml:"tx_limit" comment:"Maximum transactions pulled per block in instant mining."`
}

// ForkConfig holds upstream-fork settings.
type ForkConfig struct {
	// URL of the upstream JSON-RPC endpoint. Empty disables forking.
	URL string `mapstructure:"url" yaml:"url" comment:"JSON-RPC endpoint of the chain to fork off. Empty starts a fresh chain."`

	// BlockNumber is the fork boundary height. Zero forks off the latest block.
	BlockNumber uint64 `mapstructure:"block_number" yaml:"block_number" comment:"Height to fork at. 0 forks off the latest block."`

	// ChainID, when non-zero, must match the upstream chain or startup fails.
	ChainID uint64 `mapstructure:"chain_id" yaml:"chain_id" comment:"Expected chain ID of the upstream chain. 0 skips the check."`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" comment:"Log level (debug, info, warn, error)"`
	Format string `mapstructure:"format" yaml:"format" comment:"Log format (text, json)"`
}

// InstrumentationConfig holds metrics settings.
type InstrumentationConfig struct {
	Prometheus           bool   `mapstructure:"prometheus" yaml:"prometheus" comment:"Enable Prometheus metrics"`
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr" yaml:"prometheus_listen_addr" comment:"Prometheus metrics listen address"`
}

// Validate validates the config and ensures that the root directory exists.
// It creates the directory if it does not exist.
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return fmt.Errorf("root directory cannot be empty")
	}

	fullDir := filepath.Dir(c.ConfigPath())
	if err := os.MkdirAll(fullDir, 0o750); err != nil {
		return fmt.Errorf("could not create directory %q: %w", fullDir, err)
	}

	if c.Node.BlockTime.Duration < 0 {
		return fmt.Errorf("block time cannot be negative")
	}
	if c.Node.TxLimit < 0 {
		return fmt.Errorf("tx limit cannot be negative")
	}
	if c.Fork.URL == "" && (c.Fork.BlockNumber != 0 || c.Fork.ChainID != 0) {
		return fmt.Errorf("fork options require a fork URL")
	}
	return nil
}

// ConfigPath returns the path to the configuration file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.RootDir, AppConfigDir, ConfigName)
}

// AddGlobalFlags registers the basic configuration flags common across
// commands: logging and the root directory.
func AddGlobalFlags(cmd *cobra.Command) {
	def := DefaultConfig()

	cmd.PersistentFlags().String(FlagLogLevel, def.Log.Level, "Set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().String(FlagLogFormat, def.Log.Format, "Set the log format (text, json)")
	cmd.PersistentFlags().String(FlagRootDir, DefaultRootDir, "Root directory for application data")
}

// AddFlags adds devnode configuration options to a cobra Command.
func AddFlags(cmd *cobra.Command) {
	def := DefaultConfig()

	cmd.Flags().String(FlagDBPath, def.DBPath, "path for the node database")

	cmd.Flags().Duration(FlagBlockTime, def.Node.BlockTime.Duration, "fixed mining interval (0 mines as soon as transactions are ready)")
	cmd.Flags().Bool(FlagNoMining, def.Node.NoMining, "disable block production")
	cmd.Flags().Int(FlagTxLimit, def.Node.TxLimit, "maximum transactions per block in instant mining")

	cmd.Flags().String(FlagForkURL, def.Fork.URL, "JSON-RPC endpoint of the chain to fork off")
	cmd.Flags().Uint64(FlagForkBlockNumber, def.Fork.BlockNumber, "height to fork at (0 forks off the latest block)")
	cmd.Flags().Uint64(FlagForkChainID, def.Fork.ChainID, "expected chain ID of the upstream chain (0 skips the check)")

	cmd.Flags().Bool(FlagPrometheus, def.Instrumentation.Prometheus, "enable Prometheus metrics")
	cmd.Flags().String(FlagPrometheusListenAddr, def.Instrumentation.PrometheusListenAddr, "Prometheus metrics listen address")
}

// Load loads the node configuration in the following order of precedence:
// 1. DefaultConfig() (lowest priority)
// 2. YAML configuration file
// 3. Command line flags (highest priority)
func Load(cmd *cobra.Command) (Config, error) {
	home := rootDirFromFlags(cmd)
	if home == "" {
		home = DefaultRootDir
	} else if !filepath.IsAbs(home) {
		absHome, err := filepath.Abs(home)
		if err != nil {
			return Config{}, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		home = absHome
	}

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType(ConfigExtension)
	v.AddConfigPath(filepath.Join(home, AppConfigDir))
	v.SetConfigFile(filepath.Join(home, AppConfigDir, ConfigName))
	bindFlags(v, cmd.Flags())
	bindFlags(v, cmd.PersistentFlags())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// A missing configuration file is not an error; defaults apply.
	_ = v.ReadInConfig()

	return loadFromViper(v, home)
}

// rootDirFromFlags resolves the root directory flag from either flag set.
// Persistent flags are only merged into Flags() during Execute, so both are
// checked to keep Load usable on a bare command.
func rootDirFromFlags(cmd *cobra.Command) string {
	if home, err := cmd.Flags().GetString(FlagRootDir); err == nil && home != "" {
		return home
	}
	home, _ := cmd.PersistentFlags().GetString(FlagRootDir)
	return home
}

// bindFlags binds every flag in the set to its viper key so flags override
// the file and environment values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

func loadFromViper(v *viper.Viper, home string) (Config, error) {
	cfg := DefaultConfig()
	cfg.RootDir = home

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			func(f reflect.Type, t reflect.Type, data any) (any, error) {
				if t == reflect.TypeFor[DurationWrapper]() && f.Kind() == reflect.String {
					if str, ok := data.(string); ok {
						duration, err := time.ParseDuration(str)
						if err != nil {
							return nil, err
						}
						return DurationWrapper{Duration: duration}, nil
					}
				}
				return data, nil
			},
		),
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, errors.Join(ErrReadYaml, fmt.Errorf("failed creating decoder: %w", err))
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return cfg, errors.Join(ErrReadYaml, fmt.Errorf("failed decoding viper: %w", err))
	}

	return cfg, nil
}
