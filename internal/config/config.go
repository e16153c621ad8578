package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"solex/internal/engine"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type TCPConfig struct {
	Address     string        `yaml:"address"`
	Port        int           `yaml:"port"`
	Workers     uint          `yaml:"workers"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type AppConfig struct {
	Log    LogConfig     `yaml:"log"`
	Engine engine.Config `yaml:"engine"`
	TCP    TCPConfig     `yaml:"tcp"`
	HTTP   HTTPConfig    `yaml:"http"`
}

func Default() *AppConfig {
	return &AppConfig{
		Log:    LogConfig{Level: "info"},
		Engine: engine.DefaultConfig(),
		TCP: TCPConfig{
			Address:     "0.0.0.0",
			Port:        9001,
			Workers:     10,
			ReadTimeout: time.Second,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "0.0.0.0:8080",
		},
	}
}

// Load reads config from file, expanding environment variables in it. An
// empty path falls back to CONFIG_FILE, and with neither set the defaults
// are returned. Fields missing from the file keep their default values.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	cfg := Default()
	if len(filePath) == 0 {
		log.Debug().Msg("no config file given, using defaults")
		return cfg, nil
	}

	log.Debug().Str("file", filePath).Msg("loading config")
	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *AppConfig) Validate() error {
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, cfg.Log.Level)
	}
	if cfg.Engine.BaseAsset == "" || cfg.Engine.QuoteAsset == "" {
		return fmt.Errorf("%w: engine assets must be set", ErrInvalidConfig)
	}
	if cfg.Engine.BaseAsset == cfg.Engine.QuoteAsset {
		return fmt.Errorf("%w: base and quote asset are both %s", ErrInvalidConfig, cfg.Engine.BaseAsset)
	}
	if len(cfg.Engine.BaseAsset) > 4 || len(cfg.Engine.QuoteAsset) > 4 {
		return fmt.Errorf("%w: asset symbols are at most 4 characters", ErrInvalidConfig)
	}
	if cfg.Engine.DepthLevels < 0 || cfg.Engine.TradeHistory < 0 {
		return fmt.Errorf("%w: depth_levels and trade_history cannot be negative", ErrInvalidConfig)
	}
	if cfg.TCP.Port <= 0 || cfg.TCP.Port > 65535 {
		return fmt.Errorf("%w: tcp port %d", ErrInvalidConfig, cfg.TCP.Port)
	}
	if cfg.TCP.Workers == 0 {
		return fmt.Errorf("%w: tcp workers must be at least 1", ErrInvalidConfig)
	}
	if cfg.TCP.ReadTimeout <= 0 {
		return fmt.Errorf("%w: tcp read_timeout must be positive", ErrInvalidConfig)
	}
	if cfg.HTTP.Enabled && cfg.HTTP.Address == "" {
		return fmt.Errorf("%w: http address must be set when enabled", ErrInvalidConfig)
	}
	return nil
}

// SetupLogging applies the log section to the global zerolog logger.
func (cfg *AppConfig) SetupLogging() {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
