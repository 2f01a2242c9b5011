package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/hay-kot/criterio"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grovetools/kw/pkg/logging"
	"github.com/grovetools/kw/pkg/selection"
	"github.com/grovetools/kw/pkg/service"
)

var (
	cfgFile           string
	WorkspaceOverride string
)

// Config is the user configuration, read from ~/.config/kw/config.yaml and
// KW_* environment variables.
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	Workspace  string `mapstructure:"workspace"`
	NoSandbox  bool   `mapstructure:"no_sandbox"`
	LogLevel   string `mapstructure:"log_level"`
	LogToFile  bool   `mapstructure:"log_to_file"`
	HistoryMax int    `mapstructure:"history_max"`
}

func InitConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		configDir := filepath.Join(home, ".config", "kw")
		viper.AddConfigPath(configDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("KW")
	viper.AutomaticEnv()

	SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Warning: could not read config %s: %v\n", cfgFile, err)
		}
	}
}

// SetDefaults registers the default values.
func SetDefaults() {
	home, _ := os.UserHomeDir()
	viper.SetDefault("data_dir", filepath.Join(home, ".local", "share", "kw"))
	viper.SetDefault("workspace", "")
	viper.SetDefault("no_sandbox", false)
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("log_to_file", true)
	viper.SetDefault("history_max", selection.DefaultMax)
}

// Load decodes and validates the configuration.
func Load() (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		expandHomeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if WorkspaceOverride != "" {
		cfg.Workspace = WorkspaceOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// expandHomeHook expands a leading ~ in string values.
func expandHomeHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		s := reflect.ValueOf(data).String()
		if s != "~" && !strings.HasPrefix(s, "~/") {
			return data, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return data, nil
		}
		return filepath.Join(home, s[1:]), nil
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("data_dir", c.DataDir, validateDataDir),
		criterio.Run("log_level", c.LogLevel, validateLogLevel),
		c.validateHistoryMax(),
	)
}

func validateDataDir(dir string) error {
	if dir == "" {
		return errors.New("data_dir is required")
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

func validateLogLevel(level string) error {
	if _, err := logrus.ParseLevel(level); err != nil {
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

func (c *Config) validateHistoryMax() error {
	if c.HistoryMax < 1 {
		return criterio.NewFieldErrors("history_max", fmt.Errorf("must be at least 1, got %d", c.HistoryMax))
	}
	return nil
}

// InitService loads the configuration and opens the current workspace.
func InitService(ctx context.Context) (*service.Service, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	return NewService(ctx, cfg, service.Config{})
}

// NewService builds the logger and opens a service. Fields already set in
// base take precedence over cfg.
func NewService(ctx context.Context, cfg *Config, base service.Config) (*service.Service, error) {
	logger, err := logging.New(cfg.LogLevel, "")
	if err != nil {
		return nil, err
	}

	sc := base
	if sc.DataDir == "" {
		sc.DataDir = cfg.DataDir
	}
	if sc.Workspace == "" {
		sc.Workspace = cfg.Workspace
	}
	sc.NoSandbox = sc.NoSandbox || cfg.NoSandbox
	if sc.HistoryMax == 0 {
		sc.HistoryMax = cfg.HistoryMax
	}
	sc.Logger = logrus.NewEntry(logger)

	svc, err := service.New(ctx, &sc)
	if err != nil {
		return nil, err
	}
	if cfg.LogToFile {
		if err := logging.AddFile(logger, svc.Workspace.LogPath()); err != nil {
			logger.WithError(err).Warn("could not open workspace log file")
		}
	}
	return svc, nil
}

func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/kw/config.yaml)")
	cmd.PersistentFlags().StringVarP(&WorkspaceOverride, "workspace", "W", "", "Workspace directory to use instead of the enclosing one")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))
}
