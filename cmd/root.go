package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/reactor/internal/config"
	"github.com/zjrosen/reactor/internal/log"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in input fields.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

const localConfigPath = ".reactor/config.yaml"

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
	cfgErr  error
)

var rootCmd = &cobra.Command{
	Use:   "reactor",
	Short: "Scoped event coordination with reactors and actors",
	Long: `Reactor mounts components in a scope tree. Events dispatched from a
node are answered by the nearest enclosing reactor, which keeps the
registered actions and fans published events out to their subscribers.

Run without a subcommand to open the inspector.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runInspect,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/reactor/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "",
		"minimum log level: debug, info, warn or error")

	// Bind flags to viper
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("REACTOR")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .reactor/config.yaml (current directory)
		// 2. ~/.config/reactor/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "reactor"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .reactor/config.yaml
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if writeErr := config.WriteDefaultConfig(localConfigPath); writeErr == nil {
				viper.SetConfigFile(localConfigPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		} else {
			cfgErr = fmt.Errorf("reading config: %w", err)
			return
		}
	}

	cfg, cfgErr = config.Decode(viper.GetViper())
	if cfgErr == nil && cfg.Tracing.Exporter == "file" && cfg.Tracing.FilePath == "" {
		cfg.Tracing.FilePath = config.DefaultTracesFilePath()
	}
}

// configPath returns the config file in use, or "" when running on defaults.
func configPath() string {
	return viper.ConfigFileUsed()
}

// initLogging installs the logger. A configured log file wins; otherwise
// entries go to fallback, which may be io.Discard.
func initLogging(fallback io.Writer) (func(), error) {
	level := log.ParseLevel(cfg.Log.Level)
	if cfg.Log.File == "" {
		return log.InitWriter(fallback, level), nil
	}
	cleanup, err := log.Init(cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log.SetMinLevel(level)
	return cleanup, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
