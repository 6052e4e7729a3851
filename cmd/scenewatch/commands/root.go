package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scenewatch/scenewatch/internal/config"
	"github.com/scenewatch/scenewatch/internal/logger"
)

var (
	cfgFile string
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "scenewatch",
		Short: "scenewatch - Automatic scene switching driven by window focus",
		Long: `scenewatch watches which application window is active on which physical
display, maps it to a scene via configurable rules, and switches the active
scene on a remote OBS-compatible endpoint.

Features:
  • Regex rules mapping (display, window title) to a scene
  • Most-recently-focused window wins among multiple matches
  • Switches only on genuine state changes (debounced)
  • Adaptive polling that backs off while the state is stable
  • Optional status API with a WebSocket event stream`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/scenewatch/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level debug")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configPath resolves the config file location from the flag or the default.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "scenewatch", "config.yaml"), nil
}

// loadConfig loads and validates the configuration, then initializes
// logging from it (flags take precedence over the file).
func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if flagLevel := viper.GetString("log_level"); flagLevel != "" {
		level = flagLevel
	}
	if verbose {
		level = "debug"
	}
	logger.Init(level, true)

	logger.WithComponent("config").Info().
		Str("path", path).
		Int("rules", len(cfg.Rules)).
		Msg("Config loaded")
	return cfg, nil
}
