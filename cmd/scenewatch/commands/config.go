package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/scenewatch/scenewatch/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the scenewatch configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a starter configuration to the config path. The generated file
contains placeholder rules that must be edited before watching; a config
without rules fails validation.`,
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := config.Default()
	cfg.Rules = []config.RuleConfig{
		{Display: 0, Pattern: "Fleet Management", Scene: "Logi-Only"},
		{Display: 0, Pattern: ".*", Scene: "Default"},
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote starter config to %s\n", path)
	return nil
}
