package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scenewatch/scenewatch/internal/api"
	"github.com/scenewatch/scenewatch/internal/control"
	"github.com/scenewatch/scenewatch/internal/logger"
	"github.com/scenewatch/scenewatch/internal/obsws"
	"github.com/scenewatch/scenewatch/internal/rules"
	"github.com/scenewatch/scenewatch/internal/scheduler"
	"github.com/scenewatch/scenewatch/internal/snapshot"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch windows and switch scenes",
	Long: `Start the watch loop: poll window state, resolve the matching scene,
and switch the remote endpoint whenever the resolved scene changes.

The loop runs until interrupted. SIGINT/SIGTERM shut it down cleanly; no
further remote calls are issued once shutdown begins.`,
	Example: `  # Watch with the default config
  scenewatch watch

  # Watch with a specific config file and debug logging
  scenewatch watch --config ./scenewatch.yaml --log-level debug`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ruleSet, err := rules.Compile(cfg.Rules)
	if err != nil {
		return fmt.Errorf("failed to compile rules: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := obsws.Dial(ctx, cfg.Endpoint.URL, cfg.Endpoint.Password)
	if err != nil {
		return fmt.Errorf("failed to connect to scene endpoint: %w", err)
	}
	defer client.Close()

	controller := control.New(client)
	if err := controller.Seed(ctx); err != nil {
		return err
	}

	provider, err := snapshot.NewX11Provider(cfg.Watch)
	if err != nil {
		return err
	}
	defer provider.Close()

	sched := scheduler.New(provider, ruleSet, controller,
		cfg.PollInterval(), cfg.Poll.MaxBackoff)

	if cfg.ServerPort > 0 {
		server := api.NewServer(sched, ruleSet)
		go func() {
			if err := server.Start(cfg.ServerPort); err != nil {
				logger.WithComponent("api").Error().Err(err).Msg("Status server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	err = sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Get().Info().Msg("Shutting down")
		return nil
	}
	return err
}
