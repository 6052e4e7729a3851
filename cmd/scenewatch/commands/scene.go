package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scenewatch/scenewatch/internal/obsws"
)

var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Query or set the endpoint's active scene",
}

var sceneGetCmd = &cobra.Command{
	Use:     "get",
	Short:   "Print the currently active scene",
	Example: `  scenewatch scene get`,
	RunE:    runSceneGet,
}

var sceneSetCmd = &cobra.Command{
	Use:     "set SCENE",
	Short:   "Activate the named scene",
	Example: `  scenewatch scene set Logi-Only`,
	Args:    cobra.ExactArgs(1),
	RunE:    runSceneSet,
}

func init() {
	rootCmd.AddCommand(sceneCmd)
	sceneCmd.AddCommand(sceneGetCmd)
	sceneCmd.AddCommand(sceneSetCmd)
}

// endpointContext builds a context for one-shot endpoint operations:
// interruptible and bounded.
func endpointContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	return ctx, func() {
		cancel()
		stop()
	}
}

func runSceneGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := endpointContext()
	defer cancel()

	client, err := obsws.Dial(ctx, cfg.Endpoint.URL, cfg.Endpoint.Password)
	if err != nil {
		return fmt.Errorf("failed to connect to scene endpoint: %w", err)
	}
	defer client.Close()

	scene, err := client.CurrentScene(ctx)
	if err != nil {
		return err
	}
	fmt.Println(scene)
	return nil
}

func runSceneSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := endpointContext()
	defer cancel()

	client, err := obsws.Dial(ctx, cfg.Endpoint.URL, cfg.Endpoint.Password)
	if err != nil {
		return fmt.Errorf("failed to connect to scene endpoint: %w", err)
	}
	defer client.Close()

	if err := client.SetCurrentScene(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Switched to %q\n", args[0])
	return nil
}
