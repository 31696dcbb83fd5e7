package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/siemagent/agent/internal/agent"
	"github.com/siemagent/agent/internal/config"
	"github.com/siemagent/agent/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent in the foreground until interrupted",
	RunE:  runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	boot, err := config.LoadBootstrap(bootstrapPath)
	if err != nil {
		return fmt.Errorf("load bootstrap config: %w", err)
	}

	logger := logging.New(logging.FromBootstrap(boot))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := agent.New(ctx, boot.WorkingDir, boot.AdminListen, logger)
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}

	logger.Info("agent starting", "working_dir", boot.WorkingDir, "admin_listen", boot.AdminListen)

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping agent")
	case err := <-runErrCh:
		if err != nil {
			a.Stop()
			return fmt.Errorf("agent run failed: %w", err)
		}
	}

	a.Stop()
	logger.Info("agent stopped")
	return nil
}
