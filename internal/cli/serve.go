package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"interview-copilot-service/internal/app"
)

const shutdownTimeout = 10 * time.Second

func NewServeCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the copilot service (HTTP, websocket, gRPC health and metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(deps.Config)
			if err != nil {
				return err
			}
			if err := application.Start(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			application.Shutdown(shutdownCtx)
			return nil
		},
	}
}
