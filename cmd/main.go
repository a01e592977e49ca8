package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"interview-copilot-service/internal/cli"
	"interview-copilot-service/internal/config"
)

func main() {
	cfg := config.Load()

	deps := &cli.Dependencies{
		Config: cfg,
	}
	if err := cli.NewRootCmd(deps).Execute(); err != nil {
		log.Error().Err(err).Msg("copilot exited with error")
		os.Exit(1)
	}
}
