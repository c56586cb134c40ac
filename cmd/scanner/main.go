package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	scannerlog "github.com/driftscan/confluence/internal/log"
)

const version = "v0.1.0"

func main() {
	log.Logger = scannerlog.Setup()

	root := &cobra.Command{
		Use:     "scanner",
		Short:   "Confluence market scanner",
		Long:    "Multi-timeframe smart-money confluence scanner: scan, inspect jobs, manage cooldowns, and serve a read-only status API.",
		Version: version,
	}

	root.AddCommand(
		newScanCmd(),
		newJobsCmd(),
		newCooldownsCmd(),
		newRegimeCmd(),
		newRiskCmd(),
		newServeCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("scanner: command failed")
		os.Exit(1)
	}
}
