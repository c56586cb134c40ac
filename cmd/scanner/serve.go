package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/driftscan/confluence/internal/domain/scoring"
	"github.com/driftscan/confluence/internal/httpserver"
	"github.com/driftscan/confluence/internal/scanjob"
)

func newServeCmd() *cobra.Command {
	var port int
	var mode string
	var scheduleSymbols string
	var scheduleInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only HTTP status server, optionally with a recurring scan schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := newAppState()
			if err != nil {
				return err
			}

			mgr := scanjob.NewManager(scanjob.DefaultWorkers)

			cfg := httpserver.DefaultConfig()
			if port > 0 {
				cfg.Port = port
			}
			srv, err := httpserver.NewServer(cfg, mgr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if scheduleSymbols != "" {
				deps := state.buildPipelineDeps(scoring.ModeProfile(mode), state.weights.MinConfluence["default"])
				scheduler := scanjob.NewScheduler(mgr, deps)
				scheduler.Start(ctx, []scanjob.Schedule{{
					Symbols:   splitCSV(scheduleSymbols),
					Direction: scoring.Long,
					Interval:  scheduleInterval,
				}})
				defer scheduler.Stop()
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("scanner: httpserver shutdown error")
				}
			}()

			return srv.Start()
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (0 uses the default/HTTP_PORT env)")
	cmd.Flags().StringVar(&mode, "mode", string(scoring.StealthBalanced), "Scoring mode profile for scheduled scans")
	cmd.Flags().StringVar(&scheduleSymbols, "schedule-symbols", "", "Comma-separated symbols to scan on a recurring schedule")
	cmd.Flags().DurationVar(&scheduleInterval, "schedule-interval", 15*time.Minute, "Recurring scan interval")
	return cmd
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
