package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftscan/confluence/internal/adapter/krakenadapter"
	"github.com/driftscan/confluence/internal/domain/scoring"
)

func newRegimeCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "regime",
		Short: "Print the current global market regime reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := newAppState()
			if err != nil {
				return err
			}
			ex := krakenadapter.New()
			d := detectGlobalRegime(context.Background(), ex, state, scoring.ModeProfile(mode))
			fmt.Printf("composite=%s score=%.1f trend=%s(%.0f) volatility=%s(%.0f) liquidity=%s(%.0f) risk_appetite=%s(%.0f) derivatives=%s(%.0f)\n",
				d.Composite, d.CompositeScore,
				d.Trend.State, d.Trend.Score, d.Volatility.State, d.Volatility.Score,
				d.Liquidity.State, d.Liquidity.Score, d.RiskAppetite.State, d.RiskAppetite.Score,
				d.Derivatives.State, d.Derivatives.Score)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(scoring.StealthBalanced), "Scoring mode profile (determines trend thresholds)")
	return cmd
}
