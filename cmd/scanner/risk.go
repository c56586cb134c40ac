package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRiskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Inspect the in-memory risk manager's current summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := newAppState()
			if err != nil {
				return err
			}
			summary := state.risk.GetSummary()
			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	return cmd
}
