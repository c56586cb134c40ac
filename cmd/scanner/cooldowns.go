package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftscan/confluence/internal/cooldown"
)

func newCooldownsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooldowns",
		Short: "Inspect or clear persisted re-entry cooldowns",
	}
	cmd.AddCommand(newCooldownsCheckCmd(), newCooldownsClearCmd())
	return cmd
}

func newCooldownsCheckCmd() *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "check <symbol>",
		Short: "Check whether a symbol/direction is under cooldown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cooldown.Open(cooldownPath())
			if err != nil {
				return err
			}
			entry, active := store.IsActive(args[0], direction)
			if !active {
				fmt.Println("no active cooldown")
				return nil
			}
			fmt.Printf("active until %s (price=%.4f reason=%q)\n", entry.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"), entry.Price, entry.Reason)
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "long", "Direction (long|short)")
	return cmd
}

func newCooldownsClearCmd() *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "clear <symbol>",
		Short: "Clear a symbol/direction's cooldown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cooldown.Open(cooldownPath())
			if err != nil {
				return err
			}
			return store.Clear(args[0], direction)
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "long", "Direction (long|short)")
	return cmd
}

func cooldownPath() string {
	if p := envOr("COOLDOWN_STORE", ""); p != "" {
		return p
	}
	return "cooldowns.json"
}
