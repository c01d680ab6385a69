package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/config"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/research"
)

func newSweepCmd(a *app) *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail RUNNING plans that exceeded the stale timeout",
		Long: `Marks every RUNNING plan confirmed longer ago than the stale timeout as
FAILED. Reclaimed plans are never re-executed.

Examples:
  mrctl sweep
  mrctl sweep --timeout-minutes 45`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(cfg *config.Config, st store) error {
				timeout := cfg.Execution.StaleTimeout()
				if minutes > 0 {
					timeout = time.Duration(minutes) * time.Minute
				}
				n, err := research.NewSweeper(st, a.logger()).Sweep(cmd.Context(), timeout)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d stale plan(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&minutes, "timeout-minutes", 0, "override execution.stale_timeout_minutes")
	return cmd
}

func newPurgeCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired plans, excerpts and trace events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(cfg *config.Config, st store) error {
				if days <= 0 {
					days = cfg.Retention.Days
				}
				counts, err := st.PurgeExpired(cmd.Context(), days, a.now())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"days": days, "deleted": counts})
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "override retention.days")
	return cmd
}
