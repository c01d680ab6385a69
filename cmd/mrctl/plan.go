package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/config"
)

func newPlanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect micro-research plans",
	}

	show := &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Print a plan as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid plan id %q: %w", args[0], err)
			}
			return a.withStore(func(_ *config.Config, st store) error {
				p, err := st.GetPlan(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}

	var limit int
	list := &cobra.Command{
		Use:   "list <job-id>",
		Short: "List a job's plans, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			return a.withStore(func(_ *config.Config, st store) error {
				plans, err := st.ListPlans(cmd.Context(), jobID, limit)
				if err != nil {
					return err
				}
				for _, p := range plans {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", p.ID, p.Status, p.Intent, p.CreatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum plans to list")

	cmd.AddCommand(show, list)
	return cmd
}
