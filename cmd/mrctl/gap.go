package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/gap"
)

func newGapCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gap",
		Short: "Run the gap detector offline",
	}

	var question, answer, answerFile string
	var used, total int
	check := &cobra.Command{
		Use:   "check",
		Short: "Decide whether a question/answer pair warrants a plan",
		Long: `Runs gap detection with the configured policy against a question and an
answer. Evidence is simulated: --used items cited out of --evidence known.

Examples:
  mrctl gap check -q "Who are Acme's customers?" --answer-file answer.md --used 3 --evidence 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if question == "" {
				return fmt.Errorf("--question is required")
			}
			if answerFile != "" {
				b, err := os.ReadFile(answerFile)
				if err != nil {
					return fmt.Errorf("failed to read answer: %w", err)
				}
				answer = string(b)
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if total < used {
				total = used
			}
			all := make([]gap.Evidence, total)
			usedIDs := make([]uuid.UUID, 0, used)
			for i := range all {
				all[i] = gap.Evidence{ID: uuid.New(), URL: fmt.Sprintf("https://example.com/%d", i)}
				if i < used {
					usedIDs = append(usedIDs, all[i].ID)
				}
			}
			res := gap.NewDetector(cfg.GapPolicy, a.logger()).Detect(question, answer, usedIDs, all)
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	check.Flags().StringVarP(&question, "question", "q", "", "question text")
	check.Flags().StringVar(&answer, "answer", "", "answer markdown")
	check.Flags().StringVar(&answerFile, "answer-file", "", "read the answer from a file")
	check.Flags().IntVar(&used, "used", 0, "evidence items cited by the answer")
	check.Flags().IntVar(&total, "evidence", 0, "evidence items known for the job")

	cmd.AddCommand(check)
	return cmd
}
