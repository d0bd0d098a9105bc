package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRunsCommand() *cobra.Command {
	var (
		storePath string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List solve runs recorded in the solution store",
		Example: `  # Most recent runs
  msolve runs --store ~/.msolve.db

  # Page through history
  msolve runs --store ~/.msolve.db --limit 50 --offset 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			for _, run := range runs {
				status := string(run.Status)
				if run.Error != nil {
					status = fmt.Sprintf("%s (%s)", status, *run.Error)
				}
				fmt.Printf("%s  %-10s  %-12s  %d regime(s)  %s\n",
					run.ID, run.Model, run.Method, run.Regimes, status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "SQLite solution store path")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}
