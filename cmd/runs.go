/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long: `List recorded pipeline runs and show per-document outcomes. Runs are
recorded when "docpipe run" is given a database with --db.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tOK\tFAILED\tSTARTED\tSOURCE")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
				r.ID, r.Status, r.Succeeded, r.Failed,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Source)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a run and its documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		run, err := db.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load run: %w", err)
		}
		docs, err := db.RunDocuments(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to load documents: %w", err)
		}

		fmt.Printf("Run:       %s\n", run.ID)
		fmt.Printf("Source:    %s\n", run.Source)
		fmt.Printf("Status:    %s\n", run.Status)
		fmt.Printf("Started:   %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if run.FinishedAt != nil {
			fmt.Printf("Finished:  %s (%s)\n",
				run.FinishedAt.Local().Format("2006-01-02 15:04:05"),
				run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
		}
		fmt.Printf("Documents: %d succeeded, %d failed\n", run.Succeeded, run.Failed)
		if run.Error != "" {
			fmt.Printf("Error:     %s\n", run.Error)
		}
		if len(docs) == 0 {
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tDOCUMENT\tDURATION\tSTAGE\tERROR")
		for _, d := range docs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				d.Seq, d.Document, d.Duration, d.FailedStage, truncate(d.Error, 60))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to list")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}
