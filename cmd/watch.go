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
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/docpipe/internal/app"
	"github.com/valpere/docpipe/internal/watcher"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [source]",
	Short: "Rerun the pipeline whenever the source directory changes",
	Long: `Initialize the stages once, run the pipeline over the source directory,
then run it again after every burst of filesystem changes.

Accepts the same pipeline flags as "docpipe run".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := pipelineConfig(cmd)
		if err != nil {
			return err
		}
		src := defaultSource
		if len(args) == 1 {
			src = args[0]
		}

		ctx := cmd.Context()
		a, err := app.New(ctx, cfg, app.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to initialize pipeline: %w", err)
		}
		defer a.Close()

		// Stage outputs written under the source must not retrigger a run.
		exclude := append([]string(nil), cfg.Reader.ExcludeDirs...)
		for i := range a.Pipeline.Stages() {
			if c, ok := a.Pipeline.EffectiveConfig(i); ok {
				if dir := c.String("output_dir"); dir != "" {
					exclude = append(exclude, filepath.Base(dir))
				}
			}
		}

		w, err := watcher.New(src,
			watcher.WithDebounce(watchDebounce),
			watcher.WithRecursive(cfg.Reader.Recursive),
			watcher.WithExclude(exclude...),
			watcher.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", src, err)
		}
		defer w.Close()

		if report, err := a.Run(ctx, src, ""); report != nil {
			printSummary(os.Stdout, report)
		} else if err != nil {
			return fmt.Errorf("run %s failed: %w", src, err)
		}

		fmt.Fprintf(os.Stderr, "Watching %s (Ctrl+C to stop)\n", src)
		for batch := range w.Changes(ctx) {
			logger.Info("change detected", "source", src, "paths", len(batch))
			report, err := a.Run(ctx, src, "")
			if report != nil {
				printSummary(os.Stdout, report)
			}
			if err != nil && ctx.Err() != nil {
				break
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addPipelineFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "Quiet period before a rerun")
}
