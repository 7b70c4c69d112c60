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
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/docpipe/internal/app"
	"github.com/valpere/docpipe/internal/config"
	"github.com/valpere/docpipe/internal/pipeline"
	"github.com/valpere/docpipe/internal/stages"
)

const defaultSource = "input"

var (
	stageNames   []string
	setOverrides []string
	outputDir    string
	taskPrefix   string
	engineName   string
	resumeID     string
)

var runCmd = &cobra.Command{
	Use:   "run [source...]",
	Short: "Run the pipeline over one or more source directories",
	Long: `Initialize the configured stages once, then pass every document of each
source directory through them, one document at a time.

Stages come from the config file or from repeated --stage flags. Options
are overridden with --set stage.key=value; --output, --prefix and --engine
are shortcuts for the translate stage.

Examples:
  docpipe run input --set translate.engine=identity
  docpipe run docs --stage detect --stage translate --engine ollama --db ./data/docpipe.db
  docpipe run input --db ./data/docpipe.db --resume <run-id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := pipelineConfig(cmd)
		if err != nil {
			return err
		}

		sources := args
		if len(sources) == 0 {
			sources = []string{defaultSource}
		}

		ctx := cmd.Context()
		a, err := app.New(ctx, cfg, app.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to initialize pipeline: %w", err)
		}
		defer a.Close()

		var (
			reports []*pipeline.Report
			runErr  error
			failed  int
		)
		for _, src := range sources {
			report, err := a.Run(ctx, src, resumeID)
			if report != nil {
				reports = append(reports, report)
				printSummary(os.Stdout, report)
				failed += report.Failed
			}
			if err != nil {
				runErr = fmt.Errorf("run %s failed: %w", src, err)
				break
			}
		}

		if cfg.Report != "" {
			if err := app.WriteReport(cfg.Report, reports); err != nil {
				return err
			}
		}
		if runErr != nil {
			return runErr
		}
		if failed > 0 {
			return fmt.Errorf("%d document(s) failed", failed)
		}
		return nil
	},
}

// pipelineConfig applies the stage selection and override flags to the
// loaded configuration without modifying it.
func pipelineConfig(cmd *cobra.Command) (*config.File, error) {
	cfg := *appCfg
	cfg.Stages = slices.Clone(appCfg.Stages)

	if len(stageNames) > 0 {
		known := make(map[string]config.StageSpec, len(cfg.Stages))
		for _, s := range cfg.Stages {
			known[s.Name] = s
		}
		cfg.Stages = make([]config.StageSpec, 0, len(stageNames))
		for _, name := range stageNames {
			spec := known[name]
			spec.Name = name
			cfg.Stages = append(cfg.Stages, spec)
		}
	}
	if len(cfg.Stages) == 0 {
		for _, name := range app.DefaultStages {
			cfg.Stages = append(cfg.Stages, config.StageSpec{Name: name})
		}
	}

	overrides, err := config.ParseOverrides(setOverrides)
	if err != nil {
		return nil, err
	}

	shortcut := pipeline.Config{}
	if cmd.Flags().Changed("output") {
		shortcut["output_dir"] = outputDir
	}
	if cmd.Flags().Changed("prefix") {
		shortcut["task_prefix"] = taskPrefix
	}
	if cmd.Flags().Changed("engine") {
		shortcut["engine"] = engineName
	}
	if len(shortcut) > 0 && slices.ContainsFunc(cfg.Stages, func(s config.StageSpec) bool {
		return s.Name == stages.TranslateName
	}) {
		overrides[stages.TranslateName] = shortcut.Merge(overrides[stages.TranslateName])
	}

	cfg.Apply(overrides)
	return &cfg, nil
}

func printSummary(w io.Writer, r *pipeline.Report) {
	fmt.Fprintf(w, "Run %s (%s): %d succeeded, %d failed in %s\n",
		r.ID, r.Source, r.Succeeded, r.Failed, r.Duration().Round(time.Millisecond))
	for _, f := range r.Failures() {
		fmt.Fprintf(w, "  FAILED %s [%s]: %v\n", f.Document, f.FailedStage, f.Err)
	}
	if r.Err != nil {
		fmt.Fprintf(w, "  ABORTED: %v\n", r.Err)
	}
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&stageNames, "stage", nil, "Stage to run, in order (repeatable)")
	cmd.Flags().StringArrayVar(&setOverrides, "set", nil, "Stage option override as stage.key=value (repeatable)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory of the translate stage")
	cmd.Flags().StringVar(&taskPrefix, "prefix", "", "Task prefix of the translate stage")
	cmd.Flags().StringVarP(&engineName, "engine", "e", "", "Engine of the translate stage (lexicon, identity, ollama, openrouter, anthropic, gemini, google, mymemory, systran)")
	cmd.Flags().Bool("continue-on-error", false, "Record failed documents and keep going")
	cmd.Flags().Bool("strict", false, "Reject stage options a stage does not declare")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file after each run")
}

func init() {
	rootCmd.AddCommand(runCmd)

	addPipelineFlags(runCmd)
	runCmd.Flags().StringVar(&resumeID, "resume", "", "Skip documents an earlier run completed (requires --db)")
	runCmd.Flags().String("report", "", "Write a YAML run report to this file")
}
