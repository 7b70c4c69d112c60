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
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/docpipe/internal/config"
)

var version = "0.1.0"

var (
	cfgFile   string
	logFormat string
	verbose   bool

	v      = config.New()
	appCfg *config.File
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

var rootCmd = &cobra.Command{
	Use:   "docpipe",
	Short: "Document processing pipeline",
	Long: `A CLI application that passes every document of a source directory
through an ordered chain of processing stages.

Built-in stages: translate, copy, detect, refine, vocabulary

Stages are initialized once and reused for every run. Use
"docpipe run --help" for pipeline options and "docpipe stages" for the
options each stage accepts.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd); err != nil {
			return err
		}
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		appCfg = cfg
		logger = newLogger(cfg.Log, verbose)
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Pipeline config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("db", "", "SQLite database for translation memory and run history")
}
