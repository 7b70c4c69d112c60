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
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/docpipe/internal/engine"
	"github.com/valpere/docpipe/internal/store"
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Pin translations of specific terms",
	Long: `Terms stored here are handed to the backends of the translate stage's
service engine, per language pair, whenever a unit contains them.`,
}

var glossaryListCmd = &cobra.Command{
	Use:   "list [source-lang [target-lang]]",
	Short: "Show pinned terms, optionally for one language pair",
	Args:  cobra.MaximumNArgs(2),
	RunE: storeCommand(func(cmd *cobra.Command, db *store.Store, args []string) error {
		var sourceLang, targetLang string
		if len(args) > 0 {
			sourceLang = args[0]
		}
		if len(args) > 1 {
			targetLang = args[1]
		}

		entries, err := db.ListGlossaryTerms(cmd.Context(), sourceLang, targetLang)
		if err != nil {
			return fmt.Errorf("list glossary: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No pinned terms.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPAIR\tTERM\tTRANSLATION")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s-%s\t%s\t%s\n", e.ID, e.SourceLang, e.TargetLang, e.SourceTerm, e.TargetTerm)
		}
		return w.Flush()
	}),
}

var glossaryAddCmd = &cobra.Command{
	Use:     "add <source-lang> <target-lang> <term=translation>...",
	Short:   "Pin one or more terms for a language pair",
	Example: `  docpipe glossary add en de "pipeline=Pipeline" "stage=Stufe"`,
	Args:    cobra.MinimumNArgs(3),
	RunE: storeCommand(func(cmd *cobra.Command, db *store.Store, args []string) error {
		terms := make(map[string]string, len(args)-2)
		for _, arg := range args[2:] {
			term, translation, ok := strings.Cut(arg, "=")
			term, translation = strings.TrimSpace(term), strings.TrimSpace(translation)
			if !ok || term == "" || translation == "" {
				return fmt.Errorf("expected term=translation, got %q", arg)
			}
			terms[term] = translation
		}
		return pinTerms(cmd, db, args[0], args[1], terms)
	}),
}

var glossaryImportCmd = &cobra.Command{
	Use:   "import <source-lang> <target-lang> <file>",
	Short: "Pin every term of a YAML or JSON term: translation mapping",
	Args:  cobra.ExactArgs(3),
	RunE: storeCommand(func(cmd *cobra.Command, db *store.Store, args []string) error {
		terms, err := engine.LoadLexicon(args[2])
		if err != nil {
			return err
		}
		return pinTerms(cmd, db, args[0], args[1], terms)
	}),
}

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Unpin terms by ID",
	Args:  cobra.MinimumNArgs(1),
	RunE: storeCommand(func(cmd *cobra.Command, db *store.Store, args []string) error {
		for _, id := range args {
			if err := db.DeleteGlossaryTerm(cmd.Context(), id); err != nil {
				return fmt.Errorf("unpin %s: %w", id, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Unpinned %d term(s).\n", len(args))
		return nil
	}),
}

// storeCommand opens the store around fn.
func storeCommand(fn func(cmd *cobra.Command, db *store.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(cmd, db, args)
	}
}

func pinTerms(cmd *cobra.Command, db *store.Store, sourceLang, targetLang string, terms map[string]string) error {
	names := make([]string, 0, len(terms))
	for term := range terms {
		names = append(names, term)
	}
	sort.Strings(names)

	for _, term := range names {
		if err := db.AddGlossaryTerm(cmd.Context(), sourceLang, targetLang, term, terms[term]); err != nil {
			return fmt.Errorf("pin %q: %w", term, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pinned %d term(s) for %s-%s.\n", len(names), sourceLang, targetLang)
	return nil
}

func init() {
	rootCmd.AddCommand(glossaryCmd)
	glossaryCmd.AddCommand(glossaryListCmd, glossaryAddCmd, glossaryImportCmd, glossaryDeleteCmd)
}
