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

	"github.com/spf13/cobra"

	"github.com/valpere/docpipe/internal/stages"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the built-in stages and their default options",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := stages.DefaultRegistry()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, name := range reg.Names() {
			stage, err := reg.Build(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\n", name)
			defaults := stage.DefaultConfig()
			for _, key := range defaults.Keys() {
				fmt.Fprintf(w, "  %s\t%q\n", key, defaults.String(key))
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(stagesCmd)
}
