package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sndata/snquery/snquery/releases"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known survey releases",
	Run:   runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(_ *cobra.Command, _ []string) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	for _, pair := range releases.Names() {
		r, err := releases.Lookup(pair[0], pair[1], storeOptions()...)
		if err != nil {
			exitError("%v", err)
		}
		meta := r.Meta()

		cyan.Printf("%s %s", meta.SurveyAbbrev, meta.Release)
		fmt.Printf("  %s (%s)", meta.SurveyName, meta.DataType)
		if r.DataIsAvailable() {
			green.Print("  [downloaded]")
		}
		fmt.Println()
	}
}
