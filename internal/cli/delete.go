package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sndata/snquery/snquery/releases"
)

var deleteAll bool

var deleteCmd = &cobra.Command{
	Use:   "delete [<survey> <release>]",
	Short: "Delete locally cached data",
	Long: `Delete the locally cached data of one release, or of every known
release when --all is given.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if deleteAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	Run: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "delete data for every known release")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(_ *cobra.Command, args []string) {
	if deleteAll {
		if err := releases.DeleteAllData(storeOptions()...); err != nil {
			exitError("%v", err)
		}
		fmt.Println("Deleted all cached data")
		return
	}

	r := lookupRelease(args)
	if err := r.DeleteModuleData(); err != nil {
		exitError("%v", err)
	}
	meta := r.Meta()
	fmt.Printf("Deleted cached data for %s %s\n", meta.SurveyAbbrev, meta.Release)
}
