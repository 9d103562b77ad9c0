package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables <survey> <release>",
	Short: "List the tables published alongside a release",
	Run:   runTables,
	Args:  cobra.ExactArgs(2),
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

func runTables(_ *cobra.Command, args []string) {
	r := lookupRelease(args)
	ids, err := r.GetAvailableTables()
	if err != nil {
		exitError("%v", err)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}
