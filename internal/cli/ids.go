package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var idsCmd = &cobra.Command{
	Use:   "ids <survey> <release>",
	Short: "List the object ids published by a release",
	Args:  cobra.ExactArgs(2),
	Run:   runIDs,
}

func init() {
	rootCmd.AddCommand(idsCmd)
}

func runIDs(_ *cobra.Command, args []string) {
	r := lookupRelease(args)
	ids, err := r.GetAvailableIDs()
	if err != nil {
		exitError("%v", err)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}
