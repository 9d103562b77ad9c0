package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sndata/snquery/snquery"
)

var downloadForce bool

var downloadCmd = &cobra.Command{
	Use:   "download <survey> <release>",
	Short: "Download data for a survey release",
	Long: `Download all remote data for the given release into the local data
directory. Already-downloaded files are skipped unless --force is given.
Individual files that fail to download are reported as warnings without
aborting the rest of the release.`,
	Args: cobra.ExactArgs(2),
	Run:  runDownload,
}

func init() {
	downloadCmd.Flags().BoolVarP(&downloadForce, "force", "f", false, "re-download locally available data")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) {
	r := lookupRelease(args)
	meta := r.Meta()
	fmt.Printf("Downloading %s %s...\n", meta.SurveyAbbrev, meta.Release)

	warnings, err := r.DownloadModuleData(cmd.Context(), snquery.DownloadOptions{
		Force:   downloadForce,
		Timeout: configTimeout(),
	})
	if err != nil {
		exitError("download failed: %v", err)
	}

	yellow := color.New(color.FgYellow)
	for _, w := range warnings {
		yellow.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}

	green := color.New(color.FgGreen)
	if len(warnings) == 0 {
		green.Println("Done")
	} else {
		fmt.Printf("Done with %d warning(s)\n", len(warnings))
	}
}
