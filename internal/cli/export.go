package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sndata/snquery/snquery"
)

var (
	exportFormat string
	exportOut    string
	exportRaw    bool
)

var exportCmd = &cobra.Command{
	Use:   "export <survey> <release> <obj-id>",
	Short: "Export one object's data table",
	Long: `Export the observation table of a single object. The jsonl format
writes one metadata header line followed by one object per row; the parquet
format writes the standardized light curve schema and is only available for
formatted photometric data.`,
	Args: cobra.ExactArgs(3),
	Run:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "jsonl", "output format: jsonl or parquet")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().BoolVar(&exportRaw, "raw", false, "export the release's native columns instead of the standardized schema")
	rootCmd.AddCommand(exportCmd)
}

func runExport(_ *cobra.Command, args []string) {
	r := lookupRelease(args[:2])
	table, err := r.GetDataForID(args[2], snquery.DataOptions{Raw: exportRaw})
	if err != nil {
		exitError("%v", err)
	}

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			exitError("%v", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	switch exportFormat {
	case "jsonl":
		err = snquery.WriteJSONL(out, table)
	case "parquet":
		if exportRaw {
			exitError("parquet export requires the standardized schema")
		}
		err = snquery.WriteParquet(out, table)
	default:
		exitError("unknown format %q", exportFormat)
	}
	if err != nil {
		exitError("%v", err)
	}

	if exportOut != "" {
		fmt.Printf("Wrote %s\n", exportOut)
	}
}
