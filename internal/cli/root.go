// Package cli implements the command-line interface for snquery.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sndata/snquery/internal/fetch"
	"github.com/sndata/snquery/internal/mirror"
	"github.com/sndata/snquery/snquery"
	"github.com/sndata/snquery/snquery/releases"
)

var rootCmd = &cobra.Command{
	Use:   "snquery",
	Short: "Access supernova light-curve data from various surveys",
	Long: `snquery downloads, caches, and standardizes supernova light-curve and
spectra data published by individual surveys. Each data release is addressed
by its survey abbreviation and release name, for example "csp dr3".`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("data-dir", "", "directory holding downloaded data (default $SNQUERY_DIR)")
	rootCmd.PersistentFlags().Duration("timeout", snquery.DefaultDownloadTimeout, "per-file download timeout")
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
}

func initConfig() {
	viper.SetConfigName(".snquery")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}

	viper.SetEnvPrefix("SNQUERY")
	viper.AutomaticEnv()

	// Defaults apply when no config file is present.
	_ = viper.ReadInConfig()
}

// storeOptions derives release construction options from the resolved
// configuration.
func storeOptions() []snquery.Option {
	dir := viper.GetString("data_dir")
	if dir == "" {
		dir = snquery.DefaultDataDir()
	}
	store, err := snquery.NewFSStore(dir)
	if err != nil {
		exitError("failed to open data directory: %v", err)
	}

	// An s3 mirror serves survey files whose origin servers have gone away.
	if endpoint := viper.GetString("mirror_endpoint"); endpoint != "" {
		src, err := mirror.Connect(context.Background(), mirror.Config{
			Region:       viper.GetString("mirror_region"),
			Endpoint:     endpoint,
			UsePathStyle: true,
			AccessKey:    viper.GetString("mirror_access_key"),
			SecretKey:    viper.GetString("mirror_secret_key"),
		})
		if err != nil {
			exitError("failed to connect to mirror: %v", err)
		}
		store = store.WithFetchClient(fetch.NewClient().WithS3(src))
	}
	return []snquery.Option{snquery.WithStore(store)}
}

func configTimeout() time.Duration {
	if d := viper.GetDuration("timeout"); d > 0 {
		return d
	}
	return snquery.DefaultDownloadTimeout
}

// lookupRelease resolves the survey and release named by positional args.
func lookupRelease(args []string) snquery.DataRelease {
	r, err := releases.Lookup(args[0], args[1], storeOptions()...)
	if err != nil {
		exitError("%v", err)
	}
	return r
}

func exitError(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", a...)
	os.Exit(1)
}
