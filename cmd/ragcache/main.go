// Command ragcache answers questions with retrieval-augmented generation
// and caches answers per query and retrieved sources.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "ragcache",
		Short:         "Cached retrieval-augmented question answering",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newAskCmd(&configPath),
		newHistoryCmd(&configPath),
		newCacheCmd(),
	)
	return root
}
