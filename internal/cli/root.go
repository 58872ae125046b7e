// Package cli wires the harvester commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "patent-harvester",
	Short: "Patent document harvester",
	Long: `patent-harvester fetches patent documents by identifier, keeps those whose
text matches a potency pattern, and checkpoints the results after every batch.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (defaults only when empty)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newRunCmd(), newShardCmd(), newMergeCmd(), newScanCmd(), newCacheCmd())
}
