package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tutorbot",
	Short: "Adaptive tutor delivered over Telegram",
	Long: "tutorbot runs a curriculum of lessons over chat: it asks questions built from a knowledge base,\n" +
		"scores answers, and moves each learner forward when they pass.",
	SilenceUsage: true,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to the progress database (overrides TUTOR_DB)")
	rootCmd.PersistentFlags().String("curriculum", "", "Path to a curriculum YAML file (overrides TUTOR_CURRICULUM)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(learnerCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}
