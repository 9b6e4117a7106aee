package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var viralMinScore *int

func init() {
	viralMinScore = viralCmd.Flags().Int(
		"min-score", 5000, "Minimum score for a thread to count as viral.")
	rootCmd.AddCommand(viralCmd)
}

var viralCmd = &cobra.Command{
	Use:   "viral [--min-score <n>]",
	Short: "Scans today's top listings for threads going viral right now.",
	Run: func(cmd *cobra.Command, args []string) {
		service, database, _ := newService()
		defer database.Close()

		records, err := service.Viral(cmd.Context(), *viralMinScore)
		if err != nil {
			fmt.Println("viral scan failed:", err)
			return
		}
		if len(records) == 0 {
			fmt.Printf("No threads at or above %d today.\n", *viralMinScore)
			return
		}
		renderThreads(records)
	},
}
