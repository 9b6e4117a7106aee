package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(storiesCmd)
}

var storiesCmd = &cobra.Command{
	Use:   "stories",
	Short: "Scrapes story-centric subreddits for narration-worthy threads.",
	Run: func(cmd *cobra.Command, args []string) {
		service, database, _ := newService()
		defer database.Close()

		records, err := service.Stories(cmd.Context())
		if err != nil {
			fmt.Println("story scan failed:", err)
			return
		}
		if len(records) == 0 {
			fmt.Println("No story threads cleared the engagement minimums.")
			return
		}
		renderThreads(records)
	},
}
