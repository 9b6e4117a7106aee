package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <keyword> [keyword...]",
	Short: "Scrapes the site-wide search listing for each keyword.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service, database, _ := newService()
		defer database.Close()

		records, err := service.SearchKeywords(cmd.Context(), args)
		if err != nil {
			fmt.Println("search failed:", err)
			return
		}
		if len(records) == 0 {
			fmt.Println("No matching threads cleared the minimum score.")
			return
		}
		renderThreads(records)
	},
}
