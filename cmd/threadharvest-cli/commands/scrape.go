package commands

import (
	"fmt"
	"log/slog"
	"time"

	"threadharvest/cmd/threadharvest-cli/utils"
	"threadharvest/lib/scrapers/reddit"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrapes the configured subreddits and writes csv/json exports plus a database run.",
	Run: func(cmd *cobra.Command, args []string) {
		service, database, config := newService()
		defer database.Close()

		slog.Info("starting harvest",
			"subreddits", config.Subreddits, "time_filter", config.TimeFilter)

		t1 := time.Now()
		result, err := service.Run(cmd.Context())
		if err != nil {
			slog.Error("harvest failed", "err", err)
			return
		}
		slog.Info("harvest finished",
			"threads", len(result.Threads), "seconds", time.Since(t1).Seconds())

		if len(result.Threads) == 0 {
			fmt.Println("No threads matched the engagement minimums.")
			return
		}

		renderThreads(result.Threads)
		fmt.Printf("run %s exported to:\n  %s\n  %s\n", result.RunId, result.CsvPath, result.JsonPath)
	},
}

func renderThreads(records []reddit.ThreadRecord) {
	t := utils.NewTable()
	t.AppendHeader(table.Row{"id", "subreddit", "score", "comments", "title"})
	for _, rec := range records {
		t.AppendRow(table.Row{
			rec.Id, rec.Subreddit, rec.Score, rec.NumComments,
			utils.Truncate(rec.Title, 60),
		})
	}
	t.Render()
}
