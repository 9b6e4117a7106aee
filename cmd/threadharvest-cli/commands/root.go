package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"threadharvest/lib/telemetry"
	"threadharvest/lib/util/serviceutil"
	"threadharvest/services/harvest"

	"github.com/spf13/cobra"
)

var configPath *string

var rootCmd = &cobra.Command{
	Use:   "threadharvest-cli",
	Short: "threadharvest-cli scrapes high-engagement reddit threads into files and a database.",
}

func init() {
	configPath = rootCmd.PersistentFlags().String(
		"config", "config.json5", "Path to the harvest config file.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newService loads config and wires up the harvest service, exiting on
// any startup failure.
func newService() (*harvest.Service, *sql.DB, harvest.Config) {
	config, err := harvest.LoadConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	telemetry.InitSlog(config.Debug)

	database, err := config.Database.Open()
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}

	service, err := harvest.NewService(config, database)
	if err != nil {
		database.Close()
		serviceutil.Fatal("failed to initialize harvest service", err)
	}
	return service, database, config
}
