package main

import (
	"context"

	"threadharvest/cmd/threadharvest-cli/commands"
	"threadharvest/lib/telemetry"
	"threadharvest/lib/util/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "threadharvest-cli")
	if err != nil {
		serviceutil.Fatal("failed to set up telemetry", err)
	}
	defer tel.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	commands.ExecuteContext(ctx)
}
