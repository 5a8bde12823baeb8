// Command tsbench benchmarks, reconciles and disaggregates time series
// described by a YAML job file.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
