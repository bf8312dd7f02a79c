// Command listsync syncs an upstream listing catalog into a local store,
// normalises the listings and maintains their translation dictionary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/listsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/listsync/internal/logger"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()

	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	// Cobra has already printed the error
	if err := cli.Execute(ctx); err != nil {
		return 1
	}
	return 0
}
