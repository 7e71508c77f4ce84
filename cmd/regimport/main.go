// Command regimport loads regulatory energy workbooks into a relational
// database and serves a summary of what was loaded.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err == nil {
		slog.Debug("loaded .env file (overwriting existing env vars)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(version).ExecuteContext(ctx)
	stop()

	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process status: 0 on success, 2 when
// the run finished with failed sheets, 1 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errSheetsFailed):
		return 2
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
}
