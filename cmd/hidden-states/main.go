package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/hidden-states/internal/cli"
	"github.com/joseph-ayodele/hidden-states/internal/common"
)

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand(cli.Deps{
		Config: common.LoadConfig(),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if failed, err := cmd.ExecuteContextC(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if common.ExitCode(err) == common.ExitUsage {
			fmt.Fprintf(os.Stderr, "usage: %s\n", failed.UseLine())
		}
		stop()
		os.Exit(common.ExitCode(err))
	}
}
