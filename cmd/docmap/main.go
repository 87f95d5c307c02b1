// Command docmap maps documents onto declared types, computes change sets
// and stores documents in a local collection store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/docmap/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
