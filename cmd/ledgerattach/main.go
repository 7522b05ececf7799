// Command ledgerattach rebuilds the attachment side-schema of a ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/ledgerattach/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := cli.ExitSuccess
	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		// Commands report their own failures. Anything else is a usage
		// error from cobra: unknown command, bad flag, wrong arg count.
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.Code
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
			code = cli.ExitCommandError
		}
	}
	stop()
	os.Exit(code)
}
