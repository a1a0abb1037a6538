// Command fintrackctl runs maintenance tasks against the configured store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// globals is bound into every command's Run.
type globals struct {
	ctx context.Context
	cfg *config.Config
	out io.Writer
}

func (g *globals) openStore() (*storage.Store, error) {
	return cli.OpenStore(g.ctx, g.cfg)
}

type ctl struct {
	LogLevel string `name:"log-level" default:"warn" enum:"debug,info,warn,error" help:"Log level."`

	Migrate   migrateCmd   `cmd:"" help:"Manage the database schema."`
	Summary   summaryCmd   `cmd:"" help:"Print a spending summary as JSON."`
	Reconcile reconcileCmd `cmd:"" help:"Recompute wallet balances from their transactions."`
	Wallets   walletsCmd   `cmd:"" help:"List the wallets of a user's account context."`
}

func main() {
	cfg, err := cli.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, stop := cli.SignalContext()
	defer stop()

	if err := run(ctx, os.Args[1:], cfg, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "fintrackctl:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, cfg *config.Config, out io.Writer) error {
	var c ctl
	parser, err := kong.New(&c,
		kong.Name("fintrackctl"),
		kong.Description("Maintenance commands for the fintrack store."),
		kong.UsageOnError(),
		kong.Writers(out, os.Stderr),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cli.SetupLogger(c.LogLevel, log.ComponentApp)
	return kctx.Run(&globals{ctx: ctx, cfg: cfg, out: out})
}
