package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/stargate-bridger/bridger/internal/app"
	"github.com/stargate-bridger/bridger/internal/config"
	"github.com/stargate-bridger/bridger/internal/history"
	"github.com/stargate-bridger/bridger/internal/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("balance-check", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	envPath := fs.String("env", ".env", "optional dotenv file; process env wins")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFromEnv(*envPath)
	if err != nil {
		return err
	}
	cfg.QueueDriver = ""
	cfg.ArchiveDriver = ""
	cfg.PostgresDSN = ""
	log := logging.New(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{Config: cfg, Log: log})
	if err != nil {
		return err
	}
	defer a.Close()

	nets, rows, err := a.Balances(ctx)
	if err != nil {
		return err
	}
	return history.RenderBalances(stdout, nets, rows)
}
