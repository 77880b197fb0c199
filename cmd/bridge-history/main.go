package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

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
	fs := flag.NewFlagSet("bridge-history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	envPath := fs.String("env", ".env", "optional dotenv file; process env wins")
	wallet := fs.String("wallet", "", "only show this wallet address")
	limit := fs.Int("limit", history.DefaultLimit, "max rows per wallet")
	fromPostgres := fs.Bool("from-postgres", false, "read records from the Postgres mirror (POSTGRES_DSN)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", *limit)
	}

	cfg, err := config.LoadFromEnv(*envPath)
	if err != nil {
		return err
	}
	// History never publishes; keep the mirrors it does not read from closed.
	cfg.QueueDriver = ""
	cfg.ArchiveDriver = ""
	if !*fromPostgres {
		cfg.PostgresDSN = ""
	}
	log := logging.New(cfg.LogLevel, os.Stderr)

	ctx := context.Background()
	a, err := app.New(ctx, app.Options{Config: cfg, Log: log})
	if err != nil {
		return err
	}
	defer a.Close()

	wallets, err := a.History(ctx, *wallet, *fromPostgres)
	if err != nil {
		return err
	}
	shown, err := history.Render(stdout, wallets, *limit)
	if err != nil {
		return err
	}
	if !shown {
		fmt.Fprintln(stdout, "No bridge history found.")
	}
	return nil
}
