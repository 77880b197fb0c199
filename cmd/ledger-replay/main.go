package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stargate-bridger/bridger/internal/config"
	"github.com/stargate-bridger/bridger/internal/ledger"
	lpg "github.com/stargate-bridger/bridger/internal/ledger/postgres"
	"github.com/stargate-bridger/bridger/internal/logging"
	"github.com/stargate-bridger/bridger/internal/queue"
)

type stringListFlag []string

func (f *stringListFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(*f, ",")
}

func (f *stringListFlag) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return errors.New("value must not be empty")
	}
	*f = append(*f, v)
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run re-sends local ledger records to the configured mirrors, for backfilling a topic or
// table after an outage. Postgres ignores ids it already holds.
func run(args []string, stdout io.Writer) error {
	var wallets stringListFlag
	fs := flag.NewFlagSet("ledger-replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	envPath := fs.String("env", ".env", "optional dotenv file; process env wins")
	queueDriver := fs.String("queue-driver", "", "queue driver: kafka|stdio (default QUEUE_DRIVER)")
	topic := fs.String("topic", "", "queue topic (default QUEUE_TOPIC)")
	toPostgres := fs.Bool("postgres", false, "insert records into the Postgres mirror (POSTGRES_DSN)")
	fs.Var(&wallets, "wallet", "only replay this wallet (repeatable)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFromEnv(*envPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*queueDriver) != "" {
		cfg.QueueDriver = strings.ToLower(strings.TrimSpace(*queueDriver))
	}
	if strings.TrimSpace(*topic) != "" {
		cfg.QueueTopic = strings.TrimSpace(*topic)
	}
	if cfg.QueueDriver == "" && !*toPostgres {
		return errors.New("nothing to replay to: set --queue-driver or --postgres")
	}
	if *toPostgres && cfg.PostgresDSN == "" {
		return errors.New("--postgres requires POSTGRES_DSN")
	}
	log := logging.New(cfg.LogLevel, os.Stderr)
	ctx := context.Background()

	var sinks []ledger.Sink
	if cfg.QueueDriver != "" {
		pub, err := queue.NewPublisher(queue.PublisherConfig{
			Driver:  cfg.QueueDriver,
			Brokers: cfg.QueueBrokers,
			Writer:  stdout,
		})
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
		sink, err := ledger.NewEventSink(pub, cfg.QueueTopic)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	if *toPostgres {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		store, err := lpg.New(pool)
		if err != nil {
			return err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
	}

	l := ledger.Open(ctx, ledger.Options{Path: cfg.LedgerPath, Log: log})
	targets, err := selectWallets(l.Wallets(), wallets)
	if err != nil {
		return err
	}

	replayed := 0
	for _, w := range targets {
		recs := l.Records(w)
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
		for _, rec := range recs {
			for _, s := range sinks {
				if err := s.Record(ctx, w, rec); err != nil {
					return fmt.Errorf("replay %s: %w", rec.ID, err)
				}
			}
			replayed++
		}
	}
	log.Info("ledger replayed", "records", replayed, "wallets", len(targets))
	return nil
}

// selectWallets keeps ledger wallets named in filter, matching addresses case-insensitively.
func selectWallets(all []string, filter []string) ([]string, error) {
	if len(filter) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(filter))
	for _, f := range filter {
		if !common.IsHexAddress(f) {
			return nil, fmt.Errorf("invalid wallet %q", f)
		}
		want[strings.ToLower(common.HexToAddress(f).Hex())] = true
	}
	var out []string
	for _, w := range all {
		if want[strings.ToLower(w)] {
			out = append(out, w)
		}
	}
	return out, nil
}
