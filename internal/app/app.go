package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stargate-bridger/bridger/internal/blobstore"
	"github.com/stargate-bridger/bridger/internal/config"
	"github.com/stargate-bridger/bridger/internal/eth"
	"github.com/stargate-bridger/bridger/internal/history"
	"github.com/stargate-bridger/bridger/internal/ledger"
	lpg "github.com/stargate-bridger/bridger/internal/ledger/postgres"
	"github.com/stargate-bridger/bridger/internal/networks"
	"github.com/stargate-bridger/bridger/internal/pricing"
	"github.com/stargate-bridger/bridger/internal/queue"
	"github.com/stargate-bridger/bridger/internal/retry"
	"github.com/stargate-bridger/bridger/internal/runner"
	"github.com/stargate-bridger/bridger/internal/scheduler"
	"github.com/stargate-bridger/bridger/internal/secrets"
	"github.com/stargate-bridger/bridger/internal/stargateabi"
)

var (
	ErrNoWallets     = errors.New("app: no wallets configured")
	ErrInvalidWallet = errors.New("app: invalid wallet address")
)

type Options struct {
	Config config.Config
	Log    *slog.Logger
	// Events receives stdio queue output; defaults to stderr so tables on stdout stay clean.
	Events io.Writer
	// Secrets overrides the provider chosen by Config.KeysProvider.
	Secrets secrets.Provider
	// Dialer overrides the JSON-RPC dialer; the proxy of each wallet is ignored when set.
	Dialer eth.Dialer
	// Sleep and Int63n override pauses and jitter, for tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Int63n func(n int64) int64
}

// App holds the long-lived collaborators shared by the commands: network registry, ledger
// with its mirrors, and the price source.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	opts     Options
	registry *networks.Registry
	ledger   *ledger.Ledger
	prices   *pricing.Client
	pg       *lpg.Store
	closers  []func()
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &App{cfg: cfg, log: log, opts: opts}

	reg, err := networks.NewRegistry(networks.Defaults(), cfg.RPCURLs)
	if err != nil {
		return nil, err
	}
	a.registry = reg

	lopts := ledger.Options{Path: cfg.LedgerPath, Log: log}
	if lopts.Archive, err = a.openArchive(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openSinks(ctx, &lopts); err != nil {
		a.Close()
		return nil, err
	}
	a.ledger = ledger.Open(ctx, lopts)

	a.prices, err = pricing.NewClient(cfg.PriceURL,
		pricing.WithSymbol(cfg.PriceSymbol),
		pricing.WithFallbackPrice(cfg.FallbackPrice),
		pricing.WithLogger(log),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openArchive(ctx context.Context) (ledger.Archive, error) {
	switch a.cfg.ArchiveDriver {
	case "":
		return nil, nil
	case blobstore.DriverS3:
		return blobstore.NewS3(ctx, a.cfg.ArchiveBucket, a.cfg.ArchivePrefix)
	default:
		return blobstore.New(blobstore.Config{Driver: a.cfg.ArchiveDriver, Prefix: a.cfg.ArchivePrefix})
	}
}

func (a *App) openSinks(ctx context.Context, lopts *ledger.Options) error {
	if a.cfg.QueueDriver != "" {
		events := a.opts.Events
		if events == nil {
			events = os.Stderr
		}
		pub, err := queue.NewPublisher(queue.PublisherConfig{
			Driver:  a.cfg.QueueDriver,
			Brokers: a.cfg.QueueBrokers,
			Writer:  events,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = pub.Close() })
		sink, err := ledger.NewEventSink(pub, a.cfg.QueueTopic)
		if err != nil {
			return err
		}
		lopts.Sinks = append(lopts.Sinks, sink)
	}

	if a.cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, a.cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("app: postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		store, err := lpg.New(pool)
		if err != nil {
			return err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		a.pg = store
		lopts.Sinks = append(lopts.Sinks, store)
	}
	return nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) Registry() *networks.Registry { return a.registry }

func (a *App) Ledger() *ledger.Ledger { return a.ledger }

// Signers loads and parses the wallet keys.
func (a *App) Signers(ctx context.Context) ([]eth.Signer, error) {
	provider := a.opts.Secrets
	if provider == nil {
		var err error
		if provider, err = secrets.New(ctx, secrets.Kind(a.cfg.KeysProvider)); err != nil {
			return nil, err
		}
	}
	raw, err := provider.Get(ctx, a.cfg.KeysRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoWallets, err)
	}
	keys, err := eth.ParsePrivateKeys(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoWallets, err)
	}
	out := make([]eth.Signer, 0, len(keys))
	for _, k := range keys {
		out = append(out, eth.NewLocalSigner(k))
	}
	return out, nil
}

// Proxies returns the proxy list when mobile proxies are enabled. A missing or empty file
// means direct connections.
func (a *App) Proxies() ([]string, error) {
	if !a.cfg.UseMobileProxy {
		return nil, nil
	}
	f, err := os.Open(a.cfg.ProxiesPath)
	if errors.Is(err, os.ErrNotExist) {
		a.log.Warn("mobile proxies enabled but proxies file missing, using direct connection", "path", a.cfg.ProxiesPath)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("app: open proxies: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("app: read proxies: %w", err)
	}
	if len(out) == 0 {
		a.log.Warn("mobile proxies enabled but none provided, using direct connection")
	}
	return out, nil
}

// NewClient opens a chain client for signer on net, through proxy when non-empty.
func (a *App) NewClient(signer eth.Signer, proxy string, net networks.Network) (*eth.Client, error) {
	dialer := a.opts.Dialer
	if dialer == nil {
		dialer = eth.RPCDialer{Proxy: proxy}
	}
	return eth.NewClient(eth.ClientConfig{
		Network:        net,
		Signer:         signer,
		Dialer:         dialer,
		Log:            a.log,
		ReceiptTimeout: a.cfg.ReceiptTimeout,
		BalanceRetry: retry.Policy{
			Attempts: a.cfg.BalanceAttempts,
			Int63n:   a.opts.Int63n,
		},
		Sleep: a.opts.Sleep,
	})
}

// Runner builds the wallet runner over the shared ledger and price source.
func (a *App) Runner() (*runner.Runner, error) {
	var rot runner.IPRotator
	if a.cfg.UseMobileProxy && a.cfg.ProxyChangeIPURL != "" {
		rot = runner.NewHTTPRotator(a.cfg.ProxyChangeIPURL)
	}
	return runner.New(runner.Config{
		NewClient: func(task runner.Task, net networks.Network) (runner.WalletClient, error) {
			return a.NewClient(task.Signer, task.Proxy, net)
		},
		Ledger:            a.ledger,
		Prices:            a.prices,
		SlippagePct:       a.cfg.SlippagePct,
		Rotator:           rot,
		WalletDelay:       a.cfg.WalletDelay,
		FailDelay:         a.cfg.FailDelay,
		GasThresholdsGwei: a.cfg.GasThresholdsGwei,
		GasCheckPause:     a.cfg.ActionPause,
		Sleep:             a.opts.Sleep,
		Int63n:            a.opts.Int63n,
		Log:               a.log,
	})
}

// BridgeAll runs job over every configured wallet in order.
func (a *App) BridgeAll(ctx context.Context, job runner.Job) (runner.Summary, error) {
	signers, err := a.Signers(ctx)
	if err != nil {
		return runner.Summary{}, err
	}
	proxies, err := a.Proxies()
	if err != nil {
		return runner.Summary{}, err
	}
	r, err := a.Runner()
	if err != nil {
		return runner.Summary{}, err
	}
	return r.Run(ctx, job, runner.NewQueue(signers, proxies))
}

// Routes resolves configured pairs against the registry.
func (a *App) Routes(pairs []config.Pair) ([]scheduler.Route, error) {
	out := make([]scheduler.Route, 0, len(pairs))
	for _, p := range pairs {
		src, err := a.registry.Lookup(p.Source)
		if err != nil {
			return nil, err
		}
		dst, err := a.registry.Lookup(p.Destination)
		if err != nil {
			return nil, err
		}
		out = append(out, scheduler.Route{Source: src, Destination: dst})
	}
	return out, nil
}

// Balances collects every wallet's balance on every registered network.
func (a *App) Balances(ctx context.Context) ([]networks.Network, []history.BalanceRow, error) {
	signers, err := a.Signers(ctx)
	if err != nil {
		return nil, nil, err
	}
	nets := a.registry.All()
	sources := make([]history.BalanceSource, 0, len(signers))
	for _, s := range signers {
		c, err := a.NewClient(s, "", nets[0])
		if err != nil {
			return nil, nil, err
		}
		defer c.Close()
		sources = append(sources, c)
	}
	a.log.Info("checking balances", "wallets", len(signers), "networks", len(nets))
	rows, err := history.CollectBalances(ctx, sources, nets, a.log)
	return nets, rows, err
}

// History returns per-wallet records for wallet, or for every configured wallet when empty.
// With fromPostgres the mirror is read instead of the local ledger file.
func (a *App) History(ctx context.Context, wallet string, fromPostgres bool) ([]history.Wallet, error) {
	if fromPostgres && a.pg == nil {
		return nil, fmt.Errorf("app: postgres history requested but POSTGRES_DSN is not set")
	}

	var addrs []string
	if strings.TrimSpace(wallet) != "" {
		if !common.IsHexAddress(strings.TrimSpace(wallet)) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWallet, wallet)
		}
		addrs = []string{common.HexToAddress(strings.TrimSpace(wallet)).Hex()}
	} else {
		signers, err := a.Signers(ctx)
		switch {
		case err == nil:
			for _, s := range signers {
				addrs = append(addrs, s.Address().Hex())
			}
		case fromPostgres:
			if addrs, err = a.pg.Wallets(ctx); err != nil {
				return nil, err
			}
		default:
			a.log.Warn("wallet keys unavailable, listing every wallet in the ledger", "err", err)
			addrs = a.ledger.Wallets()
		}
	}

	out := make([]history.Wallet, 0, len(addrs))
	for _, addr := range addrs {
		var recs []ledger.Record
		if fromPostgres {
			var err error
			if recs, err = a.pg.ListByWallet(ctx, addr, 0); err != nil {
				return nil, err
			}
		} else {
			recs = a.ledger.Records(addr)
		}
		out = append(out, history.Wallet{Address: addr, Records: recs})
	}
	return out, nil
}

// Scheduler builds the auto-bridge loop. Each iteration bridges every wallet at the chosen
// percent without inter-wallet pauses.
func (a *App) Scheduler(count int, delay config.Range) (*scheduler.Scheduler, error) {
	routes, err := a.Routes(a.cfg.AutoPairs)
	if err != nil {
		return nil, err
	}
	return scheduler.New(scheduler.Config{
		Routes:     routes,
		Count:      count,
		MinDelay:   delay.Min,
		MaxDelay:   delay.Max,
		MinPercent: a.cfg.BalancePercent.Min,
		MaxPercent: a.cfg.BalancePercent.Max,
		Bridge: func(ctx context.Context, route scheduler.Route, percent int, mode stargateabi.Mode) bool {
			sum, err := a.BridgeAll(ctx, runner.Job{
				Source:      route.Source,
				Destination: route.Destination,
				Mode:        mode,
				Amount:      runner.AmountPolicy{Percent: float64(percent), IncludeFees: a.cfg.IncludeFees},
			})
			if err != nil {
				a.log.Error("auto bridge pass", "route", route.String(), "err", err)
			}
			return sum.AnySucceeded()
		},
		Sleep:  a.opts.Sleep,
		Int63n: a.opts.Int63n,
		Log:    a.log,
	})
}
