package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stargate-bridger/bridger/internal/bridge"
	"github.com/stargate-bridger/bridger/internal/config"
	"github.com/stargate-bridger/bridger/internal/eth"
	"github.com/stargate-bridger/bridger/internal/logging"
	"github.com/stargate-bridger/bridger/internal/networks"
	"github.com/stargate-bridger/bridger/internal/retry"
	"github.com/stargate-bridger/bridger/internal/stargateabi"
)

var (
	ErrInvalidConfig = errors.New("runner: invalid config")
	ErrBalanceTooLow = errors.New("runner: balance too low")
	ErrGasTooHigh    = errors.New("runner: gas price above threshold")
)

// DefaultMinBalance is the balance at or below which a wallet is skipped (0.001 ETH).
var DefaultMinBalance = big.NewInt(1_000_000_000_000_000)

// WalletClient is a chain client bound to one wallet and network.
type WalletClient interface {
	bridge.Chain
	Close()
}

// ClientFactory opens a client for task's wallet on net.
type ClientFactory func(task Task, net networks.Network) (WalletClient, error)

// AmountPolicy picks how much of a wallet's balance to bridge. Precedence: Full, FixedWei,
// Percent, then a random whole percent in [MinPercent, MaxPercent].
type AmountPolicy struct {
	Full        bool
	FixedWei    *big.Int
	Percent     float64
	MinPercent  int
	MaxPercent  int
	IncludeFees bool
}

type Job struct {
	Source      networks.Network
	Destination networks.Network
	Mode        stargateabi.Mode
	Amount      AmountPolicy
	// DelayAfter pauses between wallets.
	DelayAfter bool
}

type Config struct {
	NewClient   ClientFactory
	Ledger      bridge.Recorder
	Prices      bridge.PriceSource
	SlippagePct uint

	// Rotator, when set, is asked for a new exit IP before each proxied wallet.
	Rotator IPRotator

	MinBalance  *big.Int
	WalletDelay config.Range
	FailDelay   config.Range

	// GasThresholdsGwei caps the source gas price by lower-case network name.
	GasThresholdsGwei map[string]float64
	GasCheckPause     config.Range
	// MaxGasChecks bounds the gas wait; zero waits until the context ends.
	MaxGasChecks int

	Sleep  func(ctx context.Context, d time.Duration) error
	Int63n func(n int64) int64
	Now    func() time.Time
	Log    *slog.Logger
}

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Result is the outcome for one wallet. Outcome is set whenever a bridge was attempted.
type Result struct {
	Index   int
	Address common.Address
	Status  Status
	Outcome *bridge.Outcome
	Err     error
}

type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Results   []Result
}

func (s Summary) AnySucceeded() bool { return s.Succeeded > 0 }

// Runner processes wallets one at a time.
type Runner struct {
	cfg Config
}

func New(cfg Config) (*Runner, error) {
	if cfg.NewClient == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("%w: client factory and ledger are required", ErrInvalidConfig)
	}
	if cfg.MinBalance == nil {
		cfg.MinBalance = DefaultMinBalance
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.SleepCtx
	}
	if cfg.Int63n == nil {
		cfg.Int63n = rand.Int63n
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = logging.Discard()
	}
	return &Runner{cfg: cfg}, nil
}

// Run drains q. Skipped wallets do not trigger the inter-wallet pause. Only context
// cancellation is returned as an error, together with the partial summary.
func (r *Runner) Run(ctx context.Context, job Job, q *Queue) (Summary, error) {
	sum := Summary{Total: q.Len()}
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		task, ok := q.Next()
		if !ok {
			break
		}
		r.cfg.Log.Info("processing wallet", "wallet", task.Index+1, "total", sum.Total)

		res := r.Step(ctx, job, task)
		sum.Results = append(sum.Results, res)
		switch res.Status {
		case StatusSucceeded:
			sum.Succeeded++
		case StatusFailed:
			sum.Failed++
		default:
			sum.Skipped++
			continue
		}

		if !job.DelayAfter || q.Remaining() == 0 {
			continue
		}
		delay := r.cfg.FailDelay
		if res.Status == StatusSucceeded {
			delay = r.cfg.WalletDelay
		}
		if err := retry.Pause(ctx, delay.Min, delay.Max, r.cfg.Sleep, r.cfg.Int63n); err != nil {
			return sum, err
		}
	}
	r.cfg.Log.Info("bridging complete", "succeeded", sum.Succeeded, "total", sum.Total, "skipped", sum.Skipped)
	return sum, nil
}

// Step processes one wallet: optional IP rotation, balance check, amount selection, gas wait
// and the bridge attempt itself.
func (r *Runner) Step(ctx context.Context, job Job, task Task) Result {
	res := Result{Index: task.Index, Address: task.Signer.Address(), Status: StatusSkipped}

	if r.cfg.Rotator != nil && task.Proxy != "" {
		if err := r.cfg.Rotator.RotateIP(ctx); err != nil {
			r.cfg.Log.Warn("proxy ip rotation", "wallet", res.Address, "err", err)
		}
	}

	client, err := r.cfg.NewClient(task, job.Source)
	if err != nil {
		r.cfg.Log.Error("open client", "wallet", res.Address, "network", job.Source.Name, "err", err)
		res.Err = err
		return res
	}
	defer client.Close()

	balance, err := client.NativeBalance(ctx, nil)
	if err != nil {
		r.cfg.Log.Error("balance lookup", "wallet", res.Address, "network", job.Source.Name, "err", err)
		res.Err = err
		return res
	}
	r.cfg.Log.Info("balance", "wallet", res.Address, "network", job.Source.Name, "eth", eth.WeiToEther(balance))
	if balance.Cmp(r.cfg.MinBalance) <= 0 {
		r.cfg.Log.Warn("balance too low for bridging", "wallet", res.Address, "eth", eth.WeiToEther(balance))
		res.Err = fmt.Errorf("%w: %s wei", ErrBalanceTooLow, balance)
		return res
	}

	amount, includeFees := r.amountFor(job.Amount, balance)

	if err := r.waitForGas(ctx, client, job.Source); err != nil {
		res.Err = err
		return res
	}

	orch, err := bridge.New(bridge.Config{
		Chain:       client,
		Ledger:      r.cfg.Ledger,
		Prices:      r.cfg.Prices,
		SlippagePct: r.cfg.SlippagePct,
		Now:         r.cfg.Now,
		Log:         r.cfg.Log,
	})
	if err != nil {
		res.Err = err
		return res
	}
	out := orch.Bridge(ctx, bridge.Request{
		Destination: job.Destination,
		AmountWei:   amount,
		Mode:        job.Mode,
		IncludeFees: includeFees,
	})
	res.Outcome = &out
	res.Err = out.Err
	if out.Success {
		res.Status = StatusSucceeded
	} else {
		res.Status = StatusFailed
	}
	return res
}

// amountFor returns nil for a full-balance bridge, which never adds fees on top.
func (r *Runner) amountFor(p AmountPolicy, balance *big.Int) (*big.Int, bool) {
	switch {
	case p.Full:
		return nil, false
	case p.FixedWei != nil:
		return new(big.Int).Set(p.FixedWei), p.IncludeFees
	case p.Percent > 0:
		f := new(big.Float).SetInt(balance)
		f.Mul(f, big.NewFloat(p.Percent))
		f.Quo(f, big.NewFloat(100))
		out, _ := f.Int(nil)
		return out, p.IncludeFees
	default:
		pct := int64(p.MinPercent)
		if p.MaxPercent > p.MinPercent {
			pct += r.cfg.Int63n(int64(p.MaxPercent-p.MinPercent) + 1)
		}
		out := new(big.Int).Mul(balance, big.NewInt(pct))
		return out.Quo(out, big.NewInt(100)), p.IncludeFees
	}
}

// waitForGas blocks until the source gas price is at or below its threshold.
func (r *Runner) waitForGas(ctx context.Context, client WalletClient, net networks.Network) error {
	limit, ok := r.cfg.GasThresholdsGwei[strings.ToLower(net.Name)]
	if !ok {
		return nil
	}
	for check := 1; ; check++ {
		price, err := client.GasPrice(ctx)
		switch {
		case err != nil:
			r.cfg.Log.Warn("gas price lookup", "network", net.Name, "err", err)
		case eth.WeiToGwei(price) <= limit:
			return nil
		default:
			r.cfg.Log.Info("gas price above threshold, waiting", "network", net.Name, "gwei", eth.WeiToGwei(price), "max_gwei", limit)
		}
		if r.cfg.MaxGasChecks > 0 && check >= r.cfg.MaxGasChecks {
			return fmt.Errorf("%w: %s after %d checks", ErrGasTooHigh, net.Name, check)
		}
		if err := retry.Pause(ctx, r.cfg.GasCheckPause.Min, r.cfg.GasCheckPause.Max, r.cfg.Sleep, r.cfg.Int63n); err != nil {
			return err
		}
	}
}
