package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stargate-bridger/bridger/internal/app"
	"github.com/stargate-bridger/bridger/internal/config"
	"github.com/stargate-bridger/bridger/internal/eth"
	"github.com/stargate-bridger/bridger/internal/logging"
	"github.com/stargate-bridger/bridger/internal/runner"
	"github.com/stargate-bridger/bridger/internal/stargateabi"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("bridge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	envPath := fs.String("env", ".env", "optional dotenv file; process env wins")
	source := fs.String("source", "", "source network name (required)")
	destination := fs.String("destination", "", "destination network name (required)")
	modeFlag := fs.String("mode", "", "BUS|TAXI (default DEFAULT_BRIDGE_MODE)")
	var amount amountFlags
	fs.Float64Var(&amount.percent, "amount", 0, "percent of the balance to bridge; 0 picks from BALANCE_PERCENTAGE_TO_BRIDGE")
	fs.StringVar(&amount.ether, "amount-eth", "", "exact amount in ETH to bridge from each wallet, e.g. 0.05")
	fs.BoolVar(&amount.full, "full", false, "bridge the full balance minus fees")
	noDelay := fs.Bool("no-delay", false, "skip the pause between wallets")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*source) == "" || strings.TrimSpace(*destination) == "" {
		return errors.New("--source and --destination are required")
	}
	if err := amount.validate(); err != nil {
		return err
	}

	cfg, err := config.LoadFromEnv(*envPath)
	if err != nil {
		return err
	}
	mode := cfg.DefaultMode
	if strings.TrimSpace(*modeFlag) != "" {
		if mode, err = stargateabi.ParseMode(*modeFlag); err != nil {
			return err
		}
	}
	log := logging.New(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{Config: cfg, Log: log})
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := a.Registry().Lookup(*source)
	if err != nil {
		return err
	}
	dst, err := a.Registry().Lookup(*destination)
	if err != nil {
		return err
	}
	if src.ChainID == dst.ChainID {
		return fmt.Errorf("source and destination are both %s", src.Name)
	}

	policy, err := amount.policy(cfg)
	if err != nil {
		return err
	}

	log.Info("starting bridge", "source", src.Name, "destination", dst.Name, "mode", mode, "full", policy.Full, "fixed_wei", policy.FixedWei)
	sum, runErr := a.BridgeAll(ctx, runner.Job{
		Source:      src,
		Destination: dst,
		Mode:        mode,
		Amount:      policy,
		DelayAfter:  !*noDelay,
	})
	if errors.Is(runErr, app.ErrNoWallets) {
		return runErr
	}

	for _, r := range sum.Results {
		line := fmt.Sprintf("%s %s", r.Address.Hex(), r.Status)
		switch {
		case r.Outcome != nil && r.Outcome.TxHash != (common.Hash{}):
			line += " " + src.TxURL(r.Outcome.TxHash.Hex())
		case r.Err != nil:
			line += ": " + r.Err.Error()
		}
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintf(stdout, "bridged %d/%d wallets %s -> %s (failed %d, skipped %d)\n",
		sum.Succeeded, sum.Total, src.Name, dst.Name, sum.Failed, sum.Skipped)
	return runErr
}

// amountFlags selects at most one of full balance, a percent of the balance or an exact amount.
type amountFlags struct {
	full    bool
	percent float64
	ether   string
}

func (f amountFlags) validate() error {
	if f.percent < 0 || f.percent > 100 {
		return fmt.Errorf("--amount must be within 0-100, got %v", f.percent)
	}
	set := 0
	for _, on := range []bool{f.full, f.percent > 0, strings.TrimSpace(f.ether) != ""} {
		if on {
			set++
		}
	}
	if set > 1 {
		return errors.New("--full, --amount and --amount-eth are mutually exclusive")
	}
	if strings.TrimSpace(f.ether) != "" {
		wei, err := eth.ParseEther(f.ether)
		if err != nil {
			return err
		}
		if wei.Sign() == 0 {
			return errors.New("--amount-eth must be positive")
		}
	}
	return nil
}

// policy applies the flags over the configured defaults: USE_FULL_BRIDGE when no amount flag is
// given, otherwise a random percent from BALANCE_PERCENTAGE_TO_BRIDGE.
func (f amountFlags) policy(cfg config.Config) (runner.AmountPolicy, error) {
	p := runner.AmountPolicy{IncludeFees: cfg.IncludeFees}
	switch {
	case f.full:
		p.Full = true
	case strings.TrimSpace(f.ether) != "":
		wei, err := eth.ParseEther(f.ether)
		if err != nil {
			return runner.AmountPolicy{}, err
		}
		p.FixedWei = wei
	case f.percent > 0:
		p.Percent = f.percent
	case cfg.FullBridge:
		p.Full = true
	default:
		p.MinPercent, p.MaxPercent = cfg.BalancePercent.Min, cfg.BalancePercent.Max
	}
	return p, nil
}
