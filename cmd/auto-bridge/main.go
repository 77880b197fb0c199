package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stargate-bridger/bridger/internal/app"
	"github.com/stargate-bridger/bridger/internal/config"
	"github.com/stargate-bridger/bridger/internal/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("auto-bridge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	envPath := fs.String("env", ".env", "optional dotenv file; process env wins")
	count := fs.Int("count", 0, "number of bridges (default AUTO_BRIDGE_COUNT)")
	delayMin := fs.Duration("delay-min", 0, "minimum pause between bridges (default from AUTO_BRIDGE_DELAY_RANGE)")
	delayMax := fs.Duration("delay-max", 0, "maximum pause between bridges (default from AUTO_BRIDGE_DELAY_RANGE)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count < 0 || *delayMin < 0 || *delayMax < 0 {
		return errors.New("--count and delays must not be negative")
	}

	cfg, err := config.LoadFromEnv(*envPath)
	if err != nil {
		return err
	}
	n := cfg.AutoCount
	if *count > 0 {
		n = *count
	}
	delay := cfg.AutoDelay
	if *delayMin > 0 {
		delay.Min = *delayMin
	}
	if *delayMax > 0 {
		delay.Max = *delayMax
	}
	if delay.Max < delay.Min {
		return fmt.Errorf("delay max %s is below min %s", delay.Max, delay.Min)
	}
	log := logging.New(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{Config: cfg, Log: log})
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.Scheduler(n, delay)
	if err != nil {
		return err
	}
	start := time.Now()
	ok, err := s.Run(ctx)
	if err != nil {
		log.Info("shutdown", "signal", err)
	}
	status := "no bridge succeeded"
	if ok {
		status = "at least one bridge succeeded"
	}
	fmt.Fprintf(stdout, "auto bridge finished after %s: %s\n", time.Since(start).Round(time.Second), status)
	return err
}
