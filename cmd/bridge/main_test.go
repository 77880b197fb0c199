package main

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stargate-bridger/bridger/internal/config"
)

const testKey = "0x4f3edf983ac636a65a842ce7c78d9aa706d3b113b37c2b1b4c1c5f5d8f5e2d3a"

func writeEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	keys := filepath.Join(dir, "keys.txt")
	if err := os.WriteFile(keys, []byte(testKey+"\n"), 0o600); err != nil {
		t.Fatalf("write keys: %v", err)
	}
	env := strings.Join([]string{
		"KEYS_REF=" + keys,
		"LEDGER_PATH=" + filepath.Join(dir, "database.json"),
		"ARBITRUM_RPC_URL=http://127.0.0.1:1",
		"BALANCE_RETRIES=1",
	}, "\n")
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(env), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	return path
}

func TestRun_RequiresRoute(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := run([]string{"-source", "arbitrum"}, &out); err == nil {
		t.Fatalf("expected error without destination")
	}
	if err := run([]string{"-source", "arbitrum", "-destination", "base", "-amount", "150"}, &out); err == nil {
		t.Fatalf("expected error for amount above 100")
	}
}

func TestRun_RejectsBadInput(t *testing.T) {
	t.Parallel()

	env := writeEnv(t)
	cases := [][]string{
		{"-env", env, "-source", "arbitrum", "-destination", "solana"},
		{"-env", env, "-source", "base", "-destination", "base"},
		{"-env", env, "-source", "arbitrum", "-destination", "base", "-mode", "SHIP"},
	}
	for _, args := range cases {
		var out bytes.Buffer
		if err := run(args, &out); err == nil {
			t.Fatalf("run %v: expected error", args)
		}
	}
}

func TestRun_UnreachableRPCSkipsWallet(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := run([]string{
		"-env", writeEnv(t),
		"-source", "arbitrum",
		"-destination", "optimism",
		"-full",
		"-no-delay",
	}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "skipped") || !strings.Contains(got, "bridged 0/1 wallets Arbitrum -> Optimism") {
		t.Fatalf("output: got %q", got)
	}
}

func TestAmountFlags_Policy(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		IncludeFees:    true,
		BalancePercent: config.PercentRange{Min: 50, Max: 80},
	}

	p, err := amountFlags{ether: "0.05"}.policy(cfg)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if p.FixedWei == nil || p.FixedWei.Cmp(big.NewInt(50_000_000_000_000_000)) != 0 {
		t.Fatalf("fixed wei: got %v want 50000000000000000", p.FixedWei)
	}
	if p.Full || p.Percent != 0 || !p.IncludeFees {
		t.Fatalf("fixed policy: got %+v", p)
	}

	if p, _ = (amountFlags{percent: 25}).policy(cfg); p.Percent != 25 || p.FixedWei != nil {
		t.Fatalf("percent policy: got %+v", p)
	}
	if p, _ = (amountFlags{}).policy(cfg); p.MinPercent != 50 || p.MaxPercent != 80 || p.Full {
		t.Fatalf("default policy: got %+v", p)
	}
	full := cfg
	full.FullBridge = true
	if p, _ = (amountFlags{}).policy(full); !p.Full {
		t.Fatalf("configured full bridge: got %+v", p)
	}
	if p, _ = (amountFlags{ether: "0.2"}).policy(full); p.Full || p.FixedWei == nil {
		t.Fatalf("explicit amount over full bridge config: got %+v", p)
	}
}

func TestAmountFlags_Validate(t *testing.T) {
	t.Parallel()

	bad := []amountFlags{
		{full: true, ether: "0.1"},
		{percent: 10, ether: "0.1"},
		{full: true, percent: 10},
		{ether: "zero"},
		{ether: "0"},
		{percent: 101},
	}
	for _, f := range bad {
		if err := f.validate(); err == nil {
			t.Fatalf("validate(%+v): expected error", f)
		}
	}
	if err := (amountFlags{ether: "0.05"}).validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestRun_ExplicitAmountFlag(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := run([]string{"-source", "arbitrum", "-destination", "base", "-amount-eth", "0.1", "-full"}, &out); err == nil {
		t.Fatalf("expected error for --amount-eth with --full")
	}
	err := run([]string{
		"-env", writeEnv(t),
		"-source", "arbitrum",
		"-destination", "optimism",
		"-amount-eth", "0.01",
		"-no-delay",
	}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "bridged 0/1 wallets") {
		t.Fatalf("output: got %q", out.String())
	}
}
