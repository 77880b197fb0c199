package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stargate-bridger/bridger/internal/stargateabi"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(EnvMap{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WalletDelay != (Range{Min: 30 * time.Second, Max: 100 * time.Second}) {
		t.Fatalf("wallet delay: got %+v", cfg.WalletDelay)
	}
	if cfg.FailDelay != (Range{Min: 10 * time.Second, Max: 15 * time.Second}) {
		t.Fatalf("fail delay: got %+v", cfg.FailDelay)
	}
	if cfg.AutoDelay != (Range{Min: 1800 * time.Second, Max: 3600 * time.Second}) {
		t.Fatalf("auto delay: got %+v", cfg.AutoDelay)
	}
	if cfg.BalancePercent != (PercentRange{Min: 50, Max: 80}) {
		t.Fatalf("percent: got %+v", cfg.BalancePercent)
	}
	if cfg.DefaultMode != stargateabi.ModeBus || !cfg.IncludeFees || cfg.FullBridge || cfg.SlippagePct != 1 {
		t.Fatalf("bridge defaults: got mode %s fees %v full %v slippage %d", cfg.DefaultMode, cfg.IncludeFees, cfg.FullBridge, cfg.SlippagePct)
	}
	if cfg.AutoCount != 5 || len(cfg.AutoPairs) != 5 || cfg.AutoPairs[0] != (Pair{Source: "arbitrum", Destination: "optimism"}) {
		t.Fatalf("auto: got count %d pairs %+v", cfg.AutoCount, cfg.AutoPairs)
	}
	if cfg.GasThresholdsGwei["optimism"] != 0.01 || cfg.GasThresholdsGwei["arbitrum"] != 0.1 {
		t.Fatalf("thresholds: got %v", cfg.GasThresholdsGwei)
	}
	if _, ok := cfg.GasThresholdsGwei["mainnet"]; ok {
		t.Fatalf("mainnet threshold should be unset")
	}
	if cfg.LedgerPath != "data/database.json" || cfg.KeysRef != "data/private_keys.txt" || cfg.KeysProvider != "file" {
		t.Fatalf("paths: got %q %q %q", cfg.LedgerPath, cfg.KeysRef, cfg.KeysProvider)
	}
	if cfg.ReceiptTimeout != 600*time.Second || cfg.BalanceAttempts != 10 || cfg.FallbackPrice != 3000 {
		t.Fatalf("limits: got %v %d %v", cfg.ReceiptTimeout, cfg.BalanceAttempts, cfg.FallbackPrice)
	}
	if len(cfg.RPCURLs) != 0 {
		t.Fatalf("rpc overrides: got %v", cfg.RPCURLs)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := Load(EnvMap{
		"ARBITRUM_RPC_URL":             " https://arb.example ",
		"WALLET_DELAY_RANGE":           "1-2",
		"BALANCE_PERCENTAGE_TO_BRIDGE": "90",
		"DEFAULT_BRIDGE_MODE":          "taxi",
		"USE_FULL_BRIDGE":              "true",
		"AUTO_BRIDGE_PAIRS":            "Base:Linea",
		"GAS_THRESHOLDS":               "base=2,linea=off",
		"QUEUE_BROKERS":                "a:9092, b:9092",
		"RECEIPT_TIMEOUT":              "2m",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCURLs["arbitrum"] != "https://arb.example" {
		t.Fatalf("rpc: got %v", cfg.RPCURLs)
	}
	if cfg.WalletDelay != (Range{Min: time.Second, Max: 2 * time.Second}) {
		t.Fatalf("wallet delay: got %+v", cfg.WalletDelay)
	}
	if cfg.BalancePercent != (PercentRange{Min: 90, Max: 90}) {
		t.Fatalf("percent: got %+v", cfg.BalancePercent)
	}
	if cfg.DefaultMode != stargateabi.ModeTaxi || !cfg.FullBridge {
		t.Fatalf("mode %s full %v", cfg.DefaultMode, cfg.FullBridge)
	}
	if !reflect.DeepEqual(cfg.AutoPairs, []Pair{{Source: "base", Destination: "linea"}}) {
		t.Fatalf("pairs: got %+v", cfg.AutoPairs)
	}
	if !reflect.DeepEqual(cfg.GasThresholdsGwei, map[string]float64{"base": 2}) {
		t.Fatalf("thresholds: got %v", cfg.GasThresholdsGwei)
	}
	if !reflect.DeepEqual(cfg.QueueBrokers, []string{"a:9092", "b:9092"}) {
		t.Fatalf("brokers: got %v", cfg.QueueBrokers)
	}
	if cfg.ReceiptTimeout != 2*time.Minute {
		t.Fatalf("receipt timeout: got %v", cfg.ReceiptTimeout)
	}
}

func TestLoad_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]EnvMap{
		"reversed range":  {"WALLET_DELAY_RANGE": "10-5"},
		"percent over":    {"BALANCE_PERCENTAGE_TO_BRIDGE": "50-120"},
		"bad mode":        {"DEFAULT_BRIDGE_MODE": "plane"},
		"zero slippage":   {"MAX_SLIPPAGE": "0"},
		"bad bool":        {"USE_MOBILE_PROXY": "maybe"},
		"self pair":       {"AUTO_BRIDGE_PAIRS": "base:base"},
		"bad threshold":   {"GAS_THRESHOLDS": "base=cheap"},
		"bad duration":    {"RECEIPT_TIMEOUT": "soon"},
		"bad price float": {"FALLBACK_ETH_PRICE": "x"},
	}
	for name, env := range cases {
		if _, err := Load(env); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: got %v want %v", name, err, ErrInvalidConfig)
		}
	}
	if _, err := Load(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil source: got %v want %v", err, ErrInvalidConfig)
	}
}

func TestLoad_ThresholdsOff(t *testing.T) {
	t.Parallel()

	cfg, err := Load(EnvMap{"GAS_THRESHOLDS": "off"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.GasThresholdsGwei) != 0 {
		t.Fatalf("thresholds: got %v", cfg.GasThresholdsGwei)
	}
}

func TestReadDotEnv_LayeredUnderEnvironment(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".env")
	content := "# bridger\nAUTO_BRIDGE_COUNT=7\nLOG_LEVEL=debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	file, err := ReadDotEnv(path)
	if err != nil {
		t.Fatalf("ReadDotEnv: %v", err)
	}
	cfg, err := Load(Layered{EnvMap{"LOG_LEVEL": "warn"}, file})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AutoCount != 7 {
		t.Fatalf("count: got %d want 7", cfg.AutoCount)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("level: got %q want warn", cfg.LogLevel)
	}

	missing, err := ReadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil || len(missing) != 0 {
		t.Fatalf("missing file: got %v, %v", missing, err)
	}
}
