package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stargate-bridger/bridger/internal/networks"
	"github.com/stargate-bridger/bridger/internal/stargateabi"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Range is an inclusive delay range.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// PercentRange is an inclusive range of whole percents.
type PercentRange struct {
	Min int
	Max int
}

// Pair is a source -> destination route by network name.
type Pair struct {
	Source      string
	Destination string
}

type Config struct {
	// RPCURLs overrides network RPC endpoints by lower-case network name.
	RPCURLs map[string]string

	KeysProvider string
	KeysRef      string
	ProxiesPath  string

	UseMobileProxy   bool
	ProxyChangeIPURL string

	WalletDelay Range
	FailDelay   Range
	ActionPause Range

	DefaultMode    stargateabi.Mode
	BalancePercent PercentRange
	IncludeFees    bool
	FullBridge     bool
	SlippagePct    uint
	// GasThresholdsGwei caps the source network gas price by lower-case network name.
	GasThresholdsGwei map[string]float64

	AutoPairs []Pair
	AutoCount int
	AutoDelay Range

	LedgerPath string

	PriceURL      string
	PriceSymbol   string
	FallbackPrice float64

	BalanceAttempts int
	ReceiptTimeout  time.Duration

	ArchiveDriver string
	ArchiveBucket string
	ArchivePrefix string

	QueueDriver  string
	QueueBrokers []string
	QueueTopic   string

	PostgresDSN string

	LogLevel string
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

// Layered looks keys up in order and returns the first hit.
type Layered []EnvSource

func (l Layered) Lookup(key string) (string, bool) {
	for _, src := range l {
		if src == nil {
			continue
		}
		if v, ok := src.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, fmt.Errorf("%w: env source is required", ErrInvalidConfig)
	}

	cfg := Config{
		RPCURLs:           make(map[string]string),
		GasThresholdsGwei: make(map[string]float64),
	}
	for _, n := range networks.Defaults() {
		key := strings.ToUpper(n.Name) + "_RPC_URL"
		if raw, ok := source.Lookup(key); ok && strings.TrimSpace(raw) != "" {
			cfg.RPCURLs[strings.ToLower(n.Name)] = strings.TrimSpace(raw)
		}
	}

	cfg.KeysProvider = parseString(source, "KEYS_PROVIDER", "file")
	cfg.KeysRef = parseString(source, "KEYS_REF", "data/private_keys.txt")
	cfg.ProxiesPath = parseString(source, "PROXIES_PATH", "data/proxies.txt")
	cfg.ProxyChangeIPURL = parseString(source, "PROXY_CHANGE_IP_URL", "")
	cfg.LedgerPath = parseString(source, "LEDGER_PATH", "data/database.json")
	cfg.PriceURL = parseString(source, "PRICE_URL", "https://api.binance.com")
	cfg.PriceSymbol = parseString(source, "PRICE_SYMBOL", "ETHUSDT")
	cfg.ArchiveDriver = strings.ToLower(parseString(source, "ARCHIVE_DRIVER", ""))
	cfg.ArchiveBucket = parseString(source, "ARCHIVE_BUCKET", "")
	cfg.ArchivePrefix = parseString(source, "ARCHIVE_PREFIX", "bridger")
	cfg.QueueDriver = strings.ToLower(parseString(source, "QUEUE_DRIVER", ""))
	cfg.QueueTopic = parseString(source, "QUEUE_TOPIC", "bridge.records")
	cfg.PostgresDSN = parseString(source, "POSTGRES_DSN", "")
	cfg.LogLevel = parseString(source, "LOG_LEVEL", "info")

	var err error
	if cfg.UseMobileProxy, err = parseBool(source, "USE_MOBILE_PROXY", false); err != nil {
		return Config{}, err
	}
	if cfg.IncludeFees, err = parseBool(source, "INCLUDE_FEES_IN_AMOUNT", true); err != nil {
		return Config{}, err
	}
	if cfg.FullBridge, err = parseBool(source, "USE_FULL_BRIDGE", false); err != nil {
		return Config{}, err
	}

	if cfg.WalletDelay, err = parseSecondsRange(source, "WALLET_DELAY_RANGE", 30, 100); err != nil {
		return Config{}, err
	}
	if cfg.FailDelay, err = parseSecondsRange(source, "AFTER_FAIL_DELAY_RANGE", 10, 15); err != nil {
		return Config{}, err
	}
	if cfg.ActionPause, err = parseSecondsRange(source, "ACTION_PAUSE_RANGE", 5, 20); err != nil {
		return Config{}, err
	}
	if cfg.AutoDelay, err = parseSecondsRange(source, "AUTO_BRIDGE_DELAY_RANGE", 1800, 3600); err != nil {
		return Config{}, err
	}

	lo, hi, err := parseIntRange(source, "BALANCE_PERCENTAGE_TO_BRIDGE", 50, 80)
	if err != nil {
		return Config{}, err
	}
	if lo < 1 || hi > 100 {
		return Config{}, fmt.Errorf("%w: BALANCE_PERCENTAGE_TO_BRIDGE must be within 1-100", ErrInvalidConfig)
	}
	cfg.BalancePercent = PercentRange{Min: lo, Max: hi}

	mode, err := stargateabi.ParseMode(parseString(source, "DEFAULT_BRIDGE_MODE", "BUS"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: DEFAULT_BRIDGE_MODE: %w", ErrInvalidConfig, err)
	}
	cfg.DefaultMode = mode

	slippage, err := parseUint(source, "MAX_SLIPPAGE", 1)
	if err != nil {
		return Config{}, err
	}
	if slippage == 0 || slippage >= 100 {
		return Config{}, fmt.Errorf("%w: MAX_SLIPPAGE must be within 1-99", ErrInvalidConfig)
	}
	cfg.SlippagePct = uint(slippage)

	count, err := parseUint(source, "AUTO_BRIDGE_COUNT", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.AutoCount = int(count)

	attempts, err := parseUint(source, "BALANCE_RETRIES", 10)
	if err != nil {
		return Config{}, err
	}
	cfg.BalanceAttempts = int(attempts)

	if cfg.ReceiptTimeout, err = parseDuration(source, "RECEIPT_TIMEOUT", 600*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.FallbackPrice, err = parseFloat(source, "FALLBACK_ETH_PRICE", 3000); err != nil {
		return Config{}, err
	}
	if cfg.AutoPairs, err = parsePairs(source, "AUTO_BRIDGE_PAIRS",
		"arbitrum:optimism,optimism:base,base:linea,linea:scroll,scroll:arbitrum"); err != nil {
		return Config{}, err
	}
	if cfg.GasThresholdsGwei, err = parseThresholds(source, "GAS_THRESHOLDS",
		"arbitrum=0.1,optimism=0.01,base=0.1,linea=0.1,scroll=0.1"); err != nil {
		return Config{}, err
	}
	cfg.QueueBrokers = parseList(source, "QUEUE_BROKERS", "localhost:9092")

	return cfg, nil
}

func parseString(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	return strings.TrimSpace(raw)
}

func parseBool(source EnvSource, key string, defaultValue bool) (bool, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return v, nil
}

func parseUint(source EnvSource, key string, defaultValue uint64) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return v, nil
}

func parseFloat(source EnvSource, key string, defaultValue float64) (float64, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return v, nil
}

func parseDuration(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return v, nil
}

// parseIntRange reads "min-max" or a single value.
func parseIntRange(source EnvSource, key string, defMin, defMax int) (int, int, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defMin, defMax, nil
	}
	lo, hi, found := strings.Cut(strings.TrimSpace(raw), "-")
	if !found {
		hi = lo
	}
	minV, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	maxV, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	if minV < 0 || maxV < minV {
		return 0, 0, fmt.Errorf("%w: %s: range %d-%d", ErrInvalidConfig, key, minV, maxV)
	}
	return minV, maxV, nil
}

func parseSecondsRange(source EnvSource, key string, defMin, defMax int) (Range, error) {
	lo, hi, err := parseIntRange(source, key, defMin, defMax)
	if err != nil {
		return Range{}, err
	}
	return Range{Min: time.Duration(lo) * time.Second, Max: time.Duration(hi) * time.Second}, nil
}

func parseList(source EnvSource, key string, defaultValue string) []string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		raw = defaultValue
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(item); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func parsePairs(source EnvSource, key string, defaultValue string) ([]Pair, error) {
	var out []Pair
	for _, item := range parseList(source, key, defaultValue) {
		src, dst, ok := strings.Cut(item, ":")
		src, dst = strings.ToLower(strings.TrimSpace(src)), strings.ToLower(strings.TrimSpace(dst))
		if !ok || src == "" || dst == "" || src == dst {
			return nil, fmt.Errorf("%w: %s: bad pair %q", ErrInvalidConfig, key, item)
		}
		out = append(out, Pair{Source: src, Destination: dst})
	}
	return out, nil
}

// parseThresholds reads "network=gwei" entries; "off" as the value disables that network.
func parseThresholds(source EnvSource, key string, defaultValue string) (map[string]float64, error) {
	out := make(map[string]float64)
	raw, ok := source.Lookup(key)
	if ok && strings.EqualFold(strings.TrimSpace(raw), "off") {
		return out, nil
	}
	for _, item := range parseList(source, key, defaultValue) {
		name, value, found := strings.Cut(item, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if !found || name == "" {
			return nil, fmt.Errorf("%w: %s: bad entry %q", ErrInvalidConfig, key, item)
		}
		if strings.EqualFold(value, "off") {
			continue
		}
		gwei, err := strconv.ParseFloat(value, 64)
		if err != nil || gwei <= 0 {
			return nil, fmt.Errorf("%w: %s: bad threshold %q", ErrInvalidConfig, key, item)
		}
		out[name] = gwei
	}
	return out, nil
}
