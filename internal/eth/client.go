package eth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/stargate-bridger/bridger/internal/networks"
	"github.com/stargate-bridger/bridger/internal/retry"
)

var (
	ErrInvalidClientConfig = errors.New("eth: invalid client config")
	ErrMissingRPC          = errors.New("eth: network has no rpc endpoint")
	ErrEstimation          = errors.New("eth: transaction estimation failed")
	ErrSubmit              = errors.New("eth: transaction submission failed")
	ErrNoTransaction       = errors.New("eth: no transaction to confirm")
	ErrReverted            = errors.New("eth: transaction reverted")
	ErrConfirmTimeout      = errors.New("eth: confirmation timed out")
	ErrBalanceUnavailable  = errors.New("eth: balance unavailable")
)

const (
	DefaultReceiptTimeout      = 600 * time.Second
	DefaultReceiptPollInterval = 2 * time.Second
	DefaultBalanceAttempts     = 10

	gasEstimateAttempts = 3
	gasEstimateBackoff  = time.Second
)

// unknownBlockMarkers identify estimate failures caused by the node not having seen the
// block the call was pinned to yet (reorgs, lagging load-balanced nodes).
var unknownBlockMarkers = []string{"block with id:", "unknown block", "header not found"}

type ClientConfig struct {
	Network networks.Network
	Signer  Signer
	Dialer  Dialer
	Log     *slog.Logger

	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
	// BalanceRetry controls NativeBalance; zero Attempts means DefaultBalanceAttempts.
	BalanceRetry retry.Policy

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// TxRequest is what callers want executed; the client fills in the rest.
type TxRequest struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// TxParams is a fully built, unsigned transaction. Exactly one of GasPrice or FeeCap/TipCap is set.
type TxParams struct {
	ChainID *big.Int
	Nonce   uint64
	From    common.Address
	To      common.Address
	Data    []byte
	Value   *big.Int
	Gas     uint64

	GasPrice *big.Int
	TipCap   *big.Int
	FeeCap   *big.Int
}

func (p TxParams) Dynamic() bool { return p.FeeCap != nil }

// PriceCap is the most the sender pays per gas unit.
func (p TxParams) PriceCap() *big.Int {
	if p.Dynamic() {
		return p.FeeCap
	}
	return p.GasPrice
}

func (p TxParams) callMsg() ethereum.CallMsg {
	to := p.To
	msg := ethereum.CallMsg{From: p.From, To: &to, Value: p.Value, Data: p.Data}
	if p.Dynamic() {
		msg.GasFeeCap = p.FeeCap
		msg.GasTipCap = p.TipCap
	} else {
		msg.GasPrice = p.GasPrice
	}
	return msg
}

func (p TxParams) transaction() *types.Transaction {
	to := p.To
	if p.Dynamic() {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   p.ChainID,
			Nonce:     p.Nonce,
			GasTipCap: p.TipCap,
			GasFeeCap: p.FeeCap,
			Gas:       p.Gas,
			To:        &to,
			Value:     p.Value,
			Data:      p.Data,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    p.Nonce,
		GasPrice: p.GasPrice,
		Gas:      p.Gas,
		To:       &to,
		Value:    p.Value,
		Data:     p.Data,
	})
}

// Client binds one signing identity to one network at a time. It is not safe for concurrent use.
type Client struct {
	cfg     ClientConfig
	network networks.Network
	backend Backend
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Signer == nil || cfg.Dialer == nil {
		return nil, ErrInvalidClientConfig
	}
	if (cfg.Signer.Address() == common.Address{}) {
		return nil, fmt.Errorf("%w: empty signer address", ErrInvalidClientConfig)
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = DefaultReceiptTimeout
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = DefaultReceiptPollInterval
	}
	if cfg.BalanceRetry.Attempts <= 0 {
		cfg.BalanceRetry.Attempts = DefaultBalanceAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.SleepCtx
	}
	if cfg.BalanceRetry.Sleep == nil {
		cfg.BalanceRetry.Sleep = cfg.Sleep
	}
	if cfg.Log == nil {
		cfg.Log = discardLogger()
	}
	if cfg.BalanceRetry.Log == nil {
		cfg.BalanceRetry.Log = cfg.Log
	}
	return &Client{cfg: cfg, network: cfg.Network}, nil
}

func (c *Client) Address() common.Address { return c.cfg.Signer.Address() }

func (c *Client) Network() networks.Network { return c.network }

// SwitchNetwork re-targets the client; the next call dials the new network.
func (c *Client) SwitchNetwork(net networks.Network) {
	c.Close()
	c.network = net
}

func (c *Client) Close() {
	if c.backend != nil {
		c.backend.Close()
		c.backend = nil
	}
}

func (c *Client) conn(ctx context.Context) (Backend, error) {
	if c.backend != nil {
		return c.backend, nil
	}
	if strings.TrimSpace(c.network.RPCURL) == "" {
		return nil, fmt.Errorf("%w: network %s", ErrMissingRPC, c.network.Name)
	}
	b, err := c.cfg.Dialer.Dial(ctx, c.network)
	if err != nil {
		return nil, err
	}
	c.backend = b
	return b, nil
}

// BuildTransactionParameters fills chain id, pending nonce and fee fields for req.
// Dynamic fees come from a fresh FeeEstimator run; legacy networks use eth_gasPrice.
func (c *Client) BuildTransactionParameters(ctx context.Context, req TxRequest) (TxParams, error) {
	b, err := c.conn(ctx)
	if err != nil {
		return TxParams{}, err
	}
	chainID, err := b.ChainID(ctx)
	if err != nil {
		return TxParams{}, fmt.Errorf("eth: chain id: %w", err)
	}
	from := c.Address()
	nonce, err := b.PendingNonceAt(ctx, from)
	if err != nil {
		return TxParams{}, fmt.Errorf("eth: nonce: %w", err)
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	p := TxParams{
		ChainID: chainID,
		Nonce:   nonce,
		From:    from,
		To:      req.To,
		Data:    req.Data,
		Value:   new(big.Int).Set(value),
	}
	if c.network.EIP1559 {
		fees, err := NewFeeEstimator(b, c.cfg.Log).Estimate(ctx)
		if err != nil {
			return TxParams{}, err
		}
		p.TipCap, p.FeeCap = fees.TipCap, fees.FeeCap
	} else {
		gp, err := b.SuggestGasPrice(ctx)
		if err != nil {
			return TxParams{}, fmt.Errorf("eth: gas price: %w", err)
		}
		p.GasPrice = gp
	}
	return p, nil
}

// EstimateGas estimates p's gas limit. Unknown-block failures are retried after a short pause;
// after the guarded attempts one last call is made and its error returned as is.
func (c *Client) EstimateGas(ctx context.Context, p TxParams) (uint64, error) {
	b, err := c.conn(ctx)
	if err != nil {
		return 0, err
	}
	msg := p.callMsg()
	for i := 0; i < gasEstimateAttempts; i++ {
		gas, err := b.EstimateGas(ctx, msg)
		if err == nil {
			return gas, nil
		}
		if !isUnknownBlock(err) {
			return 0, err
		}
		c.cfg.Log.Debug("gas estimate hit unknown block, retrying", "network", c.network.Name, "attempt", i+1)
		if err := c.cfg.Sleep(ctx, gasEstimateBackoff); err != nil {
			return 0, err
		}
	}
	return b.EstimateGas(ctx, msg)
}

func isUnknownBlock(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range unknownBlockMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// SubmitTransaction builds, estimates, signs and sends req. A failed send is logged and
// reported as ErrSubmit with a zero hash; the built params are still returned.
func (c *Client) SubmitTransaction(ctx context.Context, req TxRequest) (TxParams, common.Hash, error) {
	p, err := c.BuildTransactionParameters(ctx, req)
	if err != nil {
		return TxParams{}, common.Hash{}, fmt.Errorf("%w: build params: %w", ErrEstimation, err)
	}
	gas, err := c.EstimateGas(ctx, p)
	if err != nil {
		return p, common.Hash{}, fmt.Errorf("%w: estimate gas: %w", ErrEstimation, err)
	}
	p.Gas = gas

	signed, err := c.cfg.Signer.SignTx(p.transaction(), p.ChainID)
	if err != nil {
		return p, common.Hash{}, fmt.Errorf("%w: sign: %w", ErrSubmit, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		c.cfg.Log.Error("send transaction", "network", c.network.Name, "from", p.From, "nonce", p.Nonce, "err", err)
		return p, common.Hash{}, fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	c.cfg.Log.Info("transaction sent", "network", c.network.Name, "from", p.From, "nonce", p.Nonce, "gas", p.Gas, "tx", signed.Hash())
	return p, signed.Hash(), nil
}

// WaitForConfirmation polls for the receipt of txHash until it is mined or the receipt timeout
// elapses. A reverted transaction returns its receipt together with ErrReverted.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if (txHash == common.Hash{}) {
		return nil, ErrNoTransaction
	}
	b, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	link := c.network.TxURL(txHash.Hex())
	deadline := c.cfg.Now().Add(c.cfg.ReceiptTimeout)

	for {
		receipt, err := b.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				c.cfg.Log.Info("transaction confirmed", "network", c.network.Name, "url", link)
				return receipt, nil
			}
			c.cfg.Log.Error("transaction reverted", "network", c.network.Name, "url", link)
			return receipt, fmt.Errorf("%w: %s", ErrReverted, link)
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.cfg.Log.Error("receipt lookup", "network", c.network.Name, "url", link, "err", err)
			return nil, fmt.Errorf("eth: receipt %s: %w", txHash.Hex(), err)
		}
		if !c.cfg.Now().Before(deadline) {
			c.cfg.Log.Error("transaction not mined in time", "network", c.network.Name, "url", link, "timeout", c.cfg.ReceiptTimeout)
			return nil, fmt.Errorf("%w: %s after %s", ErrConfirmTimeout, link, c.cfg.ReceiptTimeout)
		}
		if err := c.cfg.Sleep(ctx, c.cfg.ReceiptPollInterval); err != nil {
			return nil, err
		}
	}
}

// NativeBalance returns the signer's balance in wei on net, or on the current network when
// net is nil. Lookups are retried; exhausting the attempts yields ErrBalanceUnavailable.
func (c *Client) NativeBalance(ctx context.Context, net *networks.Network) (*big.Int, error) {
	target := c.network
	if net != nil {
		target = *net
	}
	addr := c.Address()

	bal, ok, err := retry.Do(ctx, c.cfg.BalanceRetry, func(ctx context.Context) (*big.Int, bool, error) {
		b, closeFn, err := c.backendFor(ctx, target)
		if err != nil {
			if errors.Is(err, ErrMissingRPC) {
				return nil, false, err
			}
			c.cfg.Log.Warn("dial for balance", "network", target.Name, "err", err)
			return nil, false, nil
		}
		defer closeFn()
		v, err := b.BalanceAt(ctx, addr, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			c.cfg.Log.Warn("balance lookup", "network", target.Name, "address", addr, "err", err)
			return nil, false, nil
		}
		return v, true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrBalanceUnavailable, addr, target.Name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrBalanceUnavailable, addr, target.Name)
	}
	return bal, nil
}

// backendFor reuses the bound connection for the current network and dials a throwaway one otherwise.
func (c *Client) backendFor(ctx context.Context, net networks.Network) (Backend, func(), error) {
	if net.Name == c.network.Name && net.RPCURL == c.network.RPCURL {
		b, err := c.conn(ctx)
		return b, func() {}, err
	}
	if strings.TrimSpace(net.RPCURL) == "" {
		return nil, nil, fmt.Errorf("%w: network %s", ErrMissingRPC, net.Name)
	}
	b, err := c.cfg.Dialer.Dial(ctx, net)
	if err != nil {
		return nil, nil, err
	}
	return b, b.Close, nil
}

// GasPrice returns the network's current legacy gas price.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	b, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	return b.SuggestGasPrice(ctx)
}

// Call runs a read-only contract call against the latest block.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	b, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	return b.CallContract(ctx, ethereum.CallMsg{From: c.Address(), To: &to, Data: data}, nil)
}

// WeiToEther converts wei into ether for display and the ledger.
func WeiToEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return f
}

// WeiToGwei converts wei into gwei.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.GWei)).Float64()
	return f
}

// ParseEther parses a decimal ether amount such as "0.05" into wei exactly. Digits below one
// wei are truncated; negative or malformed input is rejected.
func ParseEther(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok || r.Sign() < 0 {
		return nil, fmt.Errorf("eth: invalid ether amount %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(big.NewInt(params.Ether)))
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}

// EtherToWei converts an ether amount to wei, truncating below one wei.
func EtherToWei(ether float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(ether), big.NewFloat(params.Ether))
	out, _ := f.Int(nil)
	return out
}
