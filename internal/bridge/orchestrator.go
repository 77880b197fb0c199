package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stargate-bridger/bridger/internal/eth"
	"github.com/stargate-bridger/bridger/internal/ledger"
	"github.com/stargate-bridger/bridger/internal/networks"
	"github.com/stargate-bridger/bridger/internal/pricing"
	"github.com/stargate-bridger/bridger/internal/stargateabi"
)

// SimulationValue stands in for the amount while estimating a full-balance bridge, since the
// quote itself depends on the amount.
var SimulationValue = big.NewInt(10_000_000_000_000)

const (
	DefaultSlippagePct = 1

	safetyMarginNum = 99
	safetyMarginDen = 100
)

// Chain is the slice of eth.Client the orchestrator drives.
type Chain interface {
	Address() common.Address
	Network() networks.Network
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	BuildTransactionParameters(ctx context.Context, req eth.TxRequest) (eth.TxParams, error)
	EstimateGas(ctx context.Context, p eth.TxParams) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	NativeBalance(ctx context.Context, net *networks.Network) (*big.Int, error)
	SubmitTransaction(ctx context.Context, req eth.TxRequest) (eth.TxParams, common.Hash, error)
	WaitForConfirmation(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Recorder interface {
	Append(ctx context.Context, wallet string, rec ledger.Record) bool
}

type PriceSource interface {
	PriceOrFallback(ctx context.Context) float64
}

type Config struct {
	Chain  Chain
	Ledger Recorder
	Prices PriceSource

	SlippagePct uint
	// PoolAddress resolves the native pool on a source chain; defaults to the Stargate deployments.
	PoolAddress func(chainID uint64) (common.Address, bool)

	Now func() time.Time
	Log *slog.Logger
}

// Orchestrator runs bridge attempts for the wallet and source network bound to its Chain.
type Orchestrator struct {
	cfg Config
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Chain == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("%w: chain and ledger are required", ErrConfiguration)
	}
	if cfg.SlippagePct == 0 {
		cfg.SlippagePct = DefaultSlippagePct
	}
	if cfg.SlippagePct >= 100 {
		return nil, fmt.Errorf("%w: slippage %d%%", ErrConfiguration, cfg.SlippagePct)
	}
	if cfg.PoolAddress == nil {
		cfg.PoolAddress = stargateabi.NativePoolAddress
	}
	if cfg.Prices == nil {
		cfg.Prices = fixedPrice(pricing.DefaultFallbackPrice)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{cfg: cfg}, nil
}

type fixedPrice float64

func (p fixedPrice) PriceOrFallback(context.Context) float64 { return float64(p) }

func (o *Orchestrator) pool() (common.Address, error) {
	src := o.cfg.Chain.Network()
	addr, ok := o.cfg.PoolAddress(src.ChainID)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: no native pool on %s", ErrConfiguration, src.Name)
	}
	return addr, nil
}

// Quote is a priced send: Value is the amount plus the native messaging fee. Pool is the
// source-network pool that priced it.
type Quote struct {
	Pool      common.Address
	Value     *big.Int
	SendParam stargateabi.SendParam
	Fee       stargateabi.MessagingFee
}

// QuoteSend prices sending amountWei to dstEid. Failures wrap ErrQuote.
func (o *Orchestrator) QuoteSend(ctx context.Context, dstEid uint32, amountWei *big.Int, mode stargateabi.Mode) (Quote, error) {
	pool, err := o.pool()
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrQuote, err)
	}
	sp, err := stargateabi.NewSendParam(dstEid, o.cfg.Chain.Address(), amountWei, o.cfg.SlippagePct, mode)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrQuote, err)
	}
	data, err := stargateabi.PackQuoteSend(sp)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrQuote, err)
	}
	out, err := o.cfg.Chain.Call(ctx, pool, data)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: quoteSend call: %w", ErrQuote, err)
	}
	fee, err := stargateabi.UnpackQuoteSend(out)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrQuote, err)
	}
	return Quote{
		Pool:      pool,
		Value:     new(big.Int).Add(amountWei, fee.NativeFee),
		SendParam: sp,
		Fee:       fee,
	}, nil
}

// EstimateFullBalanceAmount returns how much can be bridged once the messaging and gas fees are
// paid, less a 1% margin. A nil amountWei means the whole current balance: fees are estimated on
// SimulationValue and then taken from the real balance.
func (o *Orchestrator) EstimateFullBalanceAmount(ctx context.Context, amountWei *big.Int, dstEid uint32, mode stargateabi.Mode) (*big.Int, error) {
	sim := amountWei
	if sim == nil {
		sim = SimulationValue
	}
	q, err := o.QuoteSend(ctx, dstEid, sim, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEstimation, err)
	}
	data, err := stargateabi.PackSend(q.SendParam, q.Fee, o.cfg.Chain.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEstimation, err)
	}
	params, err := o.cfg.Chain.BuildTransactionParameters(ctx, eth.TxRequest{To: q.Pool, Data: data, Value: q.Value})
	if err != nil {
		return nil, fmt.Errorf("%w: build params: %w", ErrEstimation, err)
	}
	gas, err := o.cfg.Chain.EstimateGas(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: estimate gas: %w", ErrEstimation, err)
	}
	gasPrice, err := o.cfg.Chain.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %w", ErrEstimation, err)
	}
	gasFee := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)

	initial := amountWei
	if initial == nil {
		initial, err = o.cfg.Chain.NativeBalance(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEstimation, err)
		}
	}

	out := new(big.Int).Sub(initial, q.Fee.NativeFee)
	out.Sub(out, gasFee)
	out.Mul(out, big.NewInt(safetyMarginNum))
	out.Quo(out, big.NewInt(safetyMarginDen))
	if out.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s wei after messaging fee %s and gas fee %s", ErrInsufficientFunds, initial, q.Fee.NativeFee, gasFee)
	}
	return out, nil
}

// Request describes one bridge attempt from the Chain's current network.
type Request struct {
	Destination networks.Network
	// AmountWei nil means bridge the full balance.
	AmountWei   *big.Int
	Mode        stargateabi.Mode
	IncludeFees bool
}

// attempt accumulates what is known about a bridge as it progresses, for the ledger record.
type attempt struct {
	amount   *big.Int
	quote    *Quote
	params   *eth.TxParams
	gasPrice *big.Int
	txHash   common.Hash
	receipt  *types.Receipt
}

// Bridge runs one attempt end to end and always records it. Errors and panics are converted into
// a failed Outcome; nothing escapes to the caller.
func (o *Orchestrator) Bridge(ctx context.Context, req Request) Outcome {
	start := o.cfg.Now()
	at := &attempt{amount: req.AmountWei}

	err := o.run(ctx, req, at)
	if err != nil {
		o.cfg.Log.Error("bridge failed",
			"wallet", o.cfg.Chain.Address(),
			"from", o.cfg.Chain.Network().Name,
			"to", req.Destination.Name,
			"amount_eth", eth.WeiToEther(at.amount),
			"mode", req.Mode,
			"reason", ReasonFor(err),
			"err", err,
		)
	}

	rec := o.record(context.WithoutCancel(ctx), req, at, err, o.cfg.Now().Sub(start))
	out := Outcome{
		Success:   err == nil,
		Reason:    ReasonFor(err),
		Err:       err,
		AmountWei: at.amount,
		TxHash:    at.txHash,
		Record:    rec,
	}
	out.Recorded = o.cfg.Ledger.Append(context.WithoutCancel(ctx), rec.WalletAddress, rec)
	return out
}

func (o *Orchestrator) run(ctx context.Context, req Request, at *attempt) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	src := o.cfg.Chain.Network()
	if req.Destination.EndpointID == 0 {
		return fmt.Errorf("%w: destination %q has no endpoint id", ErrConfiguration, req.Destination.Name)
	}
	if req.Destination.EndpointID == src.EndpointID {
		return fmt.Errorf("%w: source and destination are both %s", ErrConfiguration, src.Name)
	}
	if req.Mode != stargateabi.ModeBus && req.Mode != stargateabi.ModeTaxi {
		return fmt.Errorf("%w: mode %q", ErrConfiguration, req.Mode)
	}
	if _, err := o.pool(); err != nil {
		return err
	}
	if req.AmountWei != nil && req.AmountWei.Sign() <= 0 {
		return fmt.Errorf("%w: amount %s", ErrInsufficientFunds, req.AmountWei)
	}

	if req.AmountWei == nil || req.IncludeFees {
		amount, err := o.EstimateFullBalanceAmount(ctx, req.AmountWei, req.Destination.EndpointID, req.Mode)
		if err != nil {
			return err
		}
		at.amount = amount
	}

	o.cfg.Log.Info("bridging",
		"wallet", o.cfg.Chain.Address(),
		"from", src.Name,
		"to", req.Destination.Name,
		"amount_eth", eth.WeiToEther(at.amount),
		"mode", req.Mode,
	)

	q, err := o.QuoteSend(ctx, req.Destination.EndpointID, at.amount, req.Mode)
	if err != nil {
		return err
	}
	at.quote = &q

	data, err := stargateabi.PackSend(q.SendParam, q.Fee, o.cfg.Chain.Address())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEstimation, err)
	}
	if gp, err := o.cfg.Chain.GasPrice(ctx); err == nil {
		at.gasPrice = gp
	} else {
		o.cfg.Log.Warn("gas price lookup failed, using fee cap", "network", src.Name, "err", err)
	}

	params, hash, err := o.cfg.Chain.SubmitTransaction(ctx, eth.TxRequest{To: q.Pool, Data: data, Value: q.Value})
	if params.Gas > 0 {
		at.params = &params
	}
	if err != nil {
		return err
	}
	at.txHash = hash

	receipt, err := o.cfg.Chain.WaitForConfirmation(ctx, hash)
	at.receipt = receipt
	return err
}

func (o *Orchestrator) record(ctx context.Context, req Request, at *attempt, err error, took time.Duration) ledger.Record {
	rec := ledger.Record{
		WalletAddress:   o.cfg.Chain.Address().Hex(),
		FromChain:       o.cfg.Chain.Network().Name,
		ToChain:         req.Destination.Name,
		Amount:          eth.WeiToEther(at.amount),
		Mode:            string(req.Mode),
		Success:         err == nil,
		Timestamp:       o.cfg.Now(),
		DurationSeconds: took.Seconds(),
	}
	if (at.txHash != common.Hash{}) {
		rec.TxHash = at.txHash.Hex()
	}
	if err != nil {
		rec.Error = err.Error()
		rec.FailureReason = string(ReasonFor(err))
	}

	gasPrice := at.gasPrice
	if gasPrice == nil && at.params != nil {
		gasPrice = at.params.PriceCap()
	}
	gasFee := new(big.Int)
	if gasPrice != nil {
		rec.GasPriceGwei = eth.WeiToGwei(gasPrice)
		switch {
		case at.receipt != nil:
			gasFee.Mul(new(big.Int).SetUint64(at.receipt.GasUsed), gasPrice)
		case at.params != nil:
			gasFee.Mul(new(big.Int).SetUint64(at.params.Gas), gasPrice)
		}
	}
	rec.GasFeeETH = eth.WeiToEther(gasFee)

	if at.quote == nil {
		rec.TotalFeeETH = rec.GasFeeETH
		return rec
	}
	rec.MessageFeeWei = at.quote.Fee.NativeFee.String()
	rec.BridgeFeeETH = eth.WeiToEther(at.quote.Fee.NativeFee)
	rec.TotalFeeETH = eth.WeiToEther(new(big.Int).Add(gasFee, at.quote.Fee.NativeFee))
	rec.ETHPriceUSD = o.cfg.Prices.PriceOrFallback(ctx)
	rec.TotalFeeUSD = rec.TotalFeeETH * rec.ETHPriceUSD
	return rec
}
