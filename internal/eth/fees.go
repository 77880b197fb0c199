package eth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sort"
)

var ErrInvalidFeeArgs = errors.New("eth: invalid fee args")

// DefaultPriorityFee is used when neither the latest block nor the node yields a tip (1.5 gwei).
var DefaultPriorityFee = big.NewInt(1_500_000_000)

// baseFeeMarginNum/baseFeeMarginDen is the 1.2x head-room kept over the latest base fee.
const (
	baseFeeMarginNum = 12
	baseFeeMarginDen = 10
)

// BlockInfo is the slice of the latest block the fee estimator needs.
type BlockInfo struct {
	Number  uint64
	BaseFee *big.Int
	TxCount uint
}

type FeeBackend interface {
	LatestBlock(ctx context.Context) (BlockInfo, error)
	// PriorityFeeAt returns the maxPriorityFeePerGas of the index-th transaction of a block, or
	// nil when that transaction has no such field (legacy and system transactions).
	PriorityFeeAt(ctx context.Context, blockNumber uint64, index uint) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Fees1559 carries dynamic-fee caps for one transaction.
type Fees1559 struct {
	BaseFee *big.Int
	TipCap  *big.Int
	FeeCap  *big.Int
}

// Calc1559Fees returns EIP-1559 fee caps for the given base fee and priority fee.
//
// Policy:
// - tipCap = priorityFee
// - feeCap = floor(1.2*baseFee) + tipCap
func Calc1559Fees(baseFee, priorityFee *big.Int) (tipCap, feeCap *big.Int, err error) {
	if baseFee == nil || priorityFee == nil {
		return nil, nil, ErrInvalidFeeArgs
	}
	if baseFee.Sign() < 0 || priorityFee.Sign() < 0 {
		return nil, nil, ErrInvalidFeeArgs
	}

	fee := new(big.Int).Mul(baseFee, big.NewInt(baseFeeMarginNum))
	fee.Quo(fee, big.NewInt(baseFeeMarginDen))
	fee.Add(fee, priorityFee)

	return new(big.Int).Set(priorityFee), fee, nil
}

// MedianTip sorts a copy of samples and returns the element at index len/2, never an average of
// two elements. Returns nil for no samples.
func MedianTip(samples []*big.Int) *big.Int {
	if len(samples) == 0 {
		return nil
	}
	sorted := make([]*big.Int, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	return new(big.Int).Set(sorted[len(sorted)/2])
}

// FeeEstimator derives dynamic fees from the latest block. Nothing is cached between calls.
type FeeEstimator struct {
	backend FeeBackend
	log     *slog.Logger
}

func NewFeeEstimator(backend FeeBackend, log *slog.Logger) *FeeEstimator {
	if log == nil {
		log = discardLogger()
	}
	return &FeeEstimator{backend: backend, log: log}
}

func (e *FeeEstimator) Estimate(ctx context.Context) (Fees1559, error) {
	if e == nil || e.backend == nil {
		return Fees1559{}, fmt.Errorf("%w: nil fee backend", ErrInvalidFeeArgs)
	}
	block, err := e.backend.LatestBlock(ctx)
	if err != nil {
		return Fees1559{}, fmt.Errorf("eth: fetch latest block: %w", err)
	}
	if block.BaseFee == nil || block.BaseFee.Sign() < 0 {
		return Fees1559{}, fmt.Errorf("%w: missing baseFee in block %d", ErrInvalidFeeArgs, block.Number)
	}

	tip, err := e.priorityFee(ctx, block)
	if err != nil {
		return Fees1559{}, err
	}
	tipCap, feeCap, err := Calc1559Fees(block.BaseFee, tip)
	if err != nil {
		return Fees1559{}, err
	}
	return Fees1559{
		BaseFee: new(big.Int).Set(block.BaseFee),
		TipCap:  tipCap,
		FeeCap:  feeCap,
	}, nil
}

func (e *FeeEstimator) priorityFee(ctx context.Context, block BlockInfo) (*big.Int, error) {
	samples := make([]*big.Int, 0, block.TxCount)
	for i := uint(0); i < block.TxCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tip, err := e.backend.PriorityFeeAt(ctx, block.Number, i)
		if err != nil || tip == nil {
			continue
		}
		samples = append(samples, tip)
	}
	if median := MedianTip(samples); median != nil {
		return median, nil
	}

	suggested, err := e.backend.SuggestGasTipCap(ctx)
	if err != nil || suggested == nil {
		e.log.Debug("priority fee suggestion unavailable, using default", "err", err, "default_wei", DefaultPriorityFee.String())
		return new(big.Int).Set(DefaultPriorityFee), nil
	}
	return suggested, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
