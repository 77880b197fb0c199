package bridge

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stargate-bridger/bridger/internal/eth"
	"github.com/stargate-bridger/bridger/internal/ledger"
)

var (
	ErrConfiguration     = errors.New("bridge: configuration error")
	ErrQuote             = errors.New("bridge: quote failed")
	ErrEstimation        = errors.New("bridge: estimation failed")
	ErrInsufficientFunds = errors.New("bridge: insufficient funds")
	ErrPanic             = errors.New("bridge: unexpected panic")
)

// Reason classifies why an attempt failed.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonQuote             Reason = "quote"
	ReasonEstimation        Reason = "estimation"
	ReasonSubmit            Reason = "submit"
	ReasonConfirmation      Reason = "confirmation"
	ReasonConfiguration     Reason = "configuration"
	ReasonUnknown           Reason = "unknown"
)

// ReasonFor maps an attempt error to its Reason. Order matters: the most specific cause wins.
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrConfiguration), errors.Is(err, eth.ErrMissingRPC):
		return ReasonConfiguration
	case errors.Is(err, ErrInsufficientFunds):
		return ReasonInsufficientFunds
	case errors.Is(err, eth.ErrSubmit):
		if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
			return ReasonInsufficientFunds
		}
		return ReasonSubmit
	case errors.Is(err, ErrQuote):
		return ReasonQuote
	case errors.Is(err, ErrEstimation), errors.Is(err, eth.ErrEstimation), errors.Is(err, eth.ErrBalanceUnavailable):
		return ReasonEstimation
	case errors.Is(err, eth.ErrNoTransaction), errors.Is(err, eth.ErrReverted), errors.Is(err, eth.ErrConfirmTimeout):
		return ReasonConfirmation
	default:
		return ReasonUnknown
	}
}

// Outcome is the result of one Bridge call. Err is set iff Success is false.
type Outcome struct {
	Success   bool
	Reason    Reason
	Err       error
	AmountWei *big.Int
	TxHash    common.Hash
	Record    ledger.Record
	// Recorded reports whether the ledger file was written.
	Recorded bool
}
