package stargateabi

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidInput = errors.New("stargateabi: invalid input")
	ErrInvalidMode  = errors.New("stargateabi: invalid mode")
)

// Mode selects the Stargate delivery path.
type Mode string

const (
	// ModeBus batches the transfer with others; cheaper, slower.
	ModeBus Mode = "BUS"
	// ModeTaxi sends the transfer immediately on its own message.
	ModeTaxi Mode = "TAXI"
)

var Modes = []Mode{ModeBus, ModeTaxi}

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeBus:
		return ModeBus, nil
	case ModeTaxi:
		return ModeTaxi, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

func (m Mode) String() string { return string(m) }

// OftCmd is the command byte string the pool expects for the mode: 0x01 for bus, empty for taxi.
func (m Mode) OftCmd() []byte {
	if m == ModeBus {
		return []byte{0x01}
	}
	return []byte{}
}

// SendParam mirrors IOFT.SendParam.
type SendParam struct {
	DstEid       uint32
	To           [32]byte
	AmountLD     *big.Int
	MinAmountLD  *big.Int
	ExtraOptions []byte
	ComposeMsg   []byte
	OftCmd       []byte
}

// MessagingFee mirrors the LayerZero MessagingFee struct returned by quoteSend.
type MessagingFee struct {
	NativeFee  *big.Int
	LzTokenFee *big.Int
}

// nativePools maps chain id to the Stargate V2 native ETH pool.
var nativePools = map[uint64]common.Address{
	42161:  common.HexToAddress("0xA45B5130f36CDcA45667738e2a258AB09f4A5f7F"), // Arbitrum
	10:     common.HexToAddress("0xe8CDF27AcD73a434D661C84887215F7598e7d0d3"), // Optimism
	59144:  common.HexToAddress("0x81F6138153d473E8c5EcebD3DC8Cd4903506B075"), // Linea
	8453:   common.HexToAddress("0xdc181Bd607330aeeBEF6ea62e03e5e1Fb4B6F7C7"), // Base
	534352: common.HexToAddress("0xC2b638Cb5042c1B3c5d5C969361fB50569840583"), // Scroll
}

// NativePoolAddress returns the native pool deployed on chainID.
func NativePoolAddress(chainID uint64) (common.Address, bool) {
	addr, ok := nativePools[chainID]
	return addr, ok
}

// AddressToBytes32 left-pads an address to the 32-byte recipient format.
func AddressToBytes32(a common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], a.Bytes())
	return out
}

// MinAmountAfterSlippage returns amount*(100-slippagePct)/100, truncated.
func MinAmountAfterSlippage(amount *big.Int, slippagePct uint) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 || slippagePct > 100 {
		return nil, ErrInvalidInput
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(100-slippagePct)))
	return out.Quo(out, big.NewInt(100)), nil
}

// NewSendParam builds the send parameters for moving amount to receiver on dstEid.
func NewSendParam(dstEid uint32, receiver common.Address, amount *big.Int, slippagePct uint, mode Mode) (SendParam, error) {
	if dstEid == 0 {
		return SendParam{}, fmt.Errorf("%w: dstEid must be non-zero", ErrInvalidInput)
	}
	if mode != ModeBus && mode != ModeTaxi {
		return SendParam{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	minAmount, err := MinAmountAfterSlippage(amount, slippagePct)
	if err != nil {
		return SendParam{}, fmt.Errorf("%w: amount %v slippage %d", ErrInvalidInput, amount, slippagePct)
	}
	return SendParam{
		DstEid:       dstEid,
		To:           AddressToBytes32(receiver),
		AmountLD:     new(big.Int).Set(amount),
		MinAmountLD:  minAmount,
		ExtraOptions: []byte{},
		ComposeMsg:   []byte{},
		OftCmd:       mode.OftCmd(),
	}, nil
}

var (
	initOnce sync.Once
	initErr  error

	poolABI abi.ABI
)

func initABI() error {
	initOnce.Do(func() {
		var err error
		poolABI, err = abi.JSON(strings.NewReader(nativePoolABIJSON))
		if err != nil {
			initErr = fmt.Errorf("stargateabi: parse native pool ABI: %w", err)
		}
	})
	return initErr
}

// PackQuoteSend encodes quoteSend(sendParam, false).
func PackQuoteSend(sp SendParam) ([]byte, error) {
	if err := initABI(); err != nil {
		return nil, err
	}
	if err := validateSendParam(sp); err != nil {
		return nil, err
	}
	b, err := poolABI.Pack("quoteSend", sp, false)
	if err != nil {
		return nil, fmt.Errorf("stargateabi: pack quoteSend: %w", err)
	}
	return b, nil
}

// UnpackQuoteSend decodes the MessagingFee returned by quoteSend.
func UnpackQuoteSend(data []byte) (MessagingFee, error) {
	if err := initABI(); err != nil {
		return MessagingFee{}, err
	}
	out, err := poolABI.Unpack("quoteSend", data)
	if err != nil {
		return MessagingFee{}, fmt.Errorf("stargateabi: unpack quoteSend: %w", err)
	}
	if len(out) != 1 {
		return MessagingFee{}, fmt.Errorf("stargateabi: unpack quoteSend: got %d outputs", len(out))
	}
	fee, ok := abi.ConvertType(out[0], new(MessagingFee)).(*MessagingFee)
	if !ok || fee.NativeFee == nil || fee.LzTokenFee == nil {
		return MessagingFee{}, fmt.Errorf("stargateabi: unpack quoteSend: unexpected output %T", out[0])
	}
	return *fee, nil
}

// PackSend encodes send(sendParam, fee, refundAddress).
func PackSend(sp SendParam, fee MessagingFee, refund common.Address) ([]byte, error) {
	if err := initABI(); err != nil {
		return nil, err
	}
	if err := validateSendParam(sp); err != nil {
		return nil, err
	}
	if fee.NativeFee == nil || fee.LzTokenFee == nil {
		return nil, fmt.Errorf("%w: fee must be quoted", ErrInvalidInput)
	}
	if (refund == common.Address{}) {
		return nil, fmt.Errorf("%w: refund address must be non-zero", ErrInvalidInput)
	}
	b, err := poolABI.Pack("send", sp, fee, refund)
	if err != nil {
		return nil, fmt.Errorf("stargateabi: pack send: %w", err)
	}
	return b, nil
}

func validateSendParam(sp SendParam) error {
	if sp.AmountLD == nil || sp.MinAmountLD == nil {
		return fmt.Errorf("%w: amounts must be set", ErrInvalidInput)
	}
	if sp.MinAmountLD.Cmp(sp.AmountLD) > 0 {
		return fmt.Errorf("%w: minAmountLD exceeds amountLD", ErrInvalidInput)
	}
	return nil
}

const sendParamComponents = `[
          {"internalType":"uint32","name":"dstEid","type":"uint32"},
          {"internalType":"bytes32","name":"to","type":"bytes32"},
          {"internalType":"uint256","name":"amountLD","type":"uint256"},
          {"internalType":"uint256","name":"minAmountLD","type":"uint256"},
          {"internalType":"bytes","name":"extraOptions","type":"bytes"},
          {"internalType":"bytes","name":"composeMsg","type":"bytes"},
          {"internalType":"bytes","name":"oftCmd","type":"bytes"}
        ]`

const messagingFeeComponents = `[
          {"internalType":"uint256","name":"nativeFee","type":"uint256"},
          {"internalType":"uint256","name":"lzTokenFee","type":"uint256"}
        ]`

var nativePoolABIJSON = `[
  {
    "inputs": [
      {"components": ` + sendParamComponents + `, "internalType":"struct SendParam","name":"_sendParam","type":"tuple"},
      {"internalType":"bool","name":"_payInLzToken","type":"bool"}
    ],
    "name":"quoteSend",
    "outputs":[
      {"components": ` + messagingFeeComponents + `, "internalType":"struct MessagingFee","name":"fee","type":"tuple"}
    ],
    "stateMutability":"view",
    "type":"function"
  },
  {
    "inputs": [
      {"components": ` + sendParamComponents + `, "internalType":"struct SendParam","name":"_sendParam","type":"tuple"},
      {"components": ` + messagingFeeComponents + `, "internalType":"struct MessagingFee","name":"_fee","type":"tuple"},
      {"internalType":"address","name":"_refundAddress","type":"address"}
    ],
    "name":"send",
    "outputs":[
      {"components":[
          {"internalType":"bytes32","name":"guid","type":"bytes32"},
          {"internalType":"uint64","name":"nonce","type":"uint64"},
          {"components": ` + messagingFeeComponents + `, "internalType":"struct MessagingFee","name":"fee","type":"tuple"}
        ],
        "internalType":"struct MessagingReceipt","name":"msgReceipt","type":"tuple"},
      {"components":[
          {"internalType":"uint256","name":"amountSentLD","type":"uint256"},
          {"internalType":"uint256","name":"amountReceivedLD","type":"uint256"}
        ],
        "internalType":"struct OFTReceipt","name":"oftReceipt","type":"tuple"}
    ],
    "stateMutability":"payable",
    "type":"function"
  }
]`
