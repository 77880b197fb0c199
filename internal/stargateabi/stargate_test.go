package stargateabi

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var receiver = common.HexToAddress("0x00000000000000000000000000000000000000Aa")

func selector(sig string) []byte { return crypto.Keccak256([]byte(sig))[:4] }

func TestMinAmountAfterSlippage_Truncates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		amount   int64
		slippage uint
		want     int64
	}{
		{amount: 1000, slippage: 1, want: 990},
		{amount: 199, slippage: 1, want: 197}, // 197.01
		{amount: 1, slippage: 1, want: 0},
		{amount: 12345, slippage: 0, want: 12345},
		{amount: 12345, slippage: 100, want: 0},
	}
	for _, tc := range cases {
		got, err := MinAmountAfterSlippage(big.NewInt(tc.amount), tc.slippage)
		if err != nil {
			t.Fatalf("MinAmountAfterSlippage(%d,%d): %v", tc.amount, tc.slippage, err)
		}
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("MinAmountAfterSlippage(%d,%d): got %s want %d", tc.amount, tc.slippage, got, tc.want)
		}
		if got.Cmp(big.NewInt(tc.amount)) > 0 {
			t.Fatalf("min amount exceeds amount")
		}
	}
	if _, err := MinAmountAfterSlippage(big.NewInt(1), 101); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMode(t *testing.T) {
	t.Parallel()

	if !bytes.Equal(ModeBus.OftCmd(), []byte{0x01}) {
		t.Fatalf("bus oftCmd: %x", ModeBus.OftCmd())
	}
	if len(ModeTaxi.OftCmd()) != 0 {
		t.Fatalf("taxi oftCmd: %x", ModeTaxi.OftCmd())
	}
	m, err := ParseMode(" taxi ")
	if err != nil || m != ModeTaxi {
		t.Fatalf("ParseMode: got %q, %v", m, err)
	}
	if _, err := ParseMode("ferry"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestAddressToBytes32_LeftPads(t *testing.T) {
	t.Parallel()

	got := AddressToBytes32(receiver)
	for i := 0; i < 12; i++ {
		if got[i] != 0 {
			t.Fatalf("byte %d not zero: %x", i, got)
		}
	}
	if common.BytesToAddress(got[12:]) != receiver {
		t.Fatalf("address bytes mismatch: %x", got)
	}
}

func TestNativePoolAddress(t *testing.T) {
	t.Parallel()

	addr, ok := NativePoolAddress(42161)
	if !ok || addr != common.HexToAddress("0xA45B5130f36CDcA45667738e2a258AB09f4A5f7F") {
		t.Fatalf("arbitrum pool: %s %v", addr, ok)
	}
	if _, ok := NativePoolAddress(1); ok {
		t.Fatalf("mainnet has no configured source pool")
	}
}

func TestPackQuoteSend_EncodesSendParam(t *testing.T) {
	t.Parallel()

	sp, err := NewSendParam(30111, receiver, big.NewInt(1_000_000), 1, ModeBus)
	if err != nil {
		t.Fatalf("NewSendParam: %v", err)
	}
	data, err := PackQuoteSend(sp)
	if err != nil {
		t.Fatalf("PackQuoteSend: %v", err)
	}
	want := selector("quoteSend((uint32,bytes32,uint256,uint256,bytes,bytes,bytes),bool)")
	if !bytes.Equal(data[:4], want) {
		t.Fatalf("selector: got %x want %x", data[:4], want)
	}

	args, err := poolABI.Methods["quoteSend"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack inputs: %v", err)
	}
	if len(args) != 2 {
		t.Fatalf("args: got %d", len(args))
	}
	got := *abi.ConvertType(args[0], new(SendParam)).(*SendParam)
	if got.DstEid != 30111 || got.To != AddressToBytes32(receiver) {
		t.Fatalf("decoded send param: %+v", got)
	}
	if got.AmountLD.Cmp(big.NewInt(1_000_000)) != 0 || got.MinAmountLD.Cmp(big.NewInt(990_000)) != 0 {
		t.Fatalf("amounts: %s %s", got.AmountLD, got.MinAmountLD)
	}
	if !bytes.Equal(got.OftCmd, []byte{0x01}) || len(got.ExtraOptions) != 0 || len(got.ComposeMsg) != 0 {
		t.Fatalf("bytes fields: %+v", got)
	}
	if payInLz, _ := args[1].(bool); payInLz {
		t.Fatalf("payInLzToken must be false")
	}
}

func TestUnpackQuoteSend(t *testing.T) {
	t.Parallel()

	if err := initABI(); err != nil {
		t.Fatalf("initABI: %v", err)
	}
	out, err := poolABI.Methods["quoteSend"].Outputs.Pack(MessagingFee{
		NativeFee:  big.NewInt(35_000_000_000_000),
		LzTokenFee: big.NewInt(0),
	})
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	fee, err := UnpackQuoteSend(out)
	if err != nil {
		t.Fatalf("UnpackQuoteSend: %v", err)
	}
	if fee.NativeFee.Cmp(big.NewInt(35_000_000_000_000)) != 0 || fee.LzTokenFee.Sign() != 0 {
		t.Fatalf("fee: %+v", fee)
	}
	if _, err := UnpackQuoteSend([]byte{0x01}); err == nil {
		t.Fatalf("expected error on short data")
	}
}

func TestPackSend(t *testing.T) {
	t.Parallel()

	sp, err := NewSendParam(30184, receiver, big.NewInt(5_000), 1, ModeTaxi)
	if err != nil {
		t.Fatalf("NewSendParam: %v", err)
	}
	fee := MessagingFee{NativeFee: big.NewInt(77), LzTokenFee: big.NewInt(0)}
	data, err := PackSend(sp, fee, receiver)
	if err != nil {
		t.Fatalf("PackSend: %v", err)
	}
	want := selector("send((uint32,bytes32,uint256,uint256,bytes,bytes,bytes),(uint256,uint256),address)")
	if !bytes.Equal(data[:4], want) {
		t.Fatalf("selector: got %x want %x", data[:4], want)
	}
	args, err := poolABI.Methods["send"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack inputs: %v", err)
	}
	gotFee := *abi.ConvertType(args[1], new(MessagingFee)).(*MessagingFee)
	if gotFee.NativeFee.Cmp(big.NewInt(77)) != 0 {
		t.Fatalf("fee: %+v", gotFee)
	}
	if refund, _ := args[2].(common.Address); refund != receiver {
		t.Fatalf("refund: %v", args[2])
	}

	if _, err := PackSend(sp, MessagingFee{}, receiver); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unquoted fee, got %v", err)
	}
	if _, err := PackSend(sp, fee, common.Address{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero refund, got %v", err)
	}
}

func TestNewSendParam_Rejects(t *testing.T) {
	t.Parallel()

	if _, err := NewSendParam(0, receiver, big.NewInt(1), 1, ModeBus); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero eid, got %v", err)
	}
	if _, err := NewSendParam(30110, receiver, nil, 1, ModeBus); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for nil amount, got %v", err)
	}
	if _, err := NewSendParam(30110, receiver, big.NewInt(1), 1, Mode("X")); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}
