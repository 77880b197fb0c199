package eth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/stargate-bridger/bridger/internal/networks"
)

var ErrInvalidProxy = errors.New("eth: invalid proxy")

// Backend is the JSON-RPC surface the client needs from one network.
type Backend interface {
	FeeBackend

	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Dialer opens a Backend for a network.
type Dialer interface {
	Dial(ctx context.Context, net networks.Network) (Backend, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, net networks.Network) (Backend, error)

func (f DialerFunc) Dial(ctx context.Context, net networks.Network) (Backend, error) {
	return f(ctx, net)
}

// RPCDialer dials HTTP JSON-RPC endpoints, optionally through an HTTP proxy given as
// user:pass@host:port (a scheme prefix is accepted too).
type RPCDialer struct {
	Proxy   string
	Timeout time.Duration
}

const defaultRPCTimeout = 30 * time.Second

func (d RPCDialer) Dial(ctx context.Context, net networks.Network) (Backend, error) {
	if strings.TrimSpace(net.RPCURL) == "" {
		return nil, fmt.Errorf("%w: network %s", ErrMissingRPC, net.Name)
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if d.Proxy != "" {
		proxyURL, err := ParseProxy(d.Proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	hc := &http.Client{Timeout: timeout, Transport: transport}

	rc, err := rpc.DialOptions(ctx, net.RPCURL, rpc.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("eth: dial %s: %w", net.Name, err)
	}
	return &rpcBackend{
		Client: ethclient.NewClient(rc),
		rpc:    rc,
		poa:    net.RequiresPOA,
	}, nil
}

// ParseProxy turns a proxy string into an http proxy URL.
func ParseProxy(s string) (*url.URL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidProxy
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		// url errors echo the input, which carries proxy credentials.
		return nil, ErrInvalidProxy
	}
	return u, nil
}

type rpcBackend struct {
	*ethclient.Client
	rpc *rpc.Client
	poa bool
}

type rawBlock struct {
	Number       hexutil.Uint64    `json:"number"`
	BaseFee      *hexutil.Big      `json:"baseFeePerGas"`
	Transactions []json.RawMessage `json:"transactions"`
}

// LatestBlock reads the head block. POA networks carry extra-data the header decoder rejects,
// so their block is read as raw JSON and only the needed fields are decoded.
func (b *rpcBackend) LatestBlock(ctx context.Context) (BlockInfo, error) {
	if b.poa {
		var blk *rawBlock
		if err := b.rpc.CallContext(ctx, &blk, "eth_getBlockByNumber", "latest", false); err != nil {
			return BlockInfo{}, err
		}
		if blk == nil {
			return BlockInfo{}, ethereum.NotFound
		}
		info := BlockInfo{Number: uint64(blk.Number), TxCount: uint(len(blk.Transactions))}
		if blk.BaseFee != nil {
			info.BaseFee = blk.BaseFee.ToInt()
		}
		return info, nil
	}

	header, err := b.HeaderByNumber(ctx, nil)
	if err != nil {
		return BlockInfo{}, err
	}
	var count hexutil.Uint
	if err := b.rpc.CallContext(ctx, &count, "eth_getBlockTransactionCountByNumber", hexutil.EncodeBig(header.Number)); err != nil {
		return BlockInfo{}, err
	}
	return BlockInfo{Number: header.Number.Uint64(), BaseFee: header.BaseFee, TxCount: uint(count)}, nil
}

func (b *rpcBackend) PriorityFeeAt(ctx context.Context, blockNumber uint64, index uint) (*big.Int, error) {
	var tx *struct {
		Tip *hexutil.Big `json:"maxPriorityFeePerGas"`
	}
	err := b.rpc.CallContext(ctx, &tx, "eth_getTransactionByBlockNumberAndIndex", hexutil.EncodeUint64(blockNumber), hexutil.Uint(index))
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ethereum.NotFound
	}
	if tx.Tip == nil {
		return nil, nil
	}
	return tx.Tip.ToInt(), nil
}
