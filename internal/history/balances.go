package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"

	"github.com/stargate-bridger/bridger/internal/eth"
	"github.com/stargate-bridger/bridger/internal/networks"
)

// BalanceSource looks up one wallet's native balance on any network.
type BalanceSource interface {
	Address() common.Address
	NativeBalance(ctx context.Context, net *networks.Network) (*big.Int, error)
}

// BalanceRow holds one wallet's balances in network order; nil marks a failed lookup.
type BalanceRow struct {
	Address  common.Address
	Balances []*big.Int
}

// CollectBalances queries every wallet on every network. Lookup failures are logged and kept
// as nil cells; only context cancellation aborts.
func CollectBalances(ctx context.Context, wallets []BalanceSource, nets []networks.Network, log *slog.Logger) ([]BalanceRow, error) {
	rows := make([]BalanceRow, 0, len(wallets))
	for i, w := range wallets {
		row := BalanceRow{Address: w.Address(), Balances: make([]*big.Int, len(nets))}
		for j := range nets {
			if err := ctx.Err(); err != nil {
				return rows, err
			}
			bal, err := w.NativeBalance(ctx, &nets[j])
			if err != nil {
				log.Error("balance lookup", "wallet", row.Address, "network", nets[j].Name, "err", err)
				continue
			}
			row.Balances[j] = bal
		}
		rows = append(rows, row)
		log.Info("processed wallet", "wallet", i+1, "total", len(wallets))
	}
	return rows, nil
}

// RenderBalances writes a wallet x network balance table in ether.
func RenderBalances(w io.Writer, nets []networks.Network, rows []BalanceRow) error {
	header := make([]any, 0, len(nets)+1)
	header = append(header, "Wallet")
	for _, n := range nets {
		header = append(header, n.Name)
	}
	table := tablewriter.NewWriter(w)
	table.Header(header...)
	for _, row := range rows {
		cells := make([]string, 0, len(nets)+1)
		cells = append(cells, Shorten(row.Address.Hex(), 6, 4))
		for _, b := range row.Balances {
			if b == nil {
				cells = append(cells, "Error")
				continue
			}
			cells = append(cells, fmt.Sprintf("%.6f", eth.WeiToEther(b)))
		}
		if err := table.Append(cells); err != nil {
			return fmt.Errorf("history: append balance row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("history: render balances: %w", err)
	}
	return nil
}
