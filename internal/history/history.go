package history

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"

	"github.com/stargate-bridger/bridger/internal/ledger"
)

// DefaultLimit is how many records are shown per wallet.
const DefaultLimit = 20

// Wallet is the history of one address.
type Wallet struct {
	Address string
	Records []ledger.Record
}

// Totals counts all records; amounts and fees only from successful ones.
type Totals struct {
	Transactions int
	Successful   int
	BridgedETH   float64
	FeesUSD      float64
}

func (t *Totals) add(o Totals) {
	t.Transactions += o.Transactions
	t.Successful += o.Successful
	t.BridgedETH += o.BridgedETH
	t.FeesUSD += o.FeesUSD
}

func Summarize(records []ledger.Record) Totals {
	t := Totals{Transactions: len(records)}
	for _, r := range records {
		if !r.Success {
			continue
		}
		t.Successful++
		t.BridgedETH += r.Amount
		t.FeesUSD += r.TotalFeeUSD
	}
	return t
}

// Newest returns up to limit records, newest first. The input is not modified.
func Newest(records []ledger.Record, limit int) []ledger.Record {
	out := append([]ledger.Record(nil), records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Render writes one table per wallet with records, plus global totals when more than one
// wallet is shown. It reports whether anything was printed.
func Render(w io.Writer, wallets []Wallet, limit int) (bool, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var global Totals
	shown := 0
	for _, wh := range wallets {
		if len(wh.Records) == 0 {
			continue
		}
		shown++
		totals := Summarize(wh.Records)
		global.add(totals)
		if err := renderWallet(w, wh, totals, limit); err != nil {
			return shown > 0, err
		}
	}
	if shown > 1 {
		fmt.Fprintf(w, "\nGLOBAL STATISTICS\n")
		fmt.Fprintf(w, "Total Wallets: %d\n", shown)
		fmt.Fprintf(w, "Total Successful Transactions: %d\n", global.Successful)
		fmt.Fprintf(w, "Total ETH Bridged: %s\n", formatETH(global.BridgedETH))
		fmt.Fprintf(w, "Total Fees Paid: %s\n", formatUSD(global.FeesUSD))
	}
	return shown > 0, nil
}

func renderWallet(w io.Writer, wh Wallet, totals Totals, limit int) error {
	fmt.Fprintf(w, "\nWallet: %s\n", wh.Address)
	fmt.Fprintf(w, "Total Transactions: %d (%d successful)\n", totals.Transactions, totals.Successful)
	fmt.Fprintf(w, "Total Amount Bridged: %s\n", formatETH(totals.BridgedETH))
	fmt.Fprintf(w, "Total Fees Paid: %s\n", formatUSD(totals.FeesUSD))

	table := tablewriter.NewWriter(w)
	table.Header("Date", "From", "To", "Amount", "Mode", "Fee (USD)", "Status", "Tx Hash")
	for _, r := range Newest(wh.Records, limit) {
		status, fee := "Failed", "N/A"
		if r.Success {
			status, fee = "Success", formatUSD(r.TotalFeeUSD)
		}
		if err := table.Append([]string{
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			orNA(r.FromChain),
			orNA(r.ToChain),
			formatETH(r.Amount),
			orNA(r.Mode),
			fee,
			status,
			Shorten(r.TxHash, 8, 6),
		}); err != nil {
			return fmt.Errorf("history: append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("history: render: %w", err)
	}
	if len(wh.Records) > limit {
		fmt.Fprintf(w, "Showing %d of %d transactions (newest first)\n", limit, len(wh.Records))
	}
	return nil
}

// Shorten keeps head and tail characters of s around an ellipsis.
func Shorten(s string, head, tail int) string {
	if s == "" {
		return "N/A"
	}
	if len(s) <= head+tail {
		return s
	}
	return s[:head] + "..." + s[len(s)-tail:]
}

func formatETH(v float64) string {
	if v == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.6f ETH", v)
}

func formatUSD(v float64) string {
	if v == 0 {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", v)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
