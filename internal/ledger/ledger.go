package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("ledger: not found")

// Record is one bridge attempt. Amounts and fees are in ether unless the field says otherwise.
type Record struct {
	ID              string    `json:"id"`
	WalletAddress   string    `json:"wallet_address"`
	FromChain       string    `json:"from_chain"`
	ToChain         string    `json:"to_chain"`
	Amount          float64   `json:"amount"`
	Mode            string    `json:"mode"`
	GasPriceGwei    float64   `json:"gas_price_gwei"`
	GasFeeETH       float64   `json:"gas_fee_eth"`
	BridgeFeeETH    float64   `json:"bridge_fee_eth"`
	TotalFeeETH     float64   `json:"total_fee_eth"`
	ETHPriceUSD     float64   `json:"eth_price_usd"`
	TotalFeeUSD     float64   `json:"total_fee_usd"`
	MessageFeeWei   string    `json:"message_fee_wei"`
	Success         bool      `json:"success"`
	TxHash          string    `json:"tx_hash,omitempty"`
	Error           string    `json:"error,omitempty"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration_seconds"`
}

type Stats struct {
	TotalTransactions int       `json:"total_transactions"`
	TotalValueBridged float64   `json:"total_value_bridged"`
	LastUpdated       time.Time `json:"last_updated"`
}

type document struct {
	Transactions map[string][]Record `json:"transactions"`
	Stats        Stats               `json:"stats"`
}

// Sink receives every appended record after the local file is written.
type Sink interface {
	Record(ctx context.Context, wallet string, rec Record) error
}

// Archive keeps an off-host copy of the ledger snapshot.
type Archive interface {
	Put(ctx context.Context, key string, payload []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

const DefaultArchiveKey = "ledger/latest.json"

type Options struct {
	Path string

	Archive    Archive
	ArchiveKey string
	Sinks      []Sink

	Now   func() time.Time
	NewID func() string
	Log   *slog.Logger
}

// Ledger is the persistent bridge history. It is owned by a single goroutine.
type Ledger struct {
	opts Options
	doc  document
}

// Open loads the ledger at opts.Path. A missing file is restored from the archive when one is
// configured; an unreadable or corrupt file starts an empty ledger. Open never fails.
func Open(ctx context.Context, opts Options) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ArchiveKey == "" {
		opts.ArchiveKey = DefaultArchiveKey
	}

	l := &Ledger{opts: opts, doc: emptyDocument(opts.Now())}

	raw, err := os.ReadFile(opts.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if opts.Archive != nil {
			if err := l.RestoreFromArchive(ctx); err != nil {
				opts.Log.Info("no archived ledger restored", "path", opts.Path, "err", err)
			}
		}
		return l
	case err != nil:
		opts.Log.Warn("ledger unreadable, starting fresh", "path", opts.Path, "err", err)
		return l
	}

	doc, err := decode(raw)
	if err != nil {
		opts.Log.Warn("ledger corrupt, starting fresh", "path", opts.Path, "err", err)
		return l
	}
	l.doc = doc
	return l
}

func emptyDocument(now time.Time) document {
	return document{
		Transactions: make(map[string][]Record),
		Stats:        Stats{LastUpdated: now},
	}
}

func decode(raw []byte) (document, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}, err
	}
	if doc.Transactions == nil {
		doc.Transactions = make(map[string][]Record)
	}
	return doc, nil
}

// RestoreFromArchive replaces the in-memory ledger with the archived snapshot and writes it locally.
func (l *Ledger) RestoreFromArchive(ctx context.Context) error {
	if l.opts.Archive == nil {
		return fmt.Errorf("%w: no archive configured", ErrNotFound)
	}
	raw, err := l.opts.Archive.Get(ctx, l.opts.ArchiveKey)
	if err != nil {
		return fmt.Errorf("ledger: get archive %s: %w", l.opts.ArchiveKey, err)
	}
	doc, err := decode(raw)
	if err != nil {
		return fmt.Errorf("ledger: decode archive %s: %w", l.opts.ArchiveKey, err)
	}
	l.doc = doc
	if _, err := l.write(); err != nil {
		return err
	}
	l.opts.Log.Info("ledger restored from archive", "key", l.opts.ArchiveKey, "records", l.doc.Stats.TotalTransactions)
	return nil
}

// Append records rec for wallet and persists the whole ledger. A zero timestamp is set to now and
// an empty id is generated. It reports whether the local file was written; mirror failures are
// logged only.
func (l *Ledger) Append(ctx context.Context, wallet string, rec Record) bool {
	now := l.opts.Now()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	if rec.ID == "" {
		rec.ID = l.opts.NewID()
	}
	if rec.WalletAddress == "" {
		rec.WalletAddress = wallet
	}

	l.doc.Transactions[wallet] = append(l.doc.Transactions[wallet], rec)
	l.doc.Stats.TotalTransactions++
	if rec.Success {
		l.doc.Stats.TotalValueBridged += rec.Amount
	}
	l.doc.Stats.LastUpdated = now

	snapshot, err := l.write()
	if err != nil {
		l.opts.Log.Error("persist ledger", "path", l.opts.Path, "wallet", wallet, "err", err)
		return false
	}

	if l.opts.Archive != nil {
		if err := l.opts.Archive.Put(ctx, l.opts.ArchiveKey, snapshot); err != nil {
			l.opts.Log.Warn("archive ledger", "key", l.opts.ArchiveKey, "err", err)
		}
	}
	for _, s := range l.opts.Sinks {
		if err := s.Record(ctx, wallet, rec); err != nil {
			l.opts.Log.Warn("mirror ledger record", "sink", fmt.Sprintf("%T", s), "id", rec.ID, "err", err)
		}
	}
	return true
}

// write rewrites the ledger file through a temp file in the same directory and returns the bytes written.
func (l *Ledger) write() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l.doc); err != nil {
		return nil, fmt.Errorf("ledger: encode: %w", err)
	}
	if l.opts.Path == "" {
		return nil, errors.New("ledger: empty path")
	}

	dir := filepath.Dir(l.opts.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return nil, fmt.Errorf("ledger: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("ledger: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("ledger: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("ledger: close temp: %w", err)
	}
	if err := os.Rename(tmpName, l.opts.Path); err != nil {
		return nil, fmt.Errorf("ledger: rename: %w", err)
	}
	return buf.Bytes(), nil
}

// Records returns the wallet's records in append order.
func (l *Ledger) Records(wallet string) []Record {
	recs := l.doc.Transactions[wallet]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}

// All returns every wallet's records.
func (l *Ledger) All() map[string][]Record {
	out := make(map[string][]Record, len(l.doc.Transactions))
	for w, recs := range l.doc.Transactions {
		cp := make([]Record, len(recs))
		copy(cp, recs)
		out[w] = cp
	}
	return out
}

// Wallets returns the wallets with at least one record, sorted.
func (l *Ledger) Wallets() []string {
	out := make([]string, 0, len(l.doc.Transactions))
	for w, recs := range l.doc.Transactions {
		if len(recs) > 0 {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

func (l *Ledger) Stats() Stats { return l.doc.Stats }
