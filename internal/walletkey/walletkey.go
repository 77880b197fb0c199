package walletkey

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidPath = errors.New("walletkey: invalid path")

// Wallet is a freshly generated signing key.
type Wallet struct {
	Key *ecdsa.PrivateKey
}

func Generate() (Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return Wallet{}, fmt.Errorf("walletkey: generate key: %w", err)
	}
	return Wallet{Key: key}, nil
}

// Address is the checksummed address of the key.
func (w Wallet) Address() string {
	return crypto.PubkeyToAddress(w.Key.PublicKey).Hex()
}

// PrivateKeyHex is the 0x-prefixed hex encoding accepted by the keys file.
func (w Wallet) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(w.Key))
}

// AppendToFile adds the key as a new line to the keys file at path, creating the file
// (mode 0600) and its directory when missing.
func AppendToFile(path string, w Wallet) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return ErrInvalidPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("walletkey: create key dir: %w", err)
	}

	prefix := ""
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
			prefix = "\n"
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("walletkey: read %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("walletkey: open %s: %w", path, err)
	}
	if _, err := f.WriteString(prefix + w.PrivateKeyHex() + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("walletkey: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("walletkey: sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("walletkey: close %s: %w", path, err)
	}
	return nil
}
