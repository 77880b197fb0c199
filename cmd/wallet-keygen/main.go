package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/stargate-bridger/bridger/internal/config"
	"github.com/stargate-bridger/bridger/internal/walletkey"
)

type output struct {
	Address  string `json:"address"`
	KeysPath string `json:"keys_path"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("wallet-keygen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	envPath := fs.String("env", ".env", "optional dotenv file; process env wins")
	keysPath := fs.String("keys-path", "", "keys file to append to (default KEYS_REF)")
	count := fs.Int("count", 1, "number of wallets to create")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count <= 0 {
		return fmt.Errorf("--count must be positive, got %d", *count)
	}

	path := strings.TrimSpace(*keysPath)
	if path == "" {
		cfg, err := config.LoadFromEnv(*envPath)
		if err != nil {
			return err
		}
		if cfg.KeysProvider != "file" {
			return fmt.Errorf("KEYS_PROVIDER is %q; pass --keys-path to write a local file", cfg.KeysProvider)
		}
		path = cfg.KeysRef
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	for i := 0; i < *count; i++ {
		w, err := walletkey.Generate()
		if err != nil {
			return err
		}
		if err := walletkey.AppendToFile(path, w); err != nil {
			return err
		}
		if err := enc.Encode(output{Address: w.Address(), KeysPath: path}); err != nil {
			return err
		}
	}
	return nil
}
