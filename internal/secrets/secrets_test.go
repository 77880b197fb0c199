package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type fakeAWSClient struct {
	out  *secretsmanager.GetSecretValueOutput
	err  error
	asks []string
}

func (c *fakeAWSClient) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	c.asks = append(c.asks, *in.SecretId)
	if c.err != nil {
		return nil, c.err
	}
	return c.out, nil
}

func TestEnvProvider(t *testing.T) {
	t.Parallel()

	p := &EnvProvider{lookup: func(k string) (string, bool) {
		if k == "BRIDGER_KEYS" {
			return "  0xabc  ", true
		}
		return "", false
	}}
	got, err := p.Get(context.Background(), "BRIDGER_KEYS")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "0xabc" {
		t.Fatalf("value: got %q want %q", got, "0xabc")
	}
	if _, err := p.Get(context.Background(), "MISSING"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: got %v want %v", err, ErrNotFound)
	}
	if _, err := p.Get(context.Background(), " "); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("empty key: got %v want %v", err, ErrInvalidConfig)
	}
}

func TestFileProvider(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "private_keys.txt")
	if err := os.WriteFile(path, []byte("# wallets\n0x01\n\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	p := NewFile()
	got, err := p.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "# wallets\n0x01" {
		t.Fatalf("value: got %q", got)
	}
	if _, err := p.Get(context.Background(), filepath.Join(dir, "nope.txt")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: got %v want %v", err, ErrNotFound)
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := p.Get(context.Background(), empty); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty: got %v want %v", err, ErrNotFound)
	}
}

func TestAWSProvider(t *testing.T) {
	t.Parallel()

	client := &fakeAWSClient{out: &secretsmanager.GetSecretValueOutput{SecretString: strPtr(" 0xkey ")}}
	p, err := NewAWSWithClient(client)
	if err != nil {
		t.Fatalf("NewAWSWithClient: %v", err)
	}
	got, err := p.Get(context.Background(), "bridger/wallets")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "0xkey" {
		t.Fatalf("secret: got %q want %q", got, "0xkey")
	}
	if len(client.asks) != 1 || client.asks[0] != "bridger/wallets" {
		t.Fatalf("secret ids: got %v", client.asks)
	}
}

func TestAWSProvider_BinaryAndEmpty(t *testing.T) {
	t.Parallel()

	p, _ := NewAWSWithClient(&fakeAWSClient{out: &secretsmanager.GetSecretValueOutput{SecretBinary: []byte("0xbin\n")}})
	got, err := p.Get(context.Background(), "id")
	if err != nil || got != "0xbin" {
		t.Fatalf("binary: got %q, %v", got, err)
	}

	p, _ = NewAWSWithClient(&fakeAWSClient{out: &secretsmanager.GetSecretValueOutput{}})
	if _, err := p.Get(context.Background(), "id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty: got %v want %v", err, ErrNotFound)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if p, err := New(context.Background(), ""); err != nil {
		t.Fatalf("default: %v", err)
	} else if _, ok := p.(*FileProvider); !ok {
		t.Fatalf("default: got %T want *FileProvider", p)
	}
	if p, err := New(context.Background(), "ENV"); err != nil {
		t.Fatalf("env: %v", err)
	} else if _, ok := p.(*EnvProvider); !ok {
		t.Fatalf("env: got %T want *EnvProvider", p)
	}
	if _, err := New(context.Background(), "vault"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("unknown: got %v want %v", err, ErrInvalidConfig)
	}
}

func strPtr(v string) *string { return &v }
