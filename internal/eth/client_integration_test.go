//go:build integration

package eth

import (
	"context"
	"math/big"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stargate-bridger/bridger/internal/networks"
)

func TestClient_AnvilSubmitAndConfirm(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available")
	}

	// Pin the image for deterministic integration tests.
	const anvilImage = "ghcr.io/foundry-rs/foundry@sha256:043752653d5be351c71709091b3db97c4421c907eb40ea294195e7f532aadf46"

	port := mustFreePort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	containerID := dockerRunAnvil(t, ctx, anvilImage, port)
	t.Cleanup(func() { _ = exec.Command("docker", "rm", "-f", containerID).Run() })

	network := networks.Network{
		Name:        "Anvil",
		ChainID:     31337,
		Symbol:      "ETH",
		ExplorerURL: "http://explorer.invalid/",
		EIP1559:     true,
		RPCURL:      "http://127.0.0.1:" + port,
		EndpointID:  1,
	}
	waitRPC(t, ctx, network.RPCURL)

	// Anvil default funded dev key.
	signer, err := NewLocalSignerFromHex("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatalf("NewLocalSignerFromHex: %v", err)
	}
	c, err := NewClient(ClientConfig{
		Network:             network,
		Signer:              signer,
		Dialer:              RPCDialer{},
		ReceiptPollInterval: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	before, err := c.NativeBalance(ctx, nil)
	if err != nil {
		t.Fatalf("NativeBalance: %v", err)
	}
	if before.Sign() <= 0 {
		t.Fatalf("expected funded dev account, got %s", before)
	}

	params, txHash, err := c.SubmitTransaction(ctx, TxRequest{
		To:    common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
		Value: big.NewInt(1),
	})
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	if !params.Dynamic() || params.Gas == 0 {
		t.Fatalf("unexpected params: %+v", params)
	}
	receipt, err := c.WaitForConfirmation(ctx, txHash)
	if err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}
	if receipt.Status != 1 {
		t.Fatalf("receipt: %+v", receipt)
	}
}

func mustFreePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return strings.TrimPrefix(ln.Addr().String(), "127.0.0.1:")
}

func dockerRunAnvil(t *testing.T, ctx context.Context, image string, hostPort string) string {
	t.Helper()

	cmd := exec.CommandContext(ctx, "docker",
		"run",
		"--rm",
		"-d",
		"-e", "ANVIL_IP_ADDR=0.0.0.0",
		"-p", "127.0.0.1:"+hostPort+":8545",
		image,
		"anvil",
		"--port", "8545",
		"--chain-id", "31337",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("docker run anvil: %v: %s", err, string(out))
	}
	return strings.TrimSpace(string(out))
}

func waitRPC(t *testing.T, ctx context.Context, url string) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		cctx, cancel := context.WithTimeout(ctx, 1*time.Second)
		c, err := ethclient.DialContext(cctx, url)
		if err == nil {
			// DialContext does not guarantee the RPC is responsive; perform a real call.
			_, err = c.ChainID(cctx)
			c.Close()
			if err == nil {
				cancel()
				return
			}
		}
		cancel()
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("rpc not ready: %s", url)
}
