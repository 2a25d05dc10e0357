/**
 * @description
 * Client for the JSON-RPC endpoint of the chain that hosts the gating tokens.
 */
package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps an ethclient connection and remembers the chain it talks to.
type Client struct {
	*ethclient.Client
	chainID *big.Int
	timeout time.Duration
}

// Dial connects to rpcURL and confirms the endpoint answers eth_chainId within timeout.
func Dial(ctx context.Context, rpcURL string, timeout time.Duration) (*Client, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ec, err := ethclient.DialContext(dialCtx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	chainID, err := ec.ChainID(dialCtx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	return &Client{Client: ec, chainID: chainID, timeout: timeout}, nil
}

// ChainIDValue returns the chain ID reported at dial time.
func (c *Client) ChainIDValue() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// HasCode reports whether a contract is deployed at address.
func (c *Client) HasCode(ctx context.Context, address common.Address) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	code, err := c.CodeAt(callCtx, address, nil)
	if err != nil {
		return false, fmt.Errorf("failed to read code at %s: %w", address.Hex(), err)
	}
	return len(code) > 0, nil
}
