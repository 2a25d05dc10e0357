/**
 * @description
 * Balance classifier. Token contracts do not declare whether they are divisible or
 * countable, so the classifier calls decimals() first: an answer means a fungible token,
 * an explicit revert means a countable one. A call that simply did not finish (timeout,
 * transport failure) is not evidence either way and is reported as an error.
 *
 * Known limitation: nonstandard contracts that expose decimals() on a countable token, or
 * hide it on a divisible one, are misclassified.
 */
package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// Works for both ERC-20 and ERC-721 balanceOf.
const tokenABIJSON = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var tokenABI = mustParseABI(tokenABIJSON)

var (
	// ErrChainUnavailable is returned when a balance read could not be completed and the
	// outcome cannot be classified.
	ErrChainUnavailable = errors.New("chain call did not complete")

	errEmptyResult      = errors.New("contract call returned no data")
	errUnexpectedOutput = errors.New("contract call returned unexpected data")
)

// ContractCaller executes read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Classifier reads normalized balances of arbitrary token contracts.
type Classifier struct {
	caller      ContractCaller
	callTimeout time.Duration
	logger      *slog.Logger
	observe     func(Kind)
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithObserver registers a callback invoked with the kind of every completed balance read.
func WithObserver(observe func(Kind)) Option {
	return func(c *Classifier) {
		c.observe = observe
	}
}

// NewClassifier creates a classifier bounding each contract call by callTimeout.
func NewClassifier(caller ContractCaller, callTimeout time.Duration, logger *slog.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{
		caller:      caller,
		callTimeout: callTimeout,
		logger:      logger,
		observe:     func(Kind) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the balance of wallet in the token contract at tokenAddress.
func (c *Classifier) Lookup(ctx context.Context, tokenAddress, wallet common.Address) (Balance, error) {
	logger := c.logger.With("token_address", tokenAddress.Hex(), "wallet", wallet.Hex())

	decimals, err := c.decimals(ctx, tokenAddress)
	switch {
	case err == nil:
		logger.Debug("token exposes decimals; reading fungible balance", "decimals", decimals)
		raw, balErr := c.balanceOf(ctx, tokenAddress, wallet)
		if balErr == nil {
			b := FungibleBalance{Raw: raw, Decimals: decimals}
			c.observe(KindFungible)
			return b, nil
		}
		if !isRevert(balErr) {
			return nil, fmt.Errorf("%w: balanceOf: %v", ErrChainUnavailable, balErr)
		}
		logger.Warn("fungible balance read reverted; falling back to countable read", "error", balErr)
	case isRevert(err):
		logger.Info("decimals() rejected; treating token as countable", "error", err)
	default:
		return nil, fmt.Errorf("%w: decimals: %v", ErrChainUnavailable, err)
	}

	count, err := c.balanceOf(ctx, tokenAddress, wallet)
	if err != nil {
		logger.Error("countable balance read failed; treating balance as zero", "error", err)
		count = new(big.Int)
	}
	c.observe(KindCountable)
	return CountableBalance{Count: count}, nil
}

func (c *Classifier) decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := c.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals is %T", errUnexpectedOutput, out[0])
	}
	return decimals, nil
}

func (c *Classifier) balanceOf(ctx context.Context, token, wallet common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, "balanceOf", wallet)
	if err != nil {
		return nil, err
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: balanceOf is %T", errUnexpectedOutput, out[0])
	}
	return amount, nil
}

func (c *Classifier) call(ctx context.Context, token common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := tokenABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errEmptyResult
	}

	out, err := tokenABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnexpectedOutput, err)
	}
	if len(out) == 0 {
		return nil, errUnexpectedOutput
	}
	return out, nil
}

// isRevert reports whether err is the contract saying no, as opposed to the call not finishing.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, errEmptyResult) || errors.Is(err, errUnexpectedOutput) {
		return true
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		// 3 is the execution-reverted code geth attaches when revert data is present.
		if rpcErr.ErrorCode() == 3 {
			return true
		}
		msg := strings.ToLower(rpcErr.Error())
		return strings.Contains(msg, "revert") || strings.Contains(msg, "invalid opcode")
	}
	return false
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid token ABI: %v", err))
	}
	return parsed
}
