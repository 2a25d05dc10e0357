package balance

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

var (
	testToken  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testWallet = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

type rpcErrorStub struct {
	code int
	msg  string
}

func (e rpcErrorStub) Error() string  { return e.msg }
func (e rpcErrorStub) ErrorCode() int { return e.code }

// callerStub answers decimals() and balanceOf() from canned results.
type callerStub struct {
	decimals    *uint8
	decimalsErr error
	balance     *big.Int
	balanceErr  error
	block       bool

	decimalsCalls int
	balanceCalls  int
}

func (s *callerStub) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	switch {
	case bytes.Equal(call.Data[:4], tokenABI.Methods["decimals"].ID):
		s.decimalsCalls++
		if s.decimalsErr != nil {
			return nil, s.decimalsErr
		}
		if s.decimals == nil {
			return []byte{}, nil
		}
		return tokenABI.Methods["decimals"].Outputs.Pack(*s.decimals)
	case bytes.Equal(call.Data[:4], tokenABI.Methods["balanceOf"].ID):
		s.balanceCalls++
		if s.balanceErr != nil {
			return nil, s.balanceErr
		}
		return tokenABI.Methods["balanceOf"].Outputs.Pack(s.balance)
	}
	return nil, errors.New("unexpected selector")
}

func uint8Ptr(v uint8) *uint8 { return &v }

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("invalid big int %q", s)
	}
	return v
}

func newTestClassifier(caller ContractCaller, timeout time.Duration, kinds *[]Kind) *Classifier {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClassifier(caller, timeout, logger, WithObserver(func(k Kind) {
		if kinds != nil {
			*kinds = append(*kinds, k)
		}
	}))
}

func TestLookup_FungibleTokenNormalizesByDecimals(t *testing.T) {
	caller := &callerStub{decimals: uint8Ptr(18), balance: mustBig(t, "1000000000000000000")}
	var kinds []Kind
	classifier := newTestClassifier(caller, time.Second, &kinds)

	got, err := classifier.Lookup(context.Background(), testToken, testWallet)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}

	fungible, ok := got.(FungibleBalance)
	if !ok {
		t.Fatalf("expected FungibleBalance, got %T", got)
	}
	if fungible.Float64() != 1.0 {
		t.Fatalf("expected normalized balance 1.0, got %v", fungible.Float64())
	}
	if got.String() != "1" {
		t.Fatalf("expected string 1, got %q", got.String())
	}
	if !Evaluate(got, 1) || Evaluate(got, 2) {
		t.Fatal("expected 1.0 tokens to satisfy a minimum of 1 and not 2")
	}
	if len(kinds) != 1 || kinds[0] != KindFungible {
		t.Fatalf("expected one fungible observation, got %v", kinds)
	}
}

func TestLookup_RevertedDecimalsFallsBackToCountable(t *testing.T) {
	tests := []struct {
		name        string
		decimalsErr error
		decimals    *uint8
	}{
		{name: "execution reverted message", decimalsErr: rpcErrorStub{code: -32000, msg: "execution reverted"}},
		{name: "revert code 3", decimalsErr: rpcErrorStub{code: 3, msg: "something"}},
		{name: "invalid opcode", decimalsErr: rpcErrorStub{code: -32015, msg: "VM Exception: invalid opcode"}},
		{name: "empty return data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &callerStub{decimalsErr: tt.decimalsErr, decimals: tt.decimals, balance: big.NewInt(3)}
			classifier := newTestClassifier(caller, time.Second, nil)

			got, err := classifier.Lookup(context.Background(), testToken, testWallet)
			if err != nil {
				t.Fatalf("Lookup returned error: %v", err)
			}
			countable, ok := got.(CountableBalance)
			if !ok {
				t.Fatalf("expected CountableBalance, got %T", got)
			}
			if countable.Count.Cmp(big.NewInt(3)) != 0 {
				t.Fatalf("expected count 3, got %s", countable.Count)
			}
			if !Evaluate(got, 1) {
				t.Fatal("expected 3 items to satisfy a minimum of 1")
			}
		})
	}
}

func TestLookup_CountableReadFailureDegradesToZero(t *testing.T) {
	tests := []struct {
		name   string
		caller *callerStub
	}{
		{
			name: "balanceOf reverts",
			caller: &callerStub{
				decimalsErr: rpcErrorStub{code: 3, msg: "execution reverted"},
				balanceErr:  rpcErrorStub{code: 3, msg: "execution reverted"},
			},
		},
		{
			name: "balanceOf transport failure",
			caller: &callerStub{
				decimalsErr: rpcErrorStub{code: 3, msg: "execution reverted"},
				balanceErr:  errors.New("connection reset by peer"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := newTestClassifier(tt.caller, time.Second, nil)

			got, err := classifier.Lookup(context.Background(), testToken, testWallet)
			if err != nil {
				t.Fatalf("Lookup returned error: %v", err)
			}
			if got.Kind() != KindCountable || got.String() != "0" {
				t.Fatalf("expected countable zero, got %s %s", got.Kind(), got.String())
			}
			if Evaluate(got, 1) {
				t.Fatal("expected unreadable balance to be ineligible")
			}
		})
	}
}

func TestLookup_DecimalsTimeoutIsNotEvidenceOfCountable(t *testing.T) {
	caller := &callerStub{block: true}
	classifier := newTestClassifier(caller, 20*time.Millisecond, nil)

	_, err := classifier.Lookup(context.Background(), testToken, testWallet)
	if !errors.Is(err, ErrChainUnavailable) {
		t.Fatalf("expected ErrChainUnavailable, got %v", err)
	}
}

func TestLookup_DecimalsTransportFailureIsReported(t *testing.T) {
	caller := &callerStub{decimalsErr: rpcErrorStub{code: -32005, msg: "rate limited"}}
	classifier := newTestClassifier(caller, time.Second, nil)

	_, err := classifier.Lookup(context.Background(), testToken, testWallet)
	if !errors.Is(err, ErrChainUnavailable) {
		t.Fatalf("expected ErrChainUnavailable, got %v", err)
	}
	if caller.balanceCalls != 0 {
		t.Fatalf("expected no balance read after an unclassified decimals failure, got %d", caller.balanceCalls)
	}
}

func TestLookup_FungibleBalanceRevertFallsBackToCountable(t *testing.T) {
	caller := &callerStub{decimals: uint8Ptr(6), balanceErr: rpcErrorStub{code: 3, msg: "execution reverted"}}
	classifier := newTestClassifier(caller, time.Second, nil)

	got, err := classifier.Lookup(context.Background(), testToken, testWallet)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if got.Kind() != KindCountable || got.String() != "0" {
		t.Fatalf("expected countable zero, got %s %s", got.Kind(), got.String())
	}
	if caller.balanceCalls != 2 {
		t.Fatalf("expected balanceOf to be retried on the countable path, got %d calls", caller.balanceCalls)
	}
}

func TestLookup_FungibleBalanceTimeoutIsReported(t *testing.T) {
	caller := &callerStub{decimals: uint8Ptr(18), balanceErr: context.DeadlineExceeded}
	classifier := newTestClassifier(caller, time.Second, nil)

	_, err := classifier.Lookup(context.Background(), testToken, testWallet)
	if !errors.Is(err, ErrChainUnavailable) {
		t.Fatalf("expected ErrChainUnavailable, got %v", err)
	}
}
