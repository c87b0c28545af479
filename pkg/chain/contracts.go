// Package chain answers questions about on-chain accounts.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/StrathCole/price-engine/pkg/price"
)

// CodeReader reads deployed bytecode. *ethclient.Client satisfies it.
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// CodeChecker reports an address as a contract when it holds code at the latest block.
type CodeChecker struct {
	reader  CodeReader
	timeout time.Duration
}

var _ price.ContractChecker = (*CodeChecker)(nil)

// NewCodeChecker creates a checker over reader. A zero timeout disables the per-call deadline.
func NewCodeChecker(reader CodeReader, timeout time.Duration) *CodeChecker {
	return &CodeChecker{reader: reader, timeout: timeout}
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("%w", ErrRPCURLRequired)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return client, nil
}

// IsContract implements price.ContractChecker.
func (c *CodeChecker) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	code, err := c.reader.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCodeLookupFailed, addr.Hex(), err)
	}
	return len(code) > 0, nil
}

// StaticChecker treats a fixed set of addresses as contracts. It serves deployments
// without an RPC endpoint.
type StaticChecker struct {
	contracts map[common.Address]struct{}
}

var _ price.ContractChecker = (*StaticChecker)(nil)

// NewStaticChecker creates a checker that knows only addrs.
func NewStaticChecker(addrs []common.Address) *StaticChecker {
	s := &StaticChecker{contracts: make(map[common.Address]struct{}, len(addrs))}
	for _, a := range addrs {
		s.contracts[a] = struct{}{}
	}
	return s
}

// IsContract implements price.ContractChecker.
func (s *StaticChecker) IsContract(_ context.Context, addr common.Address) (bool, error) {
	_, ok := s.contracts[addr]
	return ok, nil
}
