package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	code map[common.Address][]byte
	err  error
}

func (r *fakeReader) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if blockNumber != nil {
		return nil, errors.New("expected latest block")
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("expected a deadline")
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.code[account], nil
}

func TestCodeChecker_IsContract(t *testing.T) {
	token := common.HexToAddress("0x64aa3364F17a4D01c6f1751Fd97C2BD3D7e7f1D5")
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000e1")

	checker := NewCodeChecker(&fakeReader{code: map[common.Address][]byte{token: {0x60, 0x80}}}, time.Second)

	ok, err := checker.IsContract(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.IsContract(context.Background(), wallet)
	require.NoError(t, err)
	assert.False(t, ok)

	failing := NewCodeChecker(&fakeReader{err: errors.New("connection refused")}, time.Second)
	_, err = failing.IsContract(context.Background(), token)
	assert.ErrorIs(t, err, ErrCodeLookupFailed)
}

func TestStaticChecker(t *testing.T) {
	known := common.HexToAddress("0x01")
	checker := NewStaticChecker([]common.Address{known})

	ok, err := checker.IsContract(context.Background(), known)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.IsContract(context.Background(), common.HexToAddress("0x02"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDial_RequiresURL(t *testing.T) {
	_, err := Dial(context.Background(), "")
	assert.ErrorIs(t, err, ErrRPCURLRequired)
}
