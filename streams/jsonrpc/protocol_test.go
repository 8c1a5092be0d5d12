package jsonrpc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/distributor"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/token"
)

type wireError struct {
	code int
	msg  string
}

func (e wireError) Error() string  { return e.msg }
func (e wireError) ErrorCode() int { return e.code }

func TestToRPCError(t *testing.T) {
	assert.NoError(t, ToRPCError(nil))

	plain := errors.New("disk full")
	assert.Same(t, plain, ToRPCError(plain))

	err := ToRPCError(fmt.Errorf("%w: pool 0 rewards 0xb1", distributor.ErrUnmatchedRewardToken))
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32102, rpcErr.ErrorCode())
	assert.ErrorIs(t, err, distributor.ErrUnmatchedRewardToken)

	err = ToRPCError(fmt.Errorf("%w: token 0xb1", token.ErrInsufficientBalance))
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32301, rpcErr.ErrorCode())
}

func TestFromRPCError(t *testing.T) {
	assert.NoError(t, FromRPCError(nil))

	err := FromRPCError(wireError{code: -32106, msg: "distributor: already used signature"})
	assert.ErrorIs(t, err, distributor.ErrAlreadyUsedSignature)
	assert.Equal(t, "distributor: already used signature", err.Error())

	unknown := wireError{code: -32000, msg: "boom"}
	assert.Equal(t, error(unknown), FromRPCError(unknown))

	plain := errors.New("connection refused")
	assert.Same(t, plain, FromRPCError(plain))
}
