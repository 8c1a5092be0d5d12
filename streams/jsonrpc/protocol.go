// Package jsonrpc holds the wire contract shared by the rewards JSON-RPC
// server and client: namespaces, the subscription envelope and error codes.
package jsonrpc

import (
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/distributor"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/oracle"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/poolregistry"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/token"
)

const (
	RewardsNamespace  = "rewards"
	RegistryNamespace = "registry"
	TokenNamespace    = "token"

	// EventsSubscriptionMethod is subscribed to with rewards_subscribe("events").
	EventsSubscriptionMethod = "events"
)

// SubscriptionEvent is the wrapper object sent for every event notification.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// Error is a domain error carrying a stable JSON-RPC error code.
type Error struct {
	code int
	err  error
}

func (e *Error) Error() string  { return e.err.Error() }
func (e *Error) ErrorCode() int { return e.code }
func (e *Error) Unwrap() error  { return e.err }

var _ rpc.Error = (*Error)(nil)

// Server-defined error codes. Authorization errors sit in -320xx, claim
// validation in -321xx, registry in -322xx, token in -323xx and oracle in -324xx.
var errorCodes = []struct {
	code int
	err  error
}{
	{-32001, distributor.ErrUnauthorized},
	{-32002, distributor.ErrPaused},
	{-32101, distributor.ErrInvalidPid},
	{-32102, distributor.ErrUnmatchedRewardToken},
	{-32103, distributor.ErrInvalidClaimIndex},
	{-32104, distributor.ErrInvalidInterval},
	{-32105, distributor.ErrInvalidSigner},
	{-32106, distributor.ErrAlreadyUsedSignature},
	{-32107, distributor.ErrNilAmount},
	{-32201, poolregistry.ErrInvalidIndex},
	{-32202, poolregistry.ErrPoolNotFound},
	{-32301, token.ErrInsufficientBalance},
	{-32302, token.ErrInsufficientAllowance},
	{-32303, token.ErrUnknownToken},
	{-32401, oracle.ErrInvalidPid},
}

// ToRPCError attaches the error code of the first known sentinel err wraps.
// Errors without a known sentinel are returned as is.
func ToRPCError(err error) error {
	if err == nil {
		return nil
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return &Error{code: ec.code, err: err}
		}
	}
	return err
}

// FromRPCError rewraps an error returned by a remote call so that errors.Is
// matches the sentinel its code stands for.
func FromRPCError(err error) error {
	var rpcErr rpc.Error
	if err == nil || !errors.As(err, &rpcErr) {
		return err
	}
	for _, ec := range errorCodes {
		if ec.code == rpcErr.ErrorCode() {
			return &Error{code: ec.code, err: remoteError{sentinel: ec.err, msg: err.Error()}}
		}
	}
	return err
}

// remoteError keeps the server's message while matching the local sentinel.
type remoteError struct {
	sentinel error
	msg      string
}

func (e remoteError) Error() string { return e.msg }
func (e remoteError) Unwrap() error { return e.sentinel }
