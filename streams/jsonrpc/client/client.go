package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/distributor"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/poolregistry"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/token"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/streams/jsonrpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DecoderFunc turns an event payload into its concrete type.
type DecoderFunc func(kind events.Kind, data json.RawMessage) (any, error)

// Config holds the configuration for the client.
type Config struct {
	// URL of the server. Event streaming needs a ws:// or wss:// URL.
	URL          string
	Logger       Logger
	BufferSize   uint
	EventDecoder DecoderFunc
	// Subscribe starts the background event stream.
	Subscribe bool
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Subscribe && c.EventDecoder == nil {
		return errors.New("config: EventDecoder is required to subscribe")
	}
	return nil
}

// Client calls a rewards server and, optionally, follows its event stream.
type Client struct {
	rpc          *rpc.Client
	eventDecoder DecoderFunc
	eventCh      chan events.Event
	errCh        chan error
	logger       Logger
}

// NewClient dials the server and, if configured, starts the subscription
// manager.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", cfg.URL, err)
	}

	client := &Client{
		rpc:          rpcClient,
		eventDecoder: cfg.EventDecoder,
		eventCh:      make(chan events.Event, cfg.BufferSize),
		errCh:        make(chan error, 1),
		logger:       cfg.Logger,
	}

	if cfg.Subscribe {
		go client.run(ctx, cfg.URL)
	} else {
		close(client.eventCh)
		close(client.errCh)
	}
	return client, nil
}

// Close releases the call connection. The event stream stops with its context.
func (c *Client) Close() {
	c.rpc.Close()
}

// Events returns a read-only channel of decoded server events.
func (c *Client) Events() <-chan events.Event {
	return c.eventCh
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the entire lifecycle of the event stream, including reconnection.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.eventCh)
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			c.logger.Info("Context canceled during subscription, shutting down.", "error", err)
			return
		case errors.Is(err, rpc.ErrNotificationsUnsupported):
			c.errCh <- fmt.Errorf("client: %s cannot stream events: %w", url, err)
			return
		case err != nil:
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// subscribeAndProcess handles the subscription and processing of messages.
func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, jsonrpc.RewardsNamespace, rawCh, jsonrpc.EventsSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for events...")
	for {
		select {
		case rawData := <-rawCh:
			ev, ok := c.processMessage(rawData)
			if !ok {
				continue
			}
			select {
			case c.eventCh <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// processMessage unwraps and decodes one notification.
func (c *Client) processMessage(rawData json.RawMessage) (events.Event, bool) {
	var wrapped jsonrpc.SubscriptionEvent
	if err := json.Unmarshal(rawData, &wrapped); err != nil {
		c.logger.Error("Failed to unmarshal subscription event", "error", err)
		return events.Event{}, false
	}

	kind := events.Kind(wrapped.Type)
	data, err := c.eventDecoder(kind, wrapped.Payload)
	if err != nil {
		c.logger.Warn("Failed to decode event payload", "type", wrapped.Type, "error", err)
		return events.Event{}, false
	}

	sentAt := time.Unix(0, wrapped.SentAt)
	c.logger.Debug("Received event",
		"type", wrapped.Type,
		"transport_ms", time.Since(sentAt).Round(time.Millisecond).Milliseconds(),
	)
	return events.Event{Kind: kind, Data: data, At: sentAt}, true
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	return jsonrpc.FromRPCError(c.rpc.CallContext(ctx, result, method, args...))
}

// Claim relays a signed claim for beneficiary.
func (c *Client) Claim(ctx context.Context, beneficiary common.Address, req distributor.ClaimRequest) (*distributor.Receipt, error) {
	var receipt distributor.Receipt
	err := c.call(ctx, &receipt, jsonrpc.RewardsNamespace+"_claim",
		beneficiary, req.Pid, req.RewardToken, req.Amount, req.EpochIndex, hexutil.Bytes(req.Signature))
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) UserClaimedReward(ctx context.Context, pid uint64, user common.Address) (*uint256.Int, error) {
	var v uint256.Int
	if err := c.call(ctx, &v, jsonrpc.RewardsNamespace+"_userClaimedReward", pid, user); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) UserLastClaimAt(ctx context.Context, pid uint64, user common.Address) (uint64, error) {
	var v uint64
	err := c.call(ctx, &v, jsonrpc.RewardsNamespace+"_userLastClaimAt", pid, user)
	return v, err
}

func (c *Client) PoolClaimedReward(ctx context.Context, pid uint64) (*uint256.Int, error) {
	var v uint256.Int
	if err := c.call(ctx, &v, jsonrpc.RewardsNamespace+"_poolClaimedReward", pid); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) ClaimInterval(ctx context.Context) (uint64, error) {
	var v uint64
	err := c.call(ctx, &v, jsonrpc.RewardsNamespace+"_claimInterval")
	return v, err
}

func (c *Client) CurrentEpochIndex(ctx context.Context) (uint64, error) {
	var v uint64
	err := c.call(ctx, &v, jsonrpc.RewardsNamespace+"_currentEpochIndex")
	return v, err
}

func (c *Client) IsSignatureUsed(ctx context.Context, digest common.Hash) (bool, error) {
	var v bool
	err := c.call(ctx, &v, jsonrpc.RewardsNamespace+"_isSignatureUsed", digest)
	return v, err
}

// Balance returns the distributor's custody balance of token.
func (c *Client) Balance(ctx context.Context, tok common.Address) (*uint256.Int, error) {
	var v uint256.Int
	if err := c.call(ctx, &v, jsonrpc.RewardsNamespace+"_balance", tok); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) PendingReward(ctx context.Context, pid uint64, user common.Address) (*uint256.Int, error) {
	var v uint256.Int
	if err := c.call(ctx, &v, jsonrpc.RewardsNamespace+"_pendingReward", pid, user); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) StatsUpdatedAt(ctx context.Context) (uint64, error) {
	var v uint64
	err := c.call(ctx, &v, jsonrpc.RewardsNamespace+"_statsUpdatedAt")
	return v, err
}

func (c *Client) AllPools(ctx context.Context) ([]poolregistry.Pool, error) {
	var v []poolregistry.Pool
	err := c.call(ctx, &v, jsonrpc.RegistryNamespace+"_allPools")
	return v, err
}

func (c *Client) PoolLength(ctx context.Context) (uint64, error) {
	var v uint64
	err := c.call(ctx, &v, jsonrpc.RegistryNamespace+"_poolLength")
	return v, err
}

func (c *Client) Pool(ctx context.Context, pid uint64) (poolregistry.Pool, error) {
	var v poolregistry.Pool
	err := c.call(ctx, &v, jsonrpc.RegistryNamespace+"_pool", pid)
	return v, err
}

func (c *Client) PoolIndex(ctx context.Context, address common.Address) (uint64, error) {
	var v uint64
	err := c.call(ctx, &v, jsonrpc.RegistryNamespace+"_poolIndex", address)
	return v, err
}

func (c *Client) Tokens(ctx context.Context) ([]token.TokenView, error) {
	var v []token.TokenView
	err := c.call(ctx, &v, jsonrpc.TokenNamespace+"_all")
	return v, err
}

func (c *Client) TokenBalance(ctx context.Context, tok, account common.Address) (*uint256.Int, error) {
	var v uint256.Int
	if err := c.call(ctx, &v, jsonrpc.TokenNamespace+"_balanceOf", tok, account); err != nil {
		return nil, err
	}
	return &v, nil
}

// TokenPools returns the token to pool adjacency of the registry.
func (c *Client) TokenPools(ctx context.Context) (*poolregistry.TokenPoolsRegistryView, error) {
	var v poolregistry.TokenPoolsRegistryView
	if err := c.call(ctx, &v, jsonrpc.RegistryNamespace+"_tokenPools"); err != nil {
		return nil, err
	}
	return &v, nil
}
