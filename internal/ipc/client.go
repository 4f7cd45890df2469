package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/DeGatchi/vaportrade/internal/trade"
	"github.com/DeGatchi/vaportrade/pkg/protocol"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// defaultRPCTimeout is the default timeout for RPC calls.
const defaultRPCTimeout = 5 * time.Second

// ErrEmptySocketPath is returned when an empty socket path is provided.
var ErrEmptySocketPath = errors.New("socket path cannot be empty")

// Client is the IPC client for the trading agent.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a new IPC client that connects to the agent via a Unix
// socket at the specified path.
func NewClient(sockPath string) (*Client, error) {
	if sockPath == "" {
		return nil, ErrEmptySocketPath
	}

	conn, err := grpc.NewClient(
		"unix://"+sockPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IPC socket: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the connection to the agent.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(method string, req any, resp any) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRPCTimeout)
	defer cancel()

	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return fmt.Errorf("%s RPC failed: %w", method, err)
	}
	if resp == nil {
		return nil
	}
	return fromStruct(out, resp)
}

// Status retrieves the agent summary.
func (c *Client) Status() (StatusView, error) {
	var v StatusView
	err := c.call(MethodStatus, struct{}{}, &v)
	return v, err
}

// Peers retrieves every trading peer.
func (c *Client) Peers() ([]PeerView, error) {
	var v PeersView
	if err := c.call(MethodPeers, struct{}{}, &v); err != nil {
		return nil, err
	}
	return v.Peers, nil
}

// Trade requests a trade with address and opens its window.
func (c *Client) Trade(address string) error {
	return c.call(MethodTrade, addressRequest{Address: address}, nil)
}

// Select toggles the trade window of address.
func (c *Client) Select(address string) error {
	return c.call(MethodSelect, addressRequest{Address: address}, nil)
}

// Minimize hides the active trade window.
func (c *Client) Minimize() error {
	return c.call(MethodMinimize, struct{}{}, nil)
}

// CloseWindow closes the active trade window and bans its address.
func (c *Client) CloseWindow() error {
	return c.call(MethodClose, struct{}{}, nil)
}

// Offer replaces the local offer in the active trade.
func (c *Client) Offer(items []protocol.Item) error {
	if items == nil {
		items = []protocol.Item{}
	}
	return c.call(MethodOffer, offerRequest{Items: items}, nil)
}

// LockIn sets or clears the local lock-in.
func (c *Client) LockIn(locked bool) error {
	return c.call(MethodLockIn, lockInRequest{Locked: locked}, nil)
}

// Accept signs the active trade. A nil order asks the agent's wallet to
// sign.
func (c *Client) Accept(order json.RawMessage) error {
	return c.call(MethodAccept, acceptRequest{Order: order}, nil)
}

// Chat sends a chat line to the active partner.
func (c *Client) Chat(message string) error {
	return c.call(MethodChat, chatRequest{Message: message}, nil)
}

// MorePeers asks the transport for more connections.
func (c *Client) MorePeers() error {
	return c.call(MethodMorePeers, struct{}{}, nil)
}

// Events streams notifications to fn until ctx is cancelled or the agent
// goes away.
func (c *Client) Events(ctx context.Context, fn func(trade.Notification)) error {
	stream, err := c.conn.NewStream(ctx, &eventsStream, FullMethod(MethodEvents))
	if err != nil {
		return fmt.Errorf("Events RPC failed: %w", err)
	}
	if err := stream.SendMsg(&structpb.Struct{}); err != nil {
		return fmt.Errorf("Events RPC failed: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("Events RPC failed: %w", err)
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("Events RPC failed: %w", err)
		}
		var n trade.Notification
		if err := fromStruct(msg, &n); err != nil {
			return err
		}
		fn(n)
	}
}
