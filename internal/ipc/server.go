package ipc

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/DeGatchi/vaportrade/internal/trade"
	"github.com/DeGatchi/vaportrade/pkg/protocol"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Agent is what the IPC server needs from the trade manager.
type Agent interface {
	Snapshot(ctx context.Context) (trade.Snapshot, error)
	Do(ctx context.Context, a trade.Action) error
	Subscribe() <-chan trade.Notification
	Unsubscribe(ch <-chan trade.Notification)
}

// Server is the IPC gRPC server.
type Server struct {
	sockPath string
	agent    Agent
	logger   *slog.Logger
	grpc     *grpc.Server
	listener net.Listener

	stopOnce sync.Once
	done     chan struct{}
}

var _ AgentServer = (*Server)(nil)

// NewServer creates a new IPC server listening on a Unix socket.
func NewServer(sockPath string, agent Agent, logger *slog.Logger) (*Server, error) {
	if sockPath == "" {
		return nil, ErrEmptySocketPath
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Remove existing socket if present
	os.Remove(sockPath)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		sockPath: sockPath,
		agent:    agent,
		logger:   logger,
		grpc:     grpc.NewServer(),
		listener: listener,
		done:     make(chan struct{}),
	}
	s.grpc.RegisterService(&ServiceDesc, s)

	return s, nil
}

// Start begins serving requests.
func (s *Server) Start() error {
	return s.grpc.Serve(s.listener)
}

// Stop gracefully stops the server. Open event streams are ended first so
// the graceful stop does not wait on them.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.grpc.GracefulStop()
	os.Remove(s.sockPath)
}

func (s *Server) snapshot(ctx context.Context) (trade.Snapshot, error) {
	snap, err := s.agent.Snapshot(ctx)
	if err != nil {
		return trade.Snapshot{}, toStatus(err)
	}
	return snap, nil
}

func (s *Server) do(ctx context.Context, a trade.Action) (*structpb.Struct, error) {
	if err := s.agent.Do(ctx, a); err != nil {
		s.logger.Debug("ipc action failed", "action", actionName(a), "error", err)
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

// Status implements AgentServer.
func (s *Server) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return toStruct(newStatusView(snap))
}

// Peers implements AgentServer.
func (s *Server) Peers(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return toStruct(newPeersView(snap))
}

// Trade implements AgentServer.
func (s *Server) Trade(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req addressRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.do(ctx, trade.RequestTrade{Address: req.Address})
}

// Select implements AgentServer.
func (s *Server) Select(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req addressRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.do(ctx, trade.Select{Address: req.Address})
}

// Minimize implements AgentServer.
func (s *Server) Minimize(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.do(ctx, trade.Minimize{})
}

// Close implements AgentServer.
func (s *Server) Close(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.do(ctx, trade.CloseWindow{})
}

// Offer implements AgentServer.
func (s *Server) Offer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req offerRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.Items == nil {
		req.Items = []protocol.Item{}
	}
	return s.do(ctx, trade.SetMyOffer{Items: req.Items})
}

// LockIn implements AgentServer.
func (s *Server) LockIn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req lockInRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.do(ctx, trade.LockIn{Locked: req.Locked})
}

// Accept implements AgentServer.
func (s *Server) Accept(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req acceptRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if bytes.Equal(bytes.TrimSpace(req.Order), []byte("null")) {
		req.Order = nil
	}
	return s.do(ctx, trade.Accept{Order: req.Order})
}

// Chat implements AgentServer.
func (s *Server) Chat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req chatRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.do(ctx, trade.SendChat{Message: req.Message})
}

// MorePeers implements AgentServer.
func (s *Server) MorePeers(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.do(ctx, trade.RequestMorePeers{})
}

// Events implements AgentServer. It streams notifications until the client
// goes away.
func (s *Server) Events(_ *structpb.Struct, stream grpc.ServerStream) error {
	ch := s.agent.Subscribe()
	defer s.agent.Unsubscribe(ch)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := toStruct(n)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func decodeRequest(in *structpb.Struct, v any) error {
	if err := fromStruct(in, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

// toStatus maps trade errors onto gRPC status codes.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, trade.ErrManagerStopped):
		code = codes.Unavailable
	case errors.Is(err, trade.ErrUnknownAddress):
		code = codes.NotFound
	case errors.Is(err, trade.ErrNotSelectable),
		errors.Is(err, trade.ErrNoActivePartner),
		errors.Is(err, trade.ErrTradeSigned),
		errors.Is(err, trade.ErrNotLockedIn),
		errors.Is(err, trade.ErrNoSigner),
		errors.Is(err, protocol.ErrInvalidTransition),
		errors.Is(err, protocol.ErrTerminalStatus):
		code = codes.FailedPrecondition
	case errors.Is(err, trade.ErrSelfAddress),
		errors.Is(err, protocol.ErrEmptyChat),
		errors.Is(err, protocol.ErrChatTooLong),
		errors.Is(err, protocol.ErrInvalidUTF8),
		errors.Is(err, protocol.ErrTooManyItems),
		errors.Is(err, protocol.ErrDuplicateToken),
		errors.Is(err, protocol.ErrInvalidOrder),
		errors.Is(err, protocol.ErrOrderTooLarge),
		errors.Is(err, protocol.ErrInvalidAddress),
		errors.Is(err, protocol.ErrInvalidContractType),
		errors.Is(err, protocol.ErrInvalidTokenID),
		errors.Is(err, protocol.ErrInvalidBalance),
		errors.Is(err, protocol.ErrInvalidDecimals):
		code = codes.InvalidArgument
	}
	return status.Error(code, err.Error())
}

func actionName(a trade.Action) string {
	switch a.(type) {
	case trade.RequestTrade:
		return "trade"
	case trade.Select:
		return "select"
	case trade.Minimize:
		return "minimize"
	case trade.CloseWindow:
		return "close"
	case trade.SetMyOffer:
		return "offer"
	case trade.LockIn:
		return "lockin"
	case trade.Accept:
		return "accept"
	case trade.SendChat:
		return "chat"
	case trade.RequestMorePeers:
		return "more_peers"
	}
	return "unknown"
}
