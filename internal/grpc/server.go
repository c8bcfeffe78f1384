// Package grpc serves the game service over gRPC.
package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Billy-Davies-2/pricing-game/internal/apperr"
	"github.com/Billy-Davies-2/pricing-game/internal/game"
	"github.com/Billy-Davies-2/pricing-game/internal/identity"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
	"github.com/Billy-Davies-2/pricing-game/internal/pubsub"
)

// Server implements PricingServiceServer on top of game.Service
type Server struct {
	svc *game.Service
	bus pubsub.Bus
}

// NewServer creates a new gRPC server
func NewServer(svc *game.Service, bus pubsub.Bus) *Server {
	return &Server{svc: svc, bus: bus}
}

var _ PricingServiceServer = (*Server)(nil)

func codeFor(kind apperr.Kind) codes.Code {
	switch kind {
	case apperr.KindValidation:
		return codes.InvalidArgument
	case apperr.KindConflict:
		return codes.AlreadyExists
	case apperr.KindNotReady:
		return codes.FailedPrecondition
	default:
		return codes.Unavailable
	}
}

func toStatus(err error) error {
	return status.Error(codeFor(apperr.KindOf(err)), apperr.Message(err))
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return s, nil
}

// fromStruct decodes in into v through its JSON form.
func fromStruct(in *structpb.Struct, v interface{}) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return toStatus(apperr.Validation("invalid request: %v", err))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return toStatus(apperr.Validation("invalid request: %v", err))
	}
	return nil
}

func reply(v interface{}, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(v)
}

// GetState returns the session read model
func (s *Server) GetState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	logger.Debug("gRPC: Getting session state")
	return reply(s.svc.State(ctx))
}

// Join registers a team from {"name"}
func (s *Server) Join(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	team, err := s.svc.Join(ctx, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	logger.Info("gRPC: Team joined", "team", team.Key)
	return toStruct(map[string]interface{}{
		"key":      team.Key,
		"name":     team.Name,
		"joinedAt": team.JoinedAt,
	})
}

// SubmitChoice plays a round from {"key","name","option"}
func (s *Server) SubmitChoice(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Key    string `json:"key"`
		Name   string `json:"name"`
		Option string `json:"option"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.SubmitChoice(ctx, identity.Identity{Key: req.Key, Name: req.Name}, req.Option))
}

// SaveConfiguration stores {numRounds, config, pricingOptions}
func (s *Server) SaveConfiguration(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var cfg game.ConfigInput
	if err := fromStruct(in, &cfg); err != nil {
		return nil, err
	}
	return reply(s.svc.SaveConfiguration(ctx, cfg))
}

// StartGame opens play
func (s *Server) StartGame(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return reply(s.svc.StartGame(ctx))
}

// ResetSession clears all teams
func (s *Server) ResetSession(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return reply(s.svc.ResetSession(ctx))
}

// StreamEvents forwards bus events until the client goes away. The first
// message is {"type":"connected"}, sent once the subscription is live.
func (s *Server) StreamEvents(_ *emptypb.Empty, stream EventStream) error {
	events := s.bus.Subscribe()
	defer s.bus.Unsubscribe(events)

	hello, _ := structpb.NewStruct(map[string]interface{}{"type": "connected"})
	if err := stream.Send(hello); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("gRPC: Event stream closed")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			msg, err := toStruct(ev)
			if err != nil {
				logger.Warn("gRPC: Skipping unencodable event", "type", ev.Type, "error", err)
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}
