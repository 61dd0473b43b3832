package controlrpc

import (
	"context"
	"errors"
	"strings"

	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
	"github.com/md-rashed-zaman/seqlog/libs/subscription"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Submitter is satisfied by *subscription.Container.
type Submitter interface {
	Submit(ctx context.Context, name string, cmd subscription.Command) (subscription.Status, error)
}

type Server struct {
	subs Submitter
}

func NewServer(subs Submitter) *Server {
	return &Server{subs: subs}
}

func (s *Server) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := strings.TrimSpace(req.GetFields()["subscription"].GetStringValue())
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "subscription is required")
	}
	cmd := subscription.ParseCommand(req.GetFields()["command"].GetStringValue())
	if cmd == "" {
		return nil, status.Error(codes.InvalidArgument, "command is required")
	}

	st, err := s.subs.Submit(ctx, name, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return StatusToStruct(st)
}

func toStatus(err error) error {
	var cmdErr *subscription.CommandError
	switch {
	case errors.Is(err, subscription.ErrUnknownSubscription):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &cmdErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, subscription.ErrStopped), errors.Is(err, subscription.ErrNotStarted):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func StatusToStruct(st subscription.Status) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"subscriptionName": st.SubscriptionName,
		"paused":           st.Paused,
		"busy":             st.Busy,
		"greedy":           st.Greedy,
		"failures":         st.Failures,
		"backOff":          st.BackOff,
		"currentOffset":    int64(st.CurrentOffset),
	})
}

func StatusFromStruct(s *structpb.Struct) subscription.Status {
	f := s.GetFields()
	return subscription.Status{
		SubscriptionName: f["subscriptionName"].GetStringValue(),
		Paused:           f["paused"].GetBoolValue(),
		Busy:             f["busy"].GetBoolValue(),
		Greedy:           f["greedy"].GetBoolValue(),
		Failures:         int(f["failures"].GetNumberValue()),
		BackOff:          int(f["backOff"].GetNumberValue()),
		CurrentOffset:    eventstore.SequenceNumber(int64(f["currentOffset"].GetNumberValue())),
	}
}
