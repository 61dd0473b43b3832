package controlrpc

import (
	"context"

	"github.com/md-rashed-zaman/seqlog/libs/subscription"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Submit sends cmd to the named subscription and returns its status.
// Errors carry the gRPC status of the server.
func (c *Client) Submit(ctx context.Context, name string, cmd subscription.Command, opts ...grpc.CallOption) (subscription.Status, error) {
	req, err := structpb.NewStruct(map[string]any{
		"subscription": name,
		"command":      string(cmd),
	})
	if err != nil {
		return subscription.Status{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SubmitMethod, req, out, opts...); err != nil {
		return subscription.Status{}, err
	}
	return StatusFromStruct(out), nil
}
