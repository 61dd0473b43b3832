package controlrpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/md-rashed-zaman/seqlog/libs/grpcx"
	"github.com/md-rashed-zaman/seqlog/libs/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeSubmitter struct {
	statuses map[string]subscription.Status
	lastCmd  subscription.Command
}

func (f *fakeSubmitter) Submit(_ context.Context, name string, cmd subscription.Command) (subscription.Status, error) {
	f.lastCmd = cmd
	st, ok := f.statuses[name]
	if !ok {
		return subscription.Status{}, fmt.Errorf("%w: %s", subscription.ErrUnknownSubscription, name)
	}
	switch cmd {
	case subscription.CommandPause:
		st.Paused = true
	case subscription.CommandShowStatus:
	default:
		return st, &subscription.CommandError{Subscription: name, Command: cmd, Reason: "unknown command"}
	}
	return st, nil
}

func dialTestServer(t *testing.T, subs Submitter) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpcx.NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	RegisterControlServer(srv, NewServer(subs))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func TestSubmitRoundTrip(t *testing.T) {
	subs := &fakeSubmitter{statuses: map[string]subscription.Status{
		"accounts-view": {SubscriptionName: "accounts-view", Failures: 2, BackOff: 1, CurrentOffset: 1234567},
	}}
	client := dialTestServer(t, subs)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := client.Submit(ctx, "accounts-view", subscription.CommandPause)
	require.NoError(t, err)
	assert.Equal(t, subscription.CommandPause, subs.lastCmd)
	assert.Equal(t, subscription.Status{
		SubscriptionName: "accounts-view",
		Paused:           true,
		Failures:         2,
		BackOff:          1,
		CurrentOffset:    1234567,
	}, st)
}

func TestSubmitErrorCodes(t *testing.T) {
	subs := &fakeSubmitter{statuses: map[string]subscription.Status{"journal": {SubscriptionName: "journal"}}}
	client := dialTestServer(t, subs)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Submit(ctx, "missing", subscription.CommandShowStatus)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.Submit(ctx, "journal", subscription.Command("REWIND"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Submit(ctx, "", subscription.CommandShowStatus)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestToStatus(t *testing.T) {
	assert.Equal(t, codes.Unavailable, status.Code(toStatus(subscription.ErrStopped)))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(toStatus(context.DeadlineExceeded)))
	assert.Equal(t, codes.Internal, status.Code(toStatus(io.ErrUnexpectedEOF)))
}
