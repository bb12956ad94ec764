package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/intakerpc"
	"github.com/dmitrijs2005/intakekeeper/internal/logging"
	"github.com/dmitrijs2005/intakekeeper/internal/server/auth"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newTestServer(lim *ActorLimiter) *GRPCServer {
	return NewGRPCServer("", logging.Nop{}, &fakeDrafts{}, &fakeSections{}, lim, testSecret)
}

func TestInterceptor_PingAllowedWithoutToken(t *testing.T) {
	s := newTestServer(nil)
	info := &grpc.UnaryServerInfo{FullMethod: intakerpc.FullMethodPing}
	handlerCalled := false

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	require.NoError(t, err)
	assert.True(t, handlerCalled)
	assert.Equal(t, "ok", resp)
}

func TestInterceptor_MissingToken(t *testing.T) {
	s := newTestServer(nil)
	info := &grpc.UnaryServerInfo{FullMethod: intakerpc.FullMethodSaveDraft}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler must not be called")
		return nil, nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestInterceptor_ExpiredAndForeignTokens(t *testing.T) {
	s := newTestServer(nil)
	info := &grpc.UnaryServerInfo{FullMethod: intakerpc.FullMethodSaveDraft}
	h := func(ctx context.Context, req interface{}) (interface{}, error) { return nil, nil }

	expired, err := auth.IssueAccessToken("a", []byte(testSecret), -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.IssueAccessToken("a", []byte("other"), time.Hour)
	require.NoError(t, err)

	for name, tok := range map[string]string{"token expired": expired, "invalid token": foreign} {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, tok))
		_, err := s.accessTokenInterceptor(ctx, nil, info, h)
		st, _ := status.FromError(err)
		assert.Equal(t, codes.Unauthenticated, st.Code())
		assert.Equal(t, name, st.Message())
	}
}

func TestInterceptor_PutsActorInContext(t *testing.T) {
	s := newTestServer(nil)
	info := &grpc.UnaryServerInfo{FullMethod: intakerpc.FullMethodSaveDraft}
	tok, err := auth.IssueAccessToken("actor-42", []byte(testSecret), time.Hour)
	require.NoError(t, err)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, tok))
	var got string
	_, err = s.accessTokenInterceptor(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		got = actorFromContext(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "actor-42", got)
}

func TestRateLimit_PerActorOverTransport(t *testing.T) {
	d := &fakeDrafts{draft: &models.Draft{ID: "d1", Status: models.StatusDraft}}
	c := startBufServer(t, NewGRPCServer("", logging.Nop{}, d, &fakeSections{}, NewActorLimiter(0.001, 2), testSecret))

	busy := withToken(t, context.Background(), "busy")
	for i := 0; i < 2; i++ {
		_, err := c.GetDraft(busy, &intakerpc.GetDraftRequest{DraftID: "d1"})
		require.NoError(t, err)
	}
	_, err := c.GetDraft(busy, &intakerpc.GetDraftRequest{DraftID: "d1"})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = c.GetDraft(withToken(t, context.Background(), "calm"), &intakerpc.GetDraftRequest{DraftID: "d1"})
	assert.NoError(t, err)
}

func TestStream_RequiresToken(t *testing.T) {
	c := startBufServer(t, newTestServer(nil))

	stream, err := c.WatchSection(context.Background(), &intakerpc.WatchSectionRequest{IntakeID: "i1", Section: "medical"})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestPing_OverTransportWithoutToken(t *testing.T) {
	c := startBufServer(t, newTestServer(nil))

	resp, err := c.Ping(context.Background(), &intakerpc.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "OK", resp.Status)
}
