package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/intakerpc"
	"github.com/sethvargo/go-retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	retryBase     = 200 * time.Millisecond
	retryAttempts = 3
)

// rpc is the subset of the generated-style stub GRPCClient calls.
type rpc interface {
	SaveDraft(ctx context.Context, in *intakerpc.SaveDraftRequest, opts ...grpc.CallOption) (*intakerpc.SaveDraftResponse, error)
	GetDraft(ctx context.Context, in *intakerpc.GetDraftRequest, opts ...grpc.CallOption) (*intakerpc.GetDraftResponse, error)
	GetLatestDraft(ctx context.Context, in *intakerpc.GetLatestDraftRequest, opts ...grpc.CallOption) (*intakerpc.GetDraftResponse, error)
	SaveSection(ctx context.Context, in *intakerpc.SaveSectionRequest, opts ...grpc.CallOption) (*intakerpc.SaveSectionResponse, error)
	SetSectionStatus(ctx context.Context, in *intakerpc.SetSectionStatusRequest, opts ...grpc.CallOption) (*intakerpc.SetSectionStatusResponse, error)
	ReadSection(ctx context.Context, in *intakerpc.ReadSectionRequest, opts ...grpc.CallOption) (*intakerpc.SectionView, error)
	ReadIntake(ctx context.Context, in *intakerpc.ReadIntakeRequest, opts ...grpc.CallOption) (*intakerpc.ReadIntakeResponse, error)
	Transition(ctx context.Context, in *intakerpc.TransitionRequest, opts ...grpc.CallOption) (*intakerpc.TransitionResponse, error)
	Ping(ctx context.Context, in *intakerpc.PingRequest, opts ...grpc.CallOption) (*intakerpc.PingResponse, error)
	WatchSection(ctx context.Context, in *intakerpc.WatchSectionRequest, opts ...grpc.CallOption) (intakerpc.WatchSectionClient, error)
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      rpc
	accessToken string
	backoff     func() retry.Backoff
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(retryAttempts, retry.NewExponential(retryBase))
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	return invoker(withAccessToken(ctx, s.accessToken), method, req, reply, cc, opts...)
}

func (s *GRPCClient) accessTokenStreamInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	return streamer(withAccessToken(ctx, s.accessToken), desc, cc, method, opts...)
}

func NewIntakeClient(endpointURL, accessToken string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken, backoff: defaultBackoff}
	err := c.InitGRPCClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStreamInterceptor(s.accessTokenStreamInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = intakerpc.NewIntakeServiceClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// retrying runs call again on transient failures. Only idempotent calls go
// through here.
func (s *GRPCClient) retrying(ctx context.Context, call func(ctx context.Context) error) error {
	b := s.backoff
	if b == nil {
		b = defaultBackoff
	}
	return retry.Do(ctx, b(), func(ctx context.Context) error {
		err := call(ctx)
		if common.Classify(err) == common.ClassTransient {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *GRPCClient) Ping(ctx context.Context) error {

	resp, err := s.client.Ping(ctx, &intakerpc.PingRequest{})
	if err != nil {
		return mapError(err, nil, 0)
	}

	if resp.Status != "OK" {
		return common.ErrUnavailable
	}

	return nil

}

// Save sends the whole value as the patch. Calls carrying a save id are
// retried on transient failures; the server replays an already applied one.
func (s *GRPCClient) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	in := &intakerpc.SaveDraftRequest{
		DraftID:         req.DraftID,
		Patch:           req.Value,
		ExpectedVersion: req.ExpectedVersion,
		SaveID:          req.SaveID,
	}
	var expected int64
	if req.ExpectedVersion != nil {
		expected = *req.ExpectedVersion
	}

	var resp *intakerpc.SaveDraftResponse
	call := func(ctx context.Context) error {
		var trailer metadata.MD
		r, err := s.client.SaveDraft(ctx, in, grpc.Trailer(&trailer))
		if err != nil {
			return mapError(err, trailer, expected)
		}
		resp = r
		return nil
	}

	var err error
	if req.SaveID != "" {
		err = s.retrying(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &SaveResult{DraftID: resp.DraftID, Version: resp.Version, Replayed: resp.Replayed}, nil
}

func fromWire(d *intakerpc.Draft) *Draft {
	if d == nil {
		return nil
	}
	return &Draft{ID: d.ID, Data: d.Data, Version: d.Version, Status: d.Status, UpdatedAt: d.UpdatedAt}
}

func (s *GRPCClient) Fetch(ctx context.Context, draftID string) (*Draft, error) {
	var out *Draft
	err := s.retrying(ctx, func(ctx context.Context) error {
		resp, err := s.client.GetDraft(ctx, &intakerpc.GetDraftRequest{DraftID: draftID})
		if err != nil {
			return mapError(err, nil, 0)
		}
		out = fromWire(resp.Draft)
		return nil
	})
	return out, err
}

func (s *GRPCClient) FetchLatest(ctx context.Context) (*Draft, error) {
	var out *Draft
	err := s.retrying(ctx, func(ctx context.Context) error {
		resp, err := s.client.GetLatestDraft(ctx, &intakerpc.GetLatestDraftRequest{})
		if err != nil {
			return mapError(err, nil, 0)
		}
		out = fromWire(resp.Draft)
		return nil
	})
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return out, err
}

func (s *GRPCClient) SaveSection(ctx context.Context, intakeID, section string, patch document.Document, expected *int64) (int64, error) {
	var exp int64
	if expected != nil {
		exp = *expected
	}
	var trailer metadata.MD
	resp, err := s.client.SaveSection(ctx, &intakerpc.SaveSectionRequest{
		IntakeID: intakeID, Section: section, Patch: patch, ExpectedVersion: expected,
	}, grpc.Trailer(&trailer))
	if err != nil {
		return 0, mapError(err, trailer, exp)
	}
	return resp.Version, nil
}

func (s *GRPCClient) SetSectionStatus(ctx context.Context, intakeID, section, st string) error {
	_, err := s.client.SetSectionStatus(ctx, &intakerpc.SetSectionStatusRequest{IntakeID: intakeID, Section: section, Status: st})
	return mapError(err, nil, 0)
}

func (s *GRPCClient) ReadSection(ctx context.Context, intakeID, section string) (*intakerpc.SectionView, error) {
	var out *intakerpc.SectionView
	err := s.retrying(ctx, func(ctx context.Context) error {
		v, err := s.client.ReadSection(ctx, &intakerpc.ReadSectionRequest{IntakeID: intakeID, Section: section})
		out = v
		return mapError(err, nil, 0)
	})
	return out, err
}

func (s *GRPCClient) ReadIntake(ctx context.Context, intakeID string) (*intakerpc.ReadIntakeResponse, error) {
	var out *intakerpc.ReadIntakeResponse
	err := s.retrying(ctx, func(ctx context.Context) error {
		v, err := s.client.ReadIntake(ctx, &intakerpc.ReadIntakeRequest{IntakeID: intakeID})
		out = v
		return mapError(err, nil, 0)
	})
	return out, err
}

func (s *GRPCClient) Transition(ctx context.Context, intakeID, target string) (*intakerpc.TransitionResponse, error) {
	resp, err := s.client.Transition(ctx, &intakerpc.TransitionRequest{IntakeID: intakeID, Target: target})
	if err != nil {
		return nil, mapError(err, nil, 0)
	}
	return resp, nil
}

// WatchSection calls fn for every view until ctx is done or the stream ends.
func (s *GRPCClient) WatchSection(ctx context.Context, intakeID, section string, fn func(*intakerpc.SectionView)) error {
	stream, err := s.client.WatchSection(ctx, &intakerpc.WatchSectionRequest{IntakeID: intakeID, Section: section})
	if err != nil {
		return mapError(err, nil, 0)
	}
	for {
		v, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return mapError(err, nil, 0)
		}
		fn(v)
	}
}

// mapError translates a status error into the common sentinels. trailer and
// expected fill in a conflict's versions.
func mapError(err error, trailer metadata.MD, expected int64) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Aborted:
		ce := &common.ConflictError{Entity: "draft", Expected: expected}
		if v := trailer.Get(intakerpc.CurrentVersionTrailer); len(v) > 0 {
			ce.Current, _ = strconv.ParseInt(v[0], 10, 64)
		}
		return ce
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrValidation, st.Message())
	case codes.FailedPrecondition:
		if strings.Contains(st.Message(), common.ErrArchived.Error()) {
			return common.ErrArchived
		}
		return fmt.Errorf("%w: %s", common.ErrInvalidTransition, st.Message())
	case codes.NotFound:
		return common.ErrorNotFound
	case codes.ResourceExhausted:
		return common.ErrRateLimited
	case codes.Unauthenticated, codes.PermissionDenied:
		if st.Message() == common.ErrTokenExpired.Error() {
			return common.ErrTokenExpired
		}
		return common.ErrorUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return common.ErrUnavailable
	case codes.Internal:
		return fmt.Errorf("%w: %s", common.ErrStorage, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
