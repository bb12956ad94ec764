package intakerpc

import (
	"context"

	"google.golang.org/grpc"
)

// IntakeServiceClient is the client stub for the intake service.
type IntakeServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewIntakeServiceClient(cc grpc.ClientConnInterface) *IntakeServiceClient {
	return &IntakeServiceClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *IntakeServiceClient) SaveDraft(ctx context.Context, in *SaveDraftRequest, opts ...grpc.CallOption) (*SaveDraftResponse, error) {
	return invoke[SaveDraftResponse](ctx, c.cc, FullMethodSaveDraft, in, opts)
}

func (c *IntakeServiceClient) GetDraft(ctx context.Context, in *GetDraftRequest, opts ...grpc.CallOption) (*GetDraftResponse, error) {
	return invoke[GetDraftResponse](ctx, c.cc, FullMethodGetDraft, in, opts)
}

func (c *IntakeServiceClient) GetLatestDraft(ctx context.Context, in *GetLatestDraftRequest, opts ...grpc.CallOption) (*GetDraftResponse, error) {
	return invoke[GetDraftResponse](ctx, c.cc, FullMethodGetLatestDraft, in, opts)
}

func (c *IntakeServiceClient) SaveSection(ctx context.Context, in *SaveSectionRequest, opts ...grpc.CallOption) (*SaveSectionResponse, error) {
	return invoke[SaveSectionResponse](ctx, c.cc, FullMethodSaveSection, in, opts)
}

func (c *IntakeServiceClient) SetSectionStatus(ctx context.Context, in *SetSectionStatusRequest, opts ...grpc.CallOption) (*SetSectionStatusResponse, error) {
	return invoke[SetSectionStatusResponse](ctx, c.cc, FullMethodSetSectionStatus, in, opts)
}

func (c *IntakeServiceClient) ReadSection(ctx context.Context, in *ReadSectionRequest, opts ...grpc.CallOption) (*SectionView, error) {
	return invoke[SectionView](ctx, c.cc, FullMethodReadSection, in, opts)
}

func (c *IntakeServiceClient) ReadIntake(ctx context.Context, in *ReadIntakeRequest, opts ...grpc.CallOption) (*ReadIntakeResponse, error) {
	return invoke[ReadIntakeResponse](ctx, c.cc, FullMethodReadIntake, in, opts)
}

func (c *IntakeServiceClient) Transition(ctx context.Context, in *TransitionRequest, opts ...grpc.CallOption) (*TransitionResponse, error) {
	return invoke[TransitionResponse](ctx, c.cc, FullMethodTransition, in, opts)
}

func (c *IntakeServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, FullMethodPing, in, opts)
}

// WatchSectionClient receives merged views until the server ends the stream.
type WatchSectionClient interface {
	Recv() (*SectionView, error)
	grpc.ClientStream
}

type watchSectionClient struct {
	grpc.ClientStream
}

func (x *watchSectionClient) Recv() (*SectionView, error) {
	m := new(SectionView)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *IntakeServiceClient) WatchSection(ctx context.Context, in *WatchSectionRequest, opts ...grpc.CallOption) (WatchSectionClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethodWatchSection, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &watchSectionClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
