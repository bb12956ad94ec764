package intakerpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "intakekeeper.IntakeService"

const (
	// CurrentVersionTrailer carries the stored version on a conflict.
	CurrentVersionTrailer = "current-version"
)

const (
	FullMethodSaveDraft        = "/" + ServiceName + "/SaveDraft"
	FullMethodGetDraft         = "/" + ServiceName + "/GetDraft"
	FullMethodGetLatestDraft   = "/" + ServiceName + "/GetLatestDraft"
	FullMethodSaveSection      = "/" + ServiceName + "/SaveSection"
	FullMethodSetSectionStatus = "/" + ServiceName + "/SetSectionStatus"
	FullMethodReadSection      = "/" + ServiceName + "/ReadSection"
	FullMethodReadIntake       = "/" + ServiceName + "/ReadIntake"
	FullMethodTransition       = "/" + ServiceName + "/Transition"
	FullMethodPing             = "/" + ServiceName + "/Ping"
	FullMethodWatchSection     = "/" + ServiceName + "/WatchSection"
)

// IntakeServiceServer is implemented by the server transport.
type IntakeServiceServer interface {
	SaveDraft(context.Context, *SaveDraftRequest) (*SaveDraftResponse, error)
	GetDraft(context.Context, *GetDraftRequest) (*GetDraftResponse, error)
	GetLatestDraft(context.Context, *GetLatestDraftRequest) (*GetDraftResponse, error)
	SaveSection(context.Context, *SaveSectionRequest) (*SaveSectionResponse, error)
	SetSectionStatus(context.Context, *SetSectionStatusRequest) (*SetSectionStatusResponse, error)
	ReadSection(context.Context, *ReadSectionRequest) (*SectionView, error)
	ReadIntake(context.Context, *ReadIntakeRequest) (*ReadIntakeResponse, error)
	Transition(context.Context, *TransitionRequest) (*TransitionResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	WatchSection(*WatchSectionRequest, WatchSectionServer) error
}

// WatchSectionServer is the server side of the WatchSection stream.
type WatchSectionServer interface {
	Send(*SectionView) error
	grpc.ServerStream
}

// UnimplementedIntakeServiceServer can be embedded to satisfy the interface
// partially.
type UnimplementedIntakeServiceServer struct{}

func (UnimplementedIntakeServiceServer) SaveDraft(context.Context, *SaveDraftRequest) (*SaveDraftResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SaveDraft not implemented")
}
func (UnimplementedIntakeServiceServer) GetDraft(context.Context, *GetDraftRequest) (*GetDraftResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetDraft not implemented")
}
func (UnimplementedIntakeServiceServer) GetLatestDraft(context.Context, *GetLatestDraftRequest) (*GetDraftResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetLatestDraft not implemented")
}
func (UnimplementedIntakeServiceServer) SaveSection(context.Context, *SaveSectionRequest) (*SaveSectionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SaveSection not implemented")
}
func (UnimplementedIntakeServiceServer) SetSectionStatus(context.Context, *SetSectionStatusRequest) (*SetSectionStatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetSectionStatus not implemented")
}
func (UnimplementedIntakeServiceServer) ReadSection(context.Context, *ReadSectionRequest) (*SectionView, error) {
	return nil, status.Error(codes.Unimplemented, "method ReadSection not implemented")
}
func (UnimplementedIntakeServiceServer) ReadIntake(context.Context, *ReadIntakeRequest) (*ReadIntakeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ReadIntake not implemented")
}
func (UnimplementedIntakeServiceServer) Transition(context.Context, *TransitionRequest) (*TransitionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Transition not implemented")
}
func (UnimplementedIntakeServiceServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Ping not implemented")
}
func (UnimplementedIntakeServiceServer) WatchSection(*WatchSectionRequest, WatchSectionServer) error {
	return status.Error(codes.Unimplemented, "method WatchSection not implemented")
}

func unary[Req, Resp any](name string, call func(IntakeServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IntakeServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(IntakeServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type watchSectionServer struct {
	grpc.ServerStream
}

func (x *watchSectionServer) Send(m *SectionView) error {
	return x.ServerStream.SendMsg(m)
}

func watchSectionHandler(srv any, stream grpc.ServerStream) error {
	m := new(WatchSectionRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(IntakeServiceServer).WatchSection(m, &watchSectionServer{stream})
}

// ServiceDesc describes the intake service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IntakeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SaveDraft", IntakeServiceServer.SaveDraft),
		unary("GetDraft", IntakeServiceServer.GetDraft),
		unary("GetLatestDraft", IntakeServiceServer.GetLatestDraft),
		unary("SaveSection", IntakeServiceServer.SaveSection),
		unary("SetSectionStatus", IntakeServiceServer.SetSectionStatus),
		unary("ReadSection", IntakeServiceServer.ReadSection),
		unary("ReadIntake", IntakeServiceServer.ReadIntake),
		unary("Transition", IntakeServiceServer.Transition),
		unary("Ping", IntakeServiceServer.Ping),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchSection",
			Handler:       watchSectionHandler,
			ServerStreams: true,
		},
	},
	Metadata: "intakekeeper/intake.json",
}

// RegisterIntakeServiceServer registers srv on s.
func RegisterIntakeServiceServer(s grpc.ServiceRegistrar, srv IntakeServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
