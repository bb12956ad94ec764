package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/intakerpc"
	"github.com/dmitrijs2005/intakekeeper/internal/logging"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/dmitrijs2005/intakekeeper/internal/server/overlay"
	"github.com/dmitrijs2005/intakekeeper/internal/server/services"
	"google.golang.org/grpc"
)

// DraftService is the part of services.DraftService the transport needs.
type DraftService interface {
	Save(ctx context.Context, cmd services.SaveCommand) (*services.SaveResult, error)
	Get(ctx context.Context, id string) (*models.Draft, error)
	GetLatest(ctx context.Context, actorID string) (*models.Draft, error)
	Transition(ctx context.Context, id string, target models.Status, actorID string) (*services.TransitionResult, error)
}

// SectionService is the part of services.SectionService the transport needs.
type SectionService interface {
	SaveSection(ctx context.Context, cmd services.SectionCommand) (*services.SectionResult, error)
	SetSectionStatus(ctx context.Context, intakeID, section string, status catalog.Status, actorID string) error
	Read(ctx context.Context, intakeID, section string) (*overlay.View, error)
	ReadAll(ctx context.Context, intakeID string) (*services.IntakeView, error)
	Watch(ctx context.Context, intakeID, section string, emit func(*overlay.View) error) error
}

type GRPCServer struct {
	intakerpc.UnimplementedIntakeServiceServer
	address   string
	drafts    DraftService
	sections  SectionService
	limiter   *ActorLimiter
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, ds DraftService, ss SectionService, lim *ActorLimiter, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		drafts:    ds,
		sections:  ss,
		limiter:   lim,
		jwtSecret: []byte(secretKey),
	}
}

// NewServer builds a grpc.Server with the interceptor chain and registers s.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor, s.rateLimitInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor, s.rateLimitStreamInterceptor),
	)
	srv := grpc.NewServer(opts...)
	intakerpc.RegisterIntakeServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
