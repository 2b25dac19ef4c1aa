// Package grpcserver exposes the capsule gRPC API handlers.
package grpcserver

import (
	"bytes"
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/time-capsule/internal/convert"
	"github.com/and161185/time-capsule/internal/errs"
	"github.com/and161185/time-capsule/internal/media"
	"github.com/and161185/time-capsule/internal/model"
	pb "github.com/and161185/time-capsule/internal/rpc/capsulev1"
	"github.com/and161185/time-capsule/internal/service"
)

// Server wires services into gRPC handlers.
type Server struct {
	pb.UnimplementedCapsuleServiceServer
	capsules service.CapsuleService
	owners   service.OwnerService
	media    media.Store // nil disables uploads
	log      *zap.Logger
	now      func() time.Time
}

// New constructs a gRPC server with injected services.
func New(capsules service.CapsuleService, owners service.OwnerService, store media.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{capsules: capsules, owners: owners, media: store, log: log, now: time.Now}
}

// CreateCapsule stores a new locked capsule for the caller.
func (s *Server) CreateCapsule(ctx context.Context, req *pb.CreateCapsuleRequest) (*pb.CreateCapsuleResponse, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.capsules.Create(ctx, convert.FromCreateRequest(owner, req))
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.CreateCapsuleResponse{Capsule: convert.ToWireCapsule(c, s.now())}, nil
}

// GetCapsule returns one of the caller's capsules; content stays sealed until open.
func (s *Server) GetCapsule(ctx context.Context, req *pb.GetCapsuleRequest) (*pb.GetCapsuleResponse, error) {
	c, err := s.owned(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &pb.GetCapsuleResponse{Capsule: convert.ToWireCapsule(c, s.now())}, nil
}

// EvaluateCapsule reports state and time remaining.
func (s *Server) EvaluateCapsule(ctx context.Context, req *pb.EvaluateCapsuleRequest) (*pb.EvaluateCapsuleResponse, error) {
	c, err := s.owned(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	ev, err := s.capsules.Evaluate(ctx, c.ID, s.now())
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToWireEvaluation(ev), nil
}

// OpenCapsule opens an eligible capsule. Repeated calls return the opened capsule.
func (s *Server) OpenCapsule(ctx context.Context, req *pb.OpenCapsuleRequest) (*pb.OpenCapsuleResponse, error) {
	c, err := s.owned(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	opened, err := s.capsules.Open(ctx, c.ID, now)
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.OpenCapsuleResponse{Capsule: convert.ToWireCapsule(opened, now)}, nil
}

// ListCapsules returns the caller's capsules, newest first.
func (s *Server) ListCapsules(ctx context.Context, _ *pb.ListCapsulesRequest) (*pb.ListCapsulesResponse, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.capsules.ListByOwner(ctx, owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.ListCapsulesResponse{Capsules: convert.ToWireCapsules(list, s.now())}, nil
}

// UploadMedia stores one attachment and returns the reference to put into CreateCapsule.
func (s *Server) UploadMedia(ctx context.Context, req *pb.UploadMediaRequest) (*pb.UploadMediaResponse, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if s.media == nil {
		return nil, status.Error(codes.FailedPrecondition, "media storage is not configured")
	}
	if len(req.Data) == 0 {
		var verr errs.ValidationError
		verr.Add("data", "must not be empty")
		return nil, toStatus(&verr)
	}
	att, err := s.media.Store(ctx, req.Name, bytes.NewReader(req.Data), req.ContentType)
	if err != nil {
		s.log.Warn("media upload rejected", zap.Stringer("owner_id", owner), zap.Error(err))
		return nil, toStatus(err)
	}
	s.log.Info("media uploaded",
		zap.Stringer("owner_id", owner),
		zap.String("type", string(att.Type)),
		zap.Int64("size", att.SizeBytes),
	)
	return &pb.UploadMediaResponse{Media: convert.ToWireMedia(att)}, nil
}

// SetOwnerEmail registers the address used for send-to-self notifications.
func (s *Server) SetOwnerEmail(ctx context.Context, req *pb.SetOwnerEmailRequest) (*pb.SetOwnerEmailResponse, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	email, err := s.owners.SetEmail(ctx, owner, req.Email)
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.SetOwnerEmailResponse{Email: email}, nil
}

// owned loads the capsule and hides capsules of other owners behind NotFound.
func (s *Server) owned(ctx context.Context, rawID string) (*model.Capsule, error) {
	owner, err := ownerFrom(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ParseID(rawID)
	if err != nil {
		var verr errs.ValidationError
		verr.Add("id", "must be a UUID")
		return nil, toStatus(&verr)
	}
	c, err := s.capsules.Get(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	if c.OwnerID != owner {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return c, nil
}

func ownerFrom(ctx context.Context) (uuid.UUID, error) {
	id, ok := OwnerIDFromCtx(ctx)
	if !ok || id == uuid.Nil {
		return uuid.Nil, status.Error(codes.Unauthenticated, "no auth")
	}
	return id, nil
}
