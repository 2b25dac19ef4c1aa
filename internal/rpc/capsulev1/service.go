package capsulev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "capsule.v1.CapsuleService"

// Full method names.
const (
	CreateCapsuleMethod   = "/" + ServiceName + "/CreateCapsule"
	GetCapsuleMethod      = "/" + ServiceName + "/GetCapsule"
	EvaluateCapsuleMethod = "/" + ServiceName + "/EvaluateCapsule"
	OpenCapsuleMethod     = "/" + ServiceName + "/OpenCapsule"
	ListCapsulesMethod    = "/" + ServiceName + "/ListCapsules"
	UploadMediaMethod     = "/" + ServiceName + "/UploadMedia"
	SetOwnerEmailMethod   = "/" + ServiceName + "/SetOwnerEmail"
)

// CapsuleServiceServer is implemented by the server handlers.
type CapsuleServiceServer interface {
	CreateCapsule(context.Context, *CreateCapsuleRequest) (*CreateCapsuleResponse, error)
	GetCapsule(context.Context, *GetCapsuleRequest) (*GetCapsuleResponse, error)
	EvaluateCapsule(context.Context, *EvaluateCapsuleRequest) (*EvaluateCapsuleResponse, error)
	OpenCapsule(context.Context, *OpenCapsuleRequest) (*OpenCapsuleResponse, error)
	ListCapsules(context.Context, *ListCapsulesRequest) (*ListCapsulesResponse, error)
	UploadMedia(context.Context, *UploadMediaRequest) (*UploadMediaResponse, error)
	SetOwnerEmail(context.Context, *SetOwnerEmailRequest) (*SetOwnerEmailResponse, error)
}

// UnimplementedCapsuleServiceServer can be embedded for forward compatibility.
type UnimplementedCapsuleServiceServer struct{}

func (UnimplementedCapsuleServiceServer) CreateCapsule(context.Context, *CreateCapsuleRequest) (*CreateCapsuleResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateCapsule not implemented")
}
func (UnimplementedCapsuleServiceServer) GetCapsule(context.Context, *GetCapsuleRequest) (*GetCapsuleResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetCapsule not implemented")
}
func (UnimplementedCapsuleServiceServer) EvaluateCapsule(context.Context, *EvaluateCapsuleRequest) (*EvaluateCapsuleResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method EvaluateCapsule not implemented")
}
func (UnimplementedCapsuleServiceServer) OpenCapsule(context.Context, *OpenCapsuleRequest) (*OpenCapsuleResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method OpenCapsule not implemented")
}
func (UnimplementedCapsuleServiceServer) ListCapsules(context.Context, *ListCapsulesRequest) (*ListCapsulesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListCapsules not implemented")
}
func (UnimplementedCapsuleServiceServer) UploadMedia(context.Context, *UploadMediaRequest) (*UploadMediaResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UploadMedia not implemented")
}
func (UnimplementedCapsuleServiceServer) SetOwnerEmail(context.Context, *SetOwnerEmailRequest) (*SetOwnerEmailResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetOwnerEmail not implemented")
}

// RegisterCapsuleServiceServer attaches srv to s.
func RegisterCapsuleServiceServer(s grpc.ServiceRegistrar, srv CapsuleServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary builds a MethodDesc handler for one request type.
func unary[Req any, Resp any](
	fullMethod string, call func(CapsuleServiceServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CapsuleServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CapsuleServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes capsule.v1.CapsuleService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CapsuleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateCapsule", Handler: unary(CreateCapsuleMethod, CapsuleServiceServer.CreateCapsule)},
		{MethodName: "GetCapsule", Handler: unary(GetCapsuleMethod, CapsuleServiceServer.GetCapsule)},
		{MethodName: "EvaluateCapsule", Handler: unary(EvaluateCapsuleMethod, CapsuleServiceServer.EvaluateCapsule)},
		{MethodName: "OpenCapsule", Handler: unary(OpenCapsuleMethod, CapsuleServiceServer.OpenCapsule)},
		{MethodName: "ListCapsules", Handler: unary(ListCapsulesMethod, CapsuleServiceServer.ListCapsules)},
		{MethodName: "UploadMedia", Handler: unary(UploadMediaMethod, CapsuleServiceServer.UploadMedia)},
		{MethodName: "SetOwnerEmail", Handler: unary(SetOwnerEmailMethod, CapsuleServiceServer.SetOwnerEmail)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "capsule/v1/capsule.json",
}

// CapsuleServiceClient is the client API for capsule.v1.CapsuleService.
type CapsuleServiceClient interface {
	CreateCapsule(ctx context.Context, in *CreateCapsuleRequest, opts ...grpc.CallOption) (*CreateCapsuleResponse, error)
	GetCapsule(ctx context.Context, in *GetCapsuleRequest, opts ...grpc.CallOption) (*GetCapsuleResponse, error)
	EvaluateCapsule(ctx context.Context, in *EvaluateCapsuleRequest, opts ...grpc.CallOption) (*EvaluateCapsuleResponse, error)
	OpenCapsule(ctx context.Context, in *OpenCapsuleRequest, opts ...grpc.CallOption) (*OpenCapsuleResponse, error)
	ListCapsules(ctx context.Context, in *ListCapsulesRequest, opts ...grpc.CallOption) (*ListCapsulesResponse, error)
	UploadMedia(ctx context.Context, in *UploadMediaRequest, opts ...grpc.CallOption) (*UploadMediaResponse, error)
	SetOwnerEmail(ctx context.Context, in *SetOwnerEmailRequest, opts ...grpc.CallOption) (*SetOwnerEmailResponse, error)
}

type capsuleServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCapsuleServiceClient returns a client that always speaks the JSON codec.
func NewCapsuleServiceClient(cc grpc.ClientConnInterface) CapsuleServiceClient {
	return &capsuleServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *capsuleServiceClient) CreateCapsule(ctx context.Context, in *CreateCapsuleRequest, opts ...grpc.CallOption) (*CreateCapsuleResponse, error) {
	return invoke[CreateCapsuleResponse](ctx, c.cc, CreateCapsuleMethod, in, opts)
}

func (c *capsuleServiceClient) GetCapsule(ctx context.Context, in *GetCapsuleRequest, opts ...grpc.CallOption) (*GetCapsuleResponse, error) {
	return invoke[GetCapsuleResponse](ctx, c.cc, GetCapsuleMethod, in, opts)
}

func (c *capsuleServiceClient) EvaluateCapsule(ctx context.Context, in *EvaluateCapsuleRequest, opts ...grpc.CallOption) (*EvaluateCapsuleResponse, error) {
	return invoke[EvaluateCapsuleResponse](ctx, c.cc, EvaluateCapsuleMethod, in, opts)
}

func (c *capsuleServiceClient) OpenCapsule(ctx context.Context, in *OpenCapsuleRequest, opts ...grpc.CallOption) (*OpenCapsuleResponse, error) {
	return invoke[OpenCapsuleResponse](ctx, c.cc, OpenCapsuleMethod, in, opts)
}

func (c *capsuleServiceClient) ListCapsules(ctx context.Context, in *ListCapsulesRequest, opts ...grpc.CallOption) (*ListCapsulesResponse, error) {
	return invoke[ListCapsulesResponse](ctx, c.cc, ListCapsulesMethod, in, opts)
}

func (c *capsuleServiceClient) UploadMedia(ctx context.Context, in *UploadMediaRequest, opts ...grpc.CallOption) (*UploadMediaResponse, error) {
	return invoke[UploadMediaResponse](ctx, c.cc, UploadMediaMethod, in, opts)
}

func (c *capsuleServiceClient) SetOwnerEmail(ctx context.Context, in *SetOwnerEmailRequest, opts ...grpc.CallOption) (*SetOwnerEmailResponse, error) {
	return invoke[SetOwnerEmailResponse](ctx, c.cc, SetOwnerEmailMethod, in, opts)
}
