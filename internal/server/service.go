package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "docscan.v1.DocumentService"

// DocumentServiceServer is the server API. Requests carry a document id or,
// for Export, an optional owner id.
type DocumentServiceServer interface {
	Submit(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Resubmit(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetExtractedData(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Export(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

func unary[Req any, Resp proto.Message](method string, call func(DocumentServiceServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DocumentServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DocumentServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes DocumentService without generated stubs; every
// message is a protobuf well-known type.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DocumentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Submit", DocumentServiceServer.Submit),
		unary("Resubmit", DocumentServiceServer.Resubmit),
		unary("GetStatus", DocumentServiceServer.GetStatus),
		unary("GetExtractedData", DocumentServiceServer.GetExtractedData),
		unary("Export", DocumentServiceServer.Export),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docscan/v1/documents.proto",
}

func RegisterDocumentServiceServer(s grpc.ServiceRegistrar, srv DocumentServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// DocumentClient calls DocumentService over an established connection.
type DocumentClient struct {
	cc grpc.ClientConnInterface
}

func NewDocumentClient(cc grpc.ClientConnInterface) *DocumentClient {
	return &DocumentClient{cc: cc}
}

func (c *DocumentClient) call(ctx context.Context, method, arg string, out proto.Message, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, wrapperspb.String(arg), out, opts...)
}

func (c *DocumentClient) Submit(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.call(ctx, "Submit", id, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DocumentClient) Resubmit(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.call(ctx, "Resubmit", id, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DocumentClient) GetStatus(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.call(ctx, "GetStatus", id, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DocumentClient) GetExtractedData(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.call(ctx, "GetExtractedData", id, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DocumentClient) Export(ctx context.Context, ownerID string, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.call(ctx, "Export", ownerID, out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}
