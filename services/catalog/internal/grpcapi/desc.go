package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName      = "catalog.v1.CatalogQuery"
	findFullMethod   = "/" + ServiceName + "/Find"
	ensureFullMethod = "/" + ServiceName + "/Ensure"
)

// CatalogQueryServer is the server API for catalog.v1.CatalogQuery. Both
// methods exchange google.protobuf.Struct using the HTTP parameter names.
type CatalogQueryServer interface {
	Find(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Ensure(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CatalogQueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Find", Handler: unaryHandler(findFullMethod, CatalogQueryServer.Find)},
		{MethodName: "Ensure", Handler: unaryHandler(ensureFullMethod, CatalogQueryServer.Ensure)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catalog/v1/catalog_query.proto",
}

func Register(s grpc.ServiceRegistrar, srv CatalogQueryServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type method func(CatalogQueryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, m method) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(CatalogQueryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(srv.(CatalogQueryServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls catalog.v1.CatalogQuery over cc.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Find(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, findFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Ensure(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ensureFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
