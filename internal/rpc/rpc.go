// Package rpc builds gRPC services whose requests and responses are
// protobuf well-known types. Descriptors are assembled at startup and
// registered globally so server reflection and grpcurl can see them.
package rpc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Handler serves one unary method.
type Handler func(ctx context.Context, req proto.Message) (proto.Message, error)

// Method is a unary method. Input and Output are prototypes; only their
// type is used.
type Method struct {
	Name    string
	Input   proto.Message
	Output  proto.Message
	Handler Handler
}

// Service is a named set of unary methods under a proto package.
type Service struct {
	Package string
	Name    string
	Methods []Method
}

// FullName is the fully qualified service name, e.g.
// climatelink.registry.v1.Registry.
func (s Service) FullName() string {
	return s.Package + "." + s.Name
}

// MethodPath is the HTTP/2 path gRPC uses for a method.
func (s Service) MethodPath(method string) string {
	return "/" + s.FullName() + "/" + method
}

// FilePath is the synthetic .proto path the descriptor is registered under.
func (s Service) FilePath() string {
	return strings.ReplaceAll(s.Package, ".", "/") + "/" + toSnake(s.Name) + ".proto"
}

var registerMu sync.Mutex

// Descriptor builds and globally registers the service's file descriptor.
// Registering the same service twice returns the existing descriptor.
func (s Service) Descriptor() (protoreflect.ServiceDescriptor, error) {
	registerMu.Lock()
	defer registerMu.Unlock()

	if fd, err := protoregistry.GlobalFiles.FindFileByPath(s.FilePath()); err == nil {
		sd := fd.Services().ByName(protoreflect.Name(s.Name))
		if sd == nil {
			return nil, fmt.Errorf("file %s already registered without service %s", s.FilePath(), s.Name)
		}
		return sd, nil
	}

	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String(s.FilePath()),
		Package: proto.String(s.Package),
		Syntax:  proto.String("proto3"),
	}
	deps := make(map[string]bool)
	sdp := &descriptorpb.ServiceDescriptorProto{Name: proto.String(s.Name)}
	for _, m := range s.Methods {
		if m.Input == nil || m.Output == nil || m.Handler == nil {
			return nil, fmt.Errorf("method %s.%s is incomplete", s.Name, m.Name)
		}
		in := m.Input.ProtoReflect().Descriptor()
		out := m.Output.ProtoReflect().Descriptor()
		for _, d := range []protoreflect.MessageDescriptor{in, out} {
			path := d.ParentFile().Path()
			if !deps[path] {
				deps[path] = true
				fdp.Dependency = append(fdp.Dependency, path)
			}
		}
		sdp.Method = append(sdp.Method, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.Name),
			InputType:  proto.String("." + string(in.FullName())),
			OutputType: proto.String("." + string(out.FullName())),
		})
	}
	fdp.Service = []*descriptorpb.ServiceDescriptorProto{sdp}

	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("build descriptor %s: %w", s.FullName(), err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("register descriptor %s: %w", s.FullName(), err)
	}
	return fd.Services().Get(0), nil
}

// ServiceDesc converts the service into a grpc.ServiceDesc.
func (s Service) ServiceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: s.FullName(),
		HandlerType: (*any)(nil),
		Metadata:    s.FilePath(),
	}
	for _, m := range s.Methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m.Name,
			Handler:    unaryHandler(m, s.MethodPath(m.Name)),
		})
	}
	return desc
}

// Register publishes the descriptor and registers the service on server.
func (s Service) Register(server *grpc.Server) error {
	if _, err := s.Descriptor(); err != nil {
		return err
	}
	server.RegisterService(s.ServiceDesc(), struct{}{})
	return nil
}

func unaryHandler(m Method, fullMethod string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := m.Input.ProtoReflect().New().Interface()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m.Handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return m.Handler(ctx, req.(proto.Message))
		})
	}
}

// Invoke calls a unary method on conn.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, s Service, method string, in, out proto.Message) error {
	return conn.Invoke(ctx, s.MethodPath(method), in, out)
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
