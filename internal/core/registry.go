package core

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/climatelink/internal/rpc"
)

// PluginSummary is one row of ListPlugins.
type PluginSummary struct {
	PluginID    string `json:"plugin_id"`
	DisplayName string `json:"display_name"`
	Version     string `json:"version"`
	Status      string `json:"status"`
}

// DashboardRef points at a dashboard served over HTTP.
type DashboardRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// PluginDescriptor is the DescribePlugin response.
type PluginDescriptor struct {
	PluginID      string         `json:"plugin_id"`
	DisplayName   string         `json:"display_name"`
	Version       string         `json:"version"`
	Services      []string       `json:"services"`
	Dashboards    []DashboardRef `json:"dashboards"`
	AgentsMD      string         `json:"agents_md"`
	Status        string         `json:"status"`
	HealthMessage string         `json:"health_message,omitempty"`
}

// PluginList wraps ListPlugins results; Struct responses need an object.
type PluginList struct {
	Plugins []PluginSummary `json:"plugins"`
}

// RegistryAPI describes climatelink.registry.v1.Registry without handlers,
// for clients.
var RegistryAPI = rpc.Service{
	Package: "climatelink.registry.v1",
	Name:    "Registry",
	Methods: []rpc.Method{
		{Name: "ListPlugins", Input: &emptypb.Empty{}, Output: &structpb.Struct{}},
		{Name: "DescribePlugin", Input: &wrapperspb.StringValue{}, Output: &structpb.Struct{}},
	},
}

// RegistryService provides plugin discovery to clients.
type RegistryService struct {
	plugins []Plugin
	mu      sync.RWMutex
}

func NewRegistryService(plugins []Plugin) *RegistryService {
	return &RegistryService{plugins: plugins}
}

func (r *RegistryService) ListPlugins(ctx context.Context) PluginList {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	resp := PluginList{Plugins: []PluginSummary{}}
	for _, p := range r.plugins {
		manifest := p.Manifest()
		resp.Plugins = append(resp.Plugins, PluginSummary{
			PluginID:    manifest.PluginID,
			DisplayName: manifest.DisplayName,
			Version:     manifest.Version,
			Status:      string(p.Health()),
		})
	}

	return resp
}

func (r *RegistryService) DescribePlugin(ctx context.Context, pluginID string) (PluginDescriptor, bool) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		manifest := p.Manifest()
		if manifest.PluginID != pluginID {
			continue
		}

		descriptor := PluginDescriptor{
			PluginID:      manifest.PluginID,
			DisplayName:   manifest.DisplayName,
			Version:       manifest.Version,
			Services:      manifest.Services,
			AgentsMD:      p.AgentsMD(),
			Status:        string(p.Health()),
			HealthMessage: p.HealthMessage(),
		}

		for _, d := range p.Dashboards() {
			descriptor.Dashboards = append(descriptor.Dashboards, DashboardRef{
				Name: d.Name,
				Path: DashboardPath(manifest.PluginID, d.Name),
			})
		}

		return descriptor, true
	}

	return PluginDescriptor{}, false
}

// Service binds the registry handlers to RegistryAPI.
func (r *RegistryService) Service() rpc.Service {
	svc := RegistryAPI
	svc.Methods = []rpc.Method{
		{
			Name:   "ListPlugins",
			Input:  &emptypb.Empty{},
			Output: &structpb.Struct{},
			Handler: func(ctx context.Context, _ proto.Message) (proto.Message, error) {
				out, err := rpc.ToStruct(r.ListPlugins(ctx))
				if err != nil {
					return nil, status.Error(codes.Internal, err.Error())
				}
				return out, nil
			},
		},
		{
			Name:   "DescribePlugin",
			Input:  &wrapperspb.StringValue{},
			Output: &structpb.Struct{},
			Handler: func(ctx context.Context, req proto.Message) (proto.Message, error) {
				id := req.(*wrapperspb.StringValue).GetValue()
				if id == "" {
					return nil, status.Error(codes.InvalidArgument, "plugin id is required")
				}
				descriptor, ok := r.DescribePlugin(ctx, id)
				if !ok {
					return nil, status.Errorf(codes.NotFound, "plugin %q not found", id)
				}
				out, err := rpc.ToStruct(descriptor)
				if err != nil {
					return nil, status.Error(codes.Internal, err.Error())
				}
				return out, nil
			},
		},
	}
	return svc
}

// Register publishes the registry on server.
func (r *RegistryService) Register(server *grpc.Server) error {
	return r.Service().Register(server)
}
