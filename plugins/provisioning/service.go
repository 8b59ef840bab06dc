package provisioning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/climatelink/internal/firmware"
	"github.com/joshp123/climatelink/internal/headers"
	"github.com/joshp123/climatelink/internal/ledger"
	"github.com/joshp123/climatelink/internal/notify"
	"github.com/joshp123/climatelink/internal/profiles"
	"github.com/joshp123/climatelink/internal/rpc"
)

// API describes climatelink.provisioning.v1.ProvisioningService for clients.
var API = rpc.Service{
	Package: "climatelink.provisioning.v1",
	Name:    "ProvisioningService",
	Methods: []rpc.Method{
		{Name: "ListProfiles", Input: &emptypb.Empty{}, Output: &structpb.Struct{}},
		{Name: "GetProfile", Input: &wrapperspb.StringValue{}, Output: &structpb.Struct{}},
		{Name: "CheckProfile", Input: &wrapperspb.StringValue{}, Output: &structpb.Struct{}},
		{Name: "RenderProfile", Input: &structpb.Struct{}, Output: &structpb.Struct{}},
	},
}

type service struct {
	store     profiles.Store
	ledger    *ledger.Ledger
	notifier  *notify.Notifier
	renderDir string
	log       zerolog.Logger
}

func RegisterProvisioningService(server *grpc.Server, s *service) error {
	svc := API
	svc.Methods = []rpc.Method{
		{Name: "ListProfiles", Input: &emptypb.Empty{}, Output: &structpb.Struct{}, Handler: s.handleList},
		{Name: "GetProfile", Input: &wrapperspb.StringValue{}, Output: &structpb.Struct{}, Handler: s.handleGet},
		{Name: "CheckProfile", Input: &wrapperspb.StringValue{}, Output: &structpb.Struct{}, Handler: s.handleCheck},
		{Name: "RenderProfile", Input: &structpb.Struct{}, Output: &structpb.Struct{}, Handler: s.handleRender},
	}
	return svc.Register(server)
}

func (s *service) ListProfiles(ctx context.Context) (ProfileList, error) {
	scanned, err := profiles.Scan(ctx, s.store)
	if err != nil {
		return ProfileList{}, err
	}
	resp := ProfileList{Profiles: []ProfileSummary{}}
	for _, sc := range scanned {
		summary := ProfileSummary{Name: sc.Name}
		if sc.Err != nil {
			summary.Error = sc.Err.Error()
			resp.Profiles = append(resp.Profiles, summary)
			continue
		}
		report := sc.Entry.Profile.Readiness()
		summary.Ready = report.Ready()
		summary.Template = sc.Entry.Profile.IsTemplate()
		summary.Problems = len(report.Problems)
		resp.Profiles = append(resp.Profiles, summary)
	}
	return resp, nil
}

func (s *service) GetProfile(ctx context.Context, name string) (ProfileView, error) {
	entry, err := s.store.Get(ctx, name)
	if err != nil {
		return ProfileView{}, err
	}
	view := newProfileView(entry.Profile)
	if entry.Refs.AuthTokenFile != "" {
		view.SecretFiles = append(view.SecretFiles, entry.Refs.AuthTokenFile)
	}
	if entry.Refs.WiFiPasswordFile != "" {
		view.SecretFiles = append(view.SecretFiles, entry.Refs.WiFiPasswordFile)
	}
	if s.ledger != nil {
		last, ok, err := s.ledger.Last(ctx, name)
		if err != nil {
			return ProfileView{}, err
		}
		if ok {
			view.LastRender = &last
		}
	}
	return view, nil
}

// CheckProfile runs the readiness checks and publishes the result.
func (s *service) CheckProfile(ctx context.Context, name string) (firmware.Report, error) {
	entry, err := s.store.Get(ctx, name)
	if err != nil {
		return firmware.Report{}, err
	}
	report := entry.Profile.Readiness()
	if report.Problems == nil {
		report.Problems = []firmware.Problem{}
	}
	s.publish(notify.StatusFromReport(notify.EventCheck, report))
	return report, nil
}

// RenderProfile renders the headers, writes them under the render dir,
// records the render and publishes the new status.
func (s *service) RenderProfile(ctx context.Context, req RenderRequest) (RenderResult, error) {
	entry, err := s.store.Get(ctx, req.Profile)
	if err != nil {
		return RenderResult{}, err
	}
	p := entry.Profile
	report := p.Readiness()

	files, err := headers.Render(p, headers.Options{AllowTemplate: req.AllowTemplate})
	if err != nil {
		renderTotal.WithLabelValues(p.Name, "refused").Inc()
		return RenderResult{}, err
	}

	result := RenderResult{Profile: p.Name, Ready: report.Ready()}
	sums := files.Checksums()
	for _, name := range files.Names() {
		rf := RenderedFile{Name: name, SHA256: sums[name], Bytes: len(files[name])}
		if s.renderDir != "" {
			path, err := writeRendered(s.renderDir, p.Name, name, files[name])
			if err != nil {
				renderTotal.WithLabelValues(p.Name, "error").Inc()
				return RenderResult{}, err
			}
			rf.Path = path
		}
		result.Files = append(result.Files, rf)
	}

	st := notify.StatusFromReport(notify.EventRender, report)
	if s.ledger != nil {
		rec, err := s.ledger.Record(ctx, ledger.Render{
			Profile:      p.Name,
			Ready:        report.Ready(),
			Problems:     len(report.Problems),
			ConfigSHA256: sums[firmware.ConfigHeader],
			IRSHA256:     sums[firmware.IRHeader],
		})
		if err != nil {
			renderTotal.WithLabelValues(p.Name, "error").Inc()
			return RenderResult{}, err
		}
		result.RenderID = rec.ID
		st.RenderID = rec.ID
	}
	s.publish(st)

	renderTotal.WithLabelValues(p.Name, "ok").Inc()
	return result, nil
}

// publish is best effort. The broker copy is advisory and the report or
// render has already completed locally.
func (s *service) publish(st notify.Status) {
	if err := s.notifier.Publish(st); err != nil {
		s.log.Warn().Err(err).Str("profile", st.Profile).Str("event", st.Event).Msg("publish status")
	}
}

func writeRendered(root, profile, name string, data []byte) (string, error) {
	dir := filepath.Join(root, profile)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create render dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func (s *service) handleList(ctx context.Context, _ proto.Message) (proto.Message, error) {
	resp, err := s.ListProfiles(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(resp)
}

func (s *service) handleGet(ctx context.Context, req proto.Message) (proto.Message, error) {
	name, err := profileName(req)
	if err != nil {
		return nil, err
	}
	view, err := s.GetProfile(ctx, name)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(view)
}

func (s *service) handleCheck(ctx context.Context, req proto.Message) (proto.Message, error) {
	name, err := profileName(req)
	if err != nil {
		return nil, err
	}
	report, err := s.CheckProfile(ctx, name)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(struct {
		firmware.Report
		Ready bool `json:"ready"`
	}{report, report.Ready()})
}

func (s *service) handleRender(ctx context.Context, req proto.Message) (proto.Message, error) {
	var in RenderRequest
	if err := rpc.FromStruct(req.(*structpb.Struct), &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if in.Profile == "" {
		return nil, status.Error(codes.InvalidArgument, "profile is required")
	}
	result, err := s.RenderProfile(ctx, in)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(result)
}

func profileName(req proto.Message) (string, error) {
	name := req.(*wrapperspb.StringValue).GetValue()
	if name == "" {
		return "", status.Error(codes.InvalidArgument, "profile name is required")
	}
	if err := firmware.ValidateName(name); err != nil {
		return "", status.Error(codes.InvalidArgument, err.Error())
	}
	return name, nil
}

func toStruct(v any) (proto.Message, error) {
	out, err := rpc.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, profiles.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, headers.ErrNotReady), errors.Is(err, profiles.ErrSideFilesMissing):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
