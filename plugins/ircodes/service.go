package ircodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/climatelink/internal/firmware"
	"github.com/joshp123/climatelink/internal/profiles"
	"github.com/joshp123/climatelink/internal/rpc"
)

// ErrUnitNotFound is returned for a unit the profile does not declare.
var ErrUnitNotFound = errors.New("unit not found")

// API describes climatelink.ircodes.v1.IRCodeService for clients.
var API = rpc.Service{
	Package: "climatelink.ircodes.v1",
	Name:    "IRCodeService",
	Methods: []rpc.Method{
		{Name: "ListTables", Input: &wrapperspb.StringValue{}, Output: &structpb.Struct{}},
		{Name: "GetTable", Input: &structpb.Struct{}, Output: &structpb.Struct{}},
	},
}

type service struct {
	store profiles.Store
}

func RegisterIRCodeService(server *grpc.Server, s *service) error {
	svc := API
	svc.Methods = []rpc.Method{
		{Name: "ListTables", Input: &wrapperspb.StringValue{}, Output: &structpb.Struct{}, Handler: s.handleList},
		{Name: "GetTable", Input: &structpb.Struct{}, Output: &structpb.Struct{}, Handler: s.handleGet},
	}
	return svc.Register(server)
}

func (s *service) ListTables(ctx context.Context, profile string) (TableList, error) {
	entry, err := s.store.Get(ctx, profile)
	if err != nil {
		return TableList{}, err
	}
	p := entry.Profile
	out := TableList{Profile: p.Name, CarrierKHz: p.CarrierKHz, Tables: []TableSummary{}}
	for _, t := range p.Tables {
		summary := TableSummary{
			Unit:            t.Unit,
			Length:          t.Length,
			EffectiveLength: t.EffectiveLength(),
			Sequences:       make(map[string]int),
			Valid:           true,
		}
		for _, cmd := range firmware.Commands() {
			summary.Sequences[commandKey(cmd)] = len(t.Sequence(cmd))
		}
		if err := t.Validate(); err != nil {
			summary.Valid = false
			summary.Error = err.Error()
		}
		out.Tables = append(out.Tables, summary)
	}
	return out, nil
}

func (s *service) GetTable(ctx context.Context, req TableRequest) (Table, error) {
	entry, err := s.store.Get(ctx, req.Profile)
	if err != nil {
		return Table{}, err
	}
	unit := strings.ToUpper(strings.TrimSpace(req.Unit))
	t, ok := entry.Profile.Table(unit)
	if !ok {
		return Table{}, fmt.Errorf("%w: %s in profile %s", ErrUnitNotFound, unit, req.Profile)
	}
	out := Table{
		Profile:    entry.Profile.Name,
		Unit:       t.Unit,
		CarrierKHz: entry.Profile.CarrierKHz,
		Length:     t.EffectiveLength(),
		Sequences:  make(map[string][]uint16),
	}
	for _, cmd := range firmware.Commands() {
		seq := t.Sequence(cmd)
		if seq == nil {
			seq = []uint16{}
		}
		out.Sequences[commandKey(cmd)] = seq
	}
	return out, nil
}

func (s *service) handleList(ctx context.Context, req proto.Message) (proto.Message, error) {
	name := req.(*wrapperspb.StringValue).GetValue()
	if err := firmware.ValidateName(name); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	list, err := s.ListTables(ctx, name)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(list)
}

func (s *service) handleGet(ctx context.Context, req proto.Message) (proto.Message, error) {
	var in TableRequest
	if err := rpc.FromStruct(req.(*structpb.Struct), &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := firmware.ValidateName(in.Profile); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if in.Unit == "" {
		return nil, status.Error(codes.InvalidArgument, "unit is required")
	}
	table, err := s.GetTable(ctx, in)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(table)
}

func commandKey(cmd firmware.Command) string {
	return strings.ToLower(cmd.String())
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
	case errors.Is(err, profiles.ErrNotFound), errors.Is(err, ErrUnitNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
