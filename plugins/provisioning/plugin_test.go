package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/climatelink/internal/config"
	"github.com/joshp123/climatelink/internal/core"
	"github.com/joshp123/climatelink/internal/firmware"
	"github.com/joshp123/climatelink/internal/ledger"
	"github.com/joshp123/climatelink/internal/notify"
	"github.com/joshp123/climatelink/internal/profiles"
	"github.com/joshp123/climatelink/internal/rpc"
	"github.com/joshp123/climatelink/internal/rpc/rpctest"
)

type published struct {
	topic   string
	payload []byte
}

type fakeBroker struct {
	mu   sync.Mutex
	msgs []published
	subs map[string]func(string, []byte)
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{topic, payload})
	return nil
}

func (b *fakeBroker) Subscribe(filter string, cb func(string, []byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[string]func(string, []byte))
	}
	b.subs[filter] = cb
	return func() {}, nil
}

func (b *fakeBroker) deliver(filter, topic string) {
	b.mu.Lock()
	cb := b.subs[filter]
	b.mu.Unlock()
	cb(topic, nil)
}

func (b *fakeBroker) last(t *testing.T) notify.Status {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.msgs)
	var s notify.Status
	require.NoError(t, json.Unmarshal(b.msgs[len(b.msgs)-1].payload, &s))
	return s
}

func readyProfile(name string) firmware.Profile {
	p := firmware.Profile{
		Name: name,
		Credentials: firmware.Credentials{
			TemplateID:   "TMPL4xYz",
			TemplateName: "Climate Relay",
			AuthToken:    "tok-secret-123",
			WiFiSSID:     "casa",
			WiFiPassword: "hunter2hunter2",
		},
		Peers: firmware.Peers{
			Central:     firmware.MustParseMAC("24:6f:28:00:00:01"),
			Transmitter: firmware.MustParseMAC("24:6f:28:00:00:02"),
		},
		CarrierKHz: firmware.DefaultCarrierKHz,
	}
	for _, unit := range firmware.TemplateUnits {
		table := firmware.NewCodeTable(unit)
		table.Length = 4
		for i, cmd := range firmware.Commands() {
			table.SetSequence(cmd, []uint16{9000, 4500, 560, uint16(560 + i)})
		}
		p.Tables = append(p.Tables, table)
	}
	return p
}

type fixture struct {
	plugin    *Plugin
	store     *profiles.DirStore
	ledger    *ledger.Ledger
	broker    *fakeBroker
	renderDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store := profiles.NewDirStore(filepath.Join(dir, "profiles"))
	require.NoError(t, store.Put(ctx, profiles.Entry{Profile: readyProfile("bedroom")}))
	require.NoError(t, store.Put(ctx, profiles.Entry{Profile: firmware.TemplateProfile("spare")}))

	l, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	broker := &fakeBroker{}
	renderDir := filepath.Join(dir, "rendered")
	plugin := NewPlugin(Options{
		Config:   &config.ProvisioningConfig{RenderDir: renderDir},
		Store:    store,
		Ledger:   l,
		Notifier: notify.NewNotifier(broker, "climatelink", zerolog.Nop()),
		Log:      zerolog.Nop(),
	})
	t.Cleanup(plugin.Close)

	return fixture{plugin: plugin, store: store, ledger: l, broker: broker, renderDir: renderDir}
}

func TestListProfilesAndHealth(t *testing.T) {
	f := newFixture(t)

	list, err := f.plugin.svc.ListProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Profiles, 2)
	assert.Equal(t, "bedroom", list.Profiles[0].Name)
	assert.True(t, list.Profiles[0].Ready)
	assert.Equal(t, "spare", list.Profiles[1].Name)
	assert.True(t, list.Profiles[1].Template)
	assert.Positive(t, list.Profiles[1].Problems)

	assert.Equal(t, core.HealthDegraded, f.plugin.Health())
	assert.Contains(t, f.plugin.HealthMessage(), "1 of 2 profiles not ready: spare")
}

func TestHealthyWhenAllReady(t *testing.T) {
	store := profiles.NewDirStore(t.TempDir())
	require.NoError(t, store.Put(context.Background(), profiles.Entry{Profile: readyProfile("bedroom")}))
	plugin := NewPlugin(Options{Store: store, Log: zerolog.Nop()})

	assert.Equal(t, core.HealthHealthy, plugin.Health())
	assert.Empty(t, plugin.HealthMessage())
}

func TestMissingStore(t *testing.T) {
	plugin := NewPlugin(Options{})
	assert.Equal(t, core.HealthError, plugin.Health())
	assert.Nil(t, plugin.Collectors())
}

func TestRenderProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.plugin.svc.RenderProfile(ctx, RenderRequest{Profile: "bedroom"})
	require.NoError(t, err)
	assert.True(t, result.Ready)
	assert.NotEmpty(t, result.RenderID)
	require.Len(t, result.Files, 2)

	for _, file := range result.Files {
		info, err := os.Stat(file.Path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		assert.Equal(t, filepath.Join(f.renderDir, "bedroom", file.Name), file.Path)
		assert.Len(t, file.SHA256, 64)
	}
	configHeader, err := os.ReadFile(filepath.Join(f.renderDir, "bedroom", firmware.ConfigHeader))
	require.NoError(t, err)
	assert.Contains(t, string(configHeader), `#define BLYNK_AUTH_TOKEN    "tok-secret-123"`)

	history, err := f.ledger.History(ctx, "bedroom", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, result.RenderID, history[0].ID)
	assert.True(t, history[0].Ready)

	st := f.broker.last(t)
	assert.Equal(t, notify.EventRender, st.Event)
	assert.Equal(t, result.RenderID, st.RenderID)
	assert.True(t, st.Ready)

	view, err := f.plugin.svc.GetProfile(ctx, "bedroom")
	require.NoError(t, err)
	require.NotNil(t, view.LastRender)
	assert.Equal(t, result.RenderID, view.LastRender.ID)
}

func TestRenderTemplateOnlyWhenAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.plugin.svc.RenderProfile(ctx, RenderRequest{Profile: "spare"})
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(grpcError(err)))

	result, err := f.plugin.svc.RenderProfile(ctx, RenderRequest{Profile: "spare", AllowTemplate: true})
	require.NoError(t, err)
	assert.False(t, result.Ready)
	assert.False(t, f.broker.last(t).Ready)
}

func TestGetProfileRedacts(t *testing.T) {
	f := newFixture(t)

	view, err := f.plugin.svc.GetProfile(context.Background(), "bedroom")
	require.NoError(t, err)
	assert.NotEqual(t, "tok-secret-123", view.Credentials.AuthToken)
	assert.NotEqual(t, "hunter2hunter2", view.Credentials.WiFiPassword)
	assert.Equal(t, "casa", view.Credentials.WiFiSSID)
	assert.Equal(t, "24:6f:28:00:00:02", view.TxMAC)
	require.Len(t, view.Tables, 2)
	assert.Equal(t, 4, view.Tables[0].Sequences["down"])

	_, err = f.plugin.svc.GetProfile(context.Background(), "attic")
	assert.Equal(t, codes.NotFound, status.Code(grpcError(err)))
}

func TestCheckRequestOverMQTT(t *testing.T) {
	f := newFixture(t)

	f.broker.deliver("climatelink/+/check", "climatelink/spare/check")
	st := f.broker.last(t)
	assert.Equal(t, "spare", st.Profile)
	assert.Equal(t, notify.EventCheck, st.Event)
	assert.False(t, st.Ready)
	assert.Positive(t, st.Problems[firmware.CodePlaceholder])
}

type offlineBroker struct{ fakeBroker }

func (b *offlineBroker) Publish(string, []byte, bool) error {
	return errors.New("not connected")
}

func TestBrokerFailureDoesNotFailCheckOrRender(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := profiles.NewDirStore(filepath.Join(dir, "profiles"))
	require.NoError(t, store.Put(ctx, profiles.Entry{Profile: readyProfile("study")}))
	l, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	plugin := NewPlugin(Options{
		Config:   &config.ProvisioningConfig{RenderDir: filepath.Join(dir, "rendered")},
		Store:    store,
		Ledger:   l,
		Notifier: notify.NewNotifier(&offlineBroker{}, "climatelink", zerolog.Nop()),
		Log:      zerolog.Nop(),
	})
	t.Cleanup(plugin.Close)

	report, err := plugin.svc.CheckProfile(ctx, "study")
	require.NoError(t, err)
	assert.True(t, report.Ready())

	before := testutil.ToFloat64(renderTotal.WithLabelValues("study", "ok"))
	result, err := plugin.svc.RenderProfile(ctx, RenderRequest{Profile: "study"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RenderID)
	assert.Equal(t, before+1, testutil.ToFloat64(renderTotal.WithLabelValues("study", "ok")))

	history, err := l.History(ctx, "study", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestServiceOverGRPC(t *testing.T) {
	f := newFixture(t)
	conn := rpctest.Dial(t, registrar{f.plugin})
	ctx := context.Background()

	out := &structpb.Struct{}
	require.NoError(t, rpc.Invoke(ctx, conn, API, "ListProfiles", &emptypb.Empty{}, out))
	var list ProfileList
	require.NoError(t, rpc.FromStruct(out, &list))
	assert.Len(t, list.Profiles, 2)

	out = &structpb.Struct{}
	require.NoError(t, rpc.Invoke(ctx, conn, API, "CheckProfile", wrapperspb.String("spare"), out))
	var report struct {
		Ready    bool               `json:"ready"`
		Problems []firmware.Problem `json:"problems"`
	}
	require.NoError(t, rpc.FromStruct(out, &report))
	assert.False(t, report.Ready)
	assert.NotEmpty(t, report.Problems)

	req, err := structpb.NewStruct(map[string]any{"profile": "spare"})
	require.NoError(t, err)
	err = rpc.Invoke(ctx, conn, API, "RenderProfile", req, &structpb.Struct{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	err = rpc.Invoke(ctx, conn, API, "GetProfile", wrapperspb.String("Bad Name"), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCollector(t *testing.T) {
	f := newFixture(t)
	collector := NewMetricsCollector(f.store)

	assert.Equal(t, 2, testutil.CollectAndCount(collector, "climatelink_profile_ready"))
	assert.Positive(t, testutil.CollectAndCount(collector, "climatelink_profile_problems"))
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "climatelink_profile_scan_success"))
}
