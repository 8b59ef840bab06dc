package notify

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/climatelink/internal/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startBroker(t *testing.T) string {
	t.Helper()
	addr := freeAddr(t)
	server := mqttserver.New(&mqttserver.Options{})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{ID: "test", Address: addr})))
	go func() { _ = server.Serve() }()
	t.Cleanup(func() { _ = server.Close() })
	return addr
}

func TestCheckHandlerPublishesFromCallback(t *testing.T) {
	addr := startBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := Dial(ctx, &config.MQTTConfig{Broker: "tcp://" + addr, ClientID: "climatelink-test"})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.True(t, client.Connected())

	n := NewNotifier(client, "climatelink", zerolog.Nop())
	var handled atomic.Int32
	unsub, err := n.OnCheck(func(profile string) {
		if err := n.Publish(Status{Profile: profile, Event: EventCheck}); err == nil {
			handled.Add(1)
		}
	})
	require.NoError(t, err)
	defer unsub()

	opts := mqtt.NewClientOptions().AddBroker("tcp://" + addr).SetClientID("operator")
	operator := mqtt.NewClient(opts)
	token := operator.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { operator.Disconnect(100) })

	const burst = 50
	for i := 0; i < burst; i++ {
		tok := operator.Publish(fmt.Sprintf("climatelink/unit%d/check", i), 1, false, []byte{})
		require.True(t, tok.WaitTimeout(5*time.Second))
		require.NoError(t, tok.Error())
	}

	assert.Eventually(t, func() bool { return handled.Load() == burst }, 10*time.Second, 20*time.Millisecond)
}

func TestDialUnreachableBroker(t *testing.T) {
	addr := freeAddr(t)
	cfg := &config.MQTTConfig{Broker: "tcp://" + addr}

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := Dial(ctx, cfg)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("keeps retrying", func(t *testing.T) {
		prev := connectWait
		connectWait = 200 * time.Millisecond
		t.Cleanup(func() { connectWait = prev })

		client, err := Dial(context.Background(), cfg)
		require.NoError(t, err)
		t.Cleanup(client.Close)
		assert.False(t, client.Connected())

		unsub, err := client.Subscribe("climatelink/+/check", func(string, []byte) {})
		require.NoError(t, err)
		unsub()
	})
}
