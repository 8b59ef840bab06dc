package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/joshp123/climatelink/internal/blob"
	"github.com/joshp123/climatelink/internal/config"
)

const qos = 1

var (
	// connectWait bounds how long Dial blocks on the first connection. Past
	// it the client keeps retrying in the background.
	connectWait = 10 * time.Second
	opTimeout   = 10 * time.Second
)

// Client is a paho connection with per-filter callback fan-out. Filters may
// use MQTT + and # wildcards.
type Client struct {
	client mqtt.Client
	mu     sync.Mutex
	subs   map[string]map[int]func(string, []byte)
	nextID int
}

// Dial connects to the broker in cfg. The password, if any, is read from
// cfg.PasswordFile. An unreachable broker does not fail Dial: after
// connectWait the client is returned unconnected and keeps retrying, and
// subscriptions registered meanwhile are sent once it connects. Cancelling
// ctx aborts the attempt.
func Dial(ctx context.Context, cfg *config.MQTTConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing mqtt config")
	}
	broker, useTLS, err := brokerURL(cfg.Broker)
	if err != nil {
		return nil, err
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	if useTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.PasswordFile != "" {
		password, err := blob.ReadSecretFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read mqtt password: %w", err)
		}
		opts.SetPassword(password)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "climatelink-" + uuid.NewString()[:8]
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	// Check handlers publish from the callback goroutine.
	opts.SetOrderMatters(false)

	mc := &Client{subs: make(map[string]map[int]func(string, []byte))}
	opts.SetDefaultPublishHandler(mc.dispatch)
	opts.OnConnect = func(_ mqtt.Client) {
		mc.resubscribeAll()
	}
	mc.client = mqtt.NewClient(opts)

	token := mc.client.Connect()
	timer := time.NewTimer(connectWait)
	defer timer.Stop()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect mqtt: %w", err)
		}
	case <-ctx.Done():
		mc.client.Disconnect(0)
		return nil, fmt.Errorf("connect mqtt: %w", ctx.Err())
	case <-timer.C:
	}
	return mc, nil
}

// Connected reports whether the broker connection is currently up.
func (c *Client) Connected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Client) Subscribe(filter string, cb func(topic string, payload []byte)) (func(), error) {
	c.mu.Lock()
	if c.subs[filter] == nil {
		c.subs[filter] = make(map[int]func(string, []byte))
	}
	id := c.nextID
	c.nextID++
	c.subs[filter][id] = cb
	needSubscribe := len(c.subs[filter]) == 1
	c.mu.Unlock()

	// While disconnected OnConnect sends the filter.
	if needSubscribe && c.client.IsConnectionOpen() {
		if err := wait(c.client.Subscribe(filter, qos, nil), "subscribe "+filter); err != nil {
			return nil, err
		}
	}

	return func() {
		c.mu.Lock()
		callbacks := c.subs[filter]
		if callbacks == nil {
			c.mu.Unlock()
			return
		}
		delete(callbacks, id)
		shouldUnsub := len(callbacks) == 0
		if shouldUnsub {
			delete(c.subs, filter)
		}
		c.mu.Unlock()
		if shouldUnsub && c.client.IsConnectionOpen() {
			_ = wait(c.client.Unsubscribe(filter), "unsubscribe "+filter)
		}
	}, nil
}

func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	return wait(c.client.Publish(topic, qos, retained, payload), "publish "+topic)
}

func (c *Client) Close() {
	c.client.Disconnect(250)
}

func (c *Client) dispatch(_ mqtt.Client, msg mqtt.Message) {
	c.mu.Lock()
	var list []func(string, []byte)
	for filter, callbacks := range c.subs {
		if !MatchTopic(filter, msg.Topic()) {
			continue
		}
		for _, cb := range callbacks {
			list = append(list, cb)
		}
	}
	c.mu.Unlock()
	for _, cb := range list {
		cb(msg.Topic(), msg.Payload())
	}
}

func (c *Client) resubscribeAll() {
	c.mu.Lock()
	filters := make([]string, 0, len(c.subs))
	for filter := range c.subs {
		filters = append(filters, filter)
	}
	c.mu.Unlock()
	for _, filter := range filters {
		_ = wait(c.client.Subscribe(filter, qos, nil), "subscribe "+filter)
	}
}

func wait(token mqtt.Token, op string) error {
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("%s: timed out after %s", op, opTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MatchTopic reports whether topic matches an MQTT subscription filter.
func MatchTopic(filter, topic string) bool {
	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")
	for i, f := range fparts {
		if f == "#" {
			return true
		}
		if i >= len(tparts) {
			return false
		}
		if f != "+" && f != tparts[i] {
			return false
		}
	}
	return len(fparts) == len(tparts)
}

func brokerURL(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("mqtt broker is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "tcp://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse mqtt broker: %w", err)
	}
	if u.Hostname() == "" {
		return "", false, fmt.Errorf("invalid mqtt broker %q", raw)
	}
	switch u.Scheme {
	case "tcp", "mqtt":
		return "tcp://" + hostPort(u, "1883"), false, nil
	case "ssl", "tls", "mqtts":
		return "ssl://" + hostPort(u, "8883"), true, nil
	default:
		return "", false, fmt.Errorf("unsupported mqtt scheme %q", u.Scheme)
	}
}

func hostPort(u *url.URL, defaultPort string) string {
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(u.Hostname(), port)
}
