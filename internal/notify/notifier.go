// Package notify publishes profile status to an MQTT broker and listens for
// operator check requests.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshp123/climatelink/internal/firmware"
)

const (
	statusSuffix = "status"
	checkSuffix  = "check"
)

// Event names carried in Status.Event.
const (
	EventCheck  = "check"
	EventRender = "render"
)

// Publisher is the broker surface the notifier needs. *Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(filter string, cb func(topic string, payload []byte)) (func(), error)
}

// Status is the retained per-profile message. It never carries credential
// values, only readiness.
type Status struct {
	Profile   string         `json:"profile"`
	Event     string         `json:"event"`
	Ready     bool           `json:"ready"`
	Problems  map[string]int `json:"problems,omitempty"`
	Fields    []string       `json:"fields,omitempty"`
	RenderID  string         `json:"render_id,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// StatusFromReport summarises a readiness report.
func StatusFromReport(event string, r firmware.Report) Status {
	s := Status{
		Profile: r.Profile,
		Event:   event,
		Ready:   r.Ready(),
	}
	if !s.Ready {
		s.Problems = r.Codes()
		s.Fields = r.Fields()
	}
	return s
}

// Notifier publishes to <prefix>/<profile>/status. A nil *Notifier is a
// valid no-op so callers need not check whether MQTT is configured.
type Notifier struct {
	pub    Publisher
	prefix string
	log    zerolog.Logger
	now    func() time.Time
}

func NewNotifier(pub Publisher, prefix string, log zerolog.Logger) *Notifier {
	return &Notifier{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "/"),
		log:    log,
		now:    time.Now,
	}
}

func (n *Notifier) StatusTopic(profile string) string {
	return n.prefix + "/" + profile + "/" + statusSuffix
}

func (n *Notifier) Publish(s Status) error {
	if n == nil {
		return nil
	}
	if s.Profile == "" {
		return fmt.Errorf("publish status: profile is required")
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = n.now().UTC()
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := n.pub.Publish(n.StatusTopic(s.Profile), payload, true); err != nil {
		return fmt.Errorf("publish status %s: %w", s.Profile, err)
	}
	n.log.Debug().Str("profile", s.Profile).Str("event", s.Event).Bool("ready", s.Ready).Msg("published status")
	return nil
}

// OnCheck calls handle with the profile name whenever a message arrives on
// <prefix>/<profile>/check. The payload is ignored.
func (n *Notifier) OnCheck(handle func(profile string)) (func(), error) {
	if n == nil {
		return func() {}, nil
	}
	filter := n.prefix + "/+/" + checkSuffix
	return n.pub.Subscribe(filter, func(topic string, _ []byte) {
		profile, ok := n.profileFromTopic(topic, checkSuffix)
		if !ok {
			return
		}
		if err := firmware.ValidateName(profile); err != nil {
			n.log.Warn().Str("topic", topic).Msg("ignoring check request for invalid profile name")
			return
		}
		handle(profile)
	})
}

func (n *Notifier) profileFromTopic(topic, suffix string) (string, bool) {
	rest := strings.TrimPrefix(topic, n.prefix+"/")
	if rest == topic {
		return "", false
	}
	profile, tail, ok := strings.Cut(rest, "/")
	if !ok || tail != suffix {
		return "", false
	}
	return profile, true
}
