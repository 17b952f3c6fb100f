// Package events publishes Session Engine lifecycle events onto a
// NATS subject, best-effort and never blocking the caller — the same
// role xzhiot-lorawan_server's network.Processor gives nc.Publish for
// uplink/join events, just aimed at license lifecycle instead of
// LoRaWAN traffic. A Publisher is entirely optional: nothing in
// internal/session depends on one existing, and delivery failures are
// logged, never surfaced to the session.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/fpga-edge/drm-agent-go/internal/session"
)

// Message is the wire shape published for every session.Event.
type Message struct {
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Time      time.Time `json:"time"`
}

// Publisher forwards session.Event values to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
	log     zerolog.Logger
}

// Connect dials the NATS server at url and returns a Publisher that
// publishes to subject. Reconnection is handled by the nats.go client
// itself, matching how the teacher's cmd/*/main.go configures
// nats.Connect.
func Connect(url, subject string, log zerolog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, subject: subject, log: log}, nil
}

// Close closes the underlying NATS connection without draining it.
func (p *Publisher) Close() {
	p.nc.Close()
}

// OnEvent adapts the Publisher into the func(session.Event) callback
// shape session.Options.OnEvent expects, so cmd/drm-agentd can wire it
// in directly alongside (never instead of) the async-error callback.
func (p *Publisher) OnEvent(ev session.Event) {
	msg := Message{
		Kind:      string(ev.Kind),
		SessionID: ev.SessionID,
		State:     ev.State.String(),
		Time:      timeNow(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn().Err(err).Msg("marshal session event for publish")
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		p.log.Warn().Err(err).Str("subject", p.subject).Msg("publish session event")
	}
}

// timeNow is a seam so tests could stub the timestamp; production
// always uses the wall clock.
var timeNow = time.Now
