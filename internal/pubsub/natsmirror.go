package pubsub

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/corekv/corekv/internal/corelog"
)

// NatsMirror republishes every local PUBLISH/keyspace-notification onto
// an external NATS subject (the notify-nats-url expansion), so a
// process outside corekv can observe the same event stream. Grounded on
// the teacher's pkg/nats.Client: one *nats.Conn, a disconnect/reconnect
// handler pair logging through the same channel as everything else.
type NatsMirror struct {
	conn    *nats.Conn
	subject string
}

// DialNatsMirror connects to url and returns a mirror that publishes
// every channel's payload under subjectPrefix+"."+channel. A connection
// failure is non-fatal: corekv's own pub/sub keeps working without the
// external mirror, matching the teacher's "skip NATS, log, keep going"
// posture in pkg/nats.Connect.
func DialNatsMirror(url, subjectPrefix string) (*NatsMirror, error) {
	if url == "" {
		return nil, fmt.Errorf("pubsub: empty notify-nats-url")
	}
	conn, err := nats.Connect(url,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				corelog.Warnf("pubsub: nats mirror disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			corelog.Infof("pubsub: nats mirror reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			corelog.Errorf("pubsub: nats mirror error: %v", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("pubsub: nats connect failed: %w", err)
	}
	corelog.Infof("pubsub: nats mirror connected to %s", url)
	return &NatsMirror{conn: conn, subject: subjectPrefix}, nil
}

// Publish satisfies the Registry.Mirror hook signature.
func (m *NatsMirror) Publish(channel string, payload []byte) {
	subject := channel
	if m.subject != "" {
		subject = m.subject + "." + channel
	}
	if err := m.conn.Publish(subject, payload); err != nil {
		corelog.Errorf("pubsub: nats mirror publish to %q failed: %v", subject, err)
	}
}

func (m *NatsMirror) Close() {
	m.conn.Close()
}
