package notify

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// Subject prefix for published events; the event type is appended, e.g.
// vncguard.events.ip_blocked.
const subjectPrefix = "vncguard.events."

// NATSSink publishes events to a NATS subject per event type.
type NATSSink struct {
	conn *nats.Conn
}

// NewNATSSink connects to the given NATS URL. An empty URL is a
// configuration error; callers should skip constructing the sink instead.
func NewNATSSink(url string) (*NATSSink, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url is empty")
	}

	conn, err := nats.Connect(url,
		nats.Name("vncguard"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSSink{conn: conn}, nil
}

func (n *NATSSink) Publish(event Event) {
	data, err := event.Encode()
	if err != nil {
		logPublish("nats", err)
		return
	}

	msg := &nats.Msg{
		Subject: subjectPrefix + event.Type,
		Data:    data,
		Header: nats.Header{
			"Event-Id":     []string{event.ID},
			"Content-Type": []string{"application/json"},
		},
	}
	logPublish("nats", n.conn.PublishMsg(msg))
}

func (n *NATSSink) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}
