package events

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/ports"
)

// NATSSink publishes serialized events to a NATS subject tree
// ("ocpi.events.<topic>"). Downstream consumers (billing, roaming mirrors)
// subscribe there; the node itself never depends on delivery.
type NATSSink struct {
	conn *nats.Conn
	log  *zap.Logger
}

func NewNATSSink(url string, log *zap.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info("Successfully connected to NATS", zap.String("url", url))
	return &NATSSink{
		conn: nc,
		log:  log,
	}, nil
}

var _ ports.EventSink = (*NATSSink)(nil)

func (s *NATSSink) Publish(subject string, data []byte) error {
	return s.conn.Publish(subject, data)
}

func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}
