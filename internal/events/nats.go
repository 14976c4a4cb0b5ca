package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes every event as JSON on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	pub     publisher
	subject string
	logger  *zap.Logger
}

// ConnectNATS dials url and returns a publisher for subject.
func ConnectNATS(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("headctl"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := newPublisher(nc, subject, logger)
	p.conn = nc
	logger.Info("publishing operation events to NATS", zap.String("url", url), zap.String("subject", subject))
	return p, nil
}

func newPublisher(pub publisher, subject string, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{
		pub:     pub,
		subject: subject,
		logger:  logger.Named("nats"),
	}
}

// Notify implements Notifier. Publish only buffers, so it does not block on the network.
func (p *NATSPublisher) Notify(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal event", zap.Error(err))
		return
	}
	if err := p.pub.Publish(p.subject, data); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("operation", event.Operation),
			zap.Uint64("seq", event.Seq),
			zap.Error(err))
	}
}

// Close flushes pending events and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("failed to drain NATS connection", zap.Error(err))
		p.conn.Close()
	}
}
