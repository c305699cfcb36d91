package mail

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSGateway publishes notification messages to a NATS subject consumed by
// the mailer service. Publishing is fire-and-forget.
type NATSGateway struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

func NewNATSGateway(url string, subject string, logger *slog.Logger) (*NATSGateway, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}

	logger.Info("NATS mail gateway initialized", "url", url, "subject", subject)

	return &NATSGateway{
		conn:    nc,
		subject: subject,
		logger:  logger,
	}, nil
}

func (g *NATSGateway) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := g.conn.Publish(g.subject, payload); err != nil {
		return err
	}

	g.logger.Info("mail message published", "subject", g.subject, "template", msg.Template)
	return nil
}

func (g *NATSGateway) Close() error {
	g.conn.Close()
	return nil
}
