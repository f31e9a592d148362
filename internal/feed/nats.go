package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the push-subject subscription.
type NATSConfig struct {
	URL     string
	Subject string
}

// NATSConsumer subscribes to the push subject and feeds every message
// through the processor. The client library handles reconnects; the
// subscription survives them.
type NATSConsumer struct {
	cfg    NATSConfig
	proc   *Processor
	logger *slog.Logger

	conn *nats.Conn
	sub  *nats.Subscription
}

// NewNATSConsumer builds a consumer; call Start to connect.
func NewNATSConsumer(cfg NATSConfig, proc *Processor, logger *slog.Logger) *NATSConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSConsumer{cfg: cfg, proc: proc, logger: logger.With("component", "nats_feed")}
}

// Start connects and subscribes. The subscription stays up until Stop.
func (c *NATSConsumer) Start() error {
	conn, err := nats.Connect(c.cfg.URL,
		nats.Name("fleet-tracker"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}

	sub, err := conn.Subscribe(c.cfg.Subject, c.handle)
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribing to %s: %w", c.cfg.Subject, err)
	}

	c.conn, c.sub = conn, sub
	c.logger.Info("nats feed started", "url", conn.ConnectedUrl(), "subject", c.cfg.Subject)
	return nil
}

func (c *NATSConsumer) handle(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	n, err := c.proc.Process(ctx, "nats", "nats:"+c.cfg.Subject, msg.Data)
	if msg.Reply == "" {
		return
	}
	ack := map[string]any{"success": err == nil, "accounts": n}
	if err != nil {
		ack["error"] = err.Error()
	}
	body, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := msg.Respond(body); err != nil {
		c.logger.Warn("nats ack failed", "error", err)
	}
}

// Stop drains the subscription and closes the connection.
func (c *NATSConsumer) Stop() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("draining nats connection", "error", err)
	}
}
