package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"investigator/internal/bootstrap/config"
	"investigator/internal/bootstrap/logging"
	"investigator/internal/errs"
	"investigator/internal/ports"
)

// NATSNotifier publishes accepted queue items so external workers can react
// without polling the queue document.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

var _ ports.Notifier = (*NATSNotifier)(nil)

func NewNATSNotifier(ctx context.Context, cfg config.NotifyConfig) (*NATSNotifier, error) {
	url := strings.TrimSpace(cfg.NATSURL)
	if url == "" {
		return nil, errors.New("notify.nats_url is required")
	}
	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		return nil, errors.New("notify.subject is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "notify.nats"))
	conn, err := nats.Connect(url,
		nats.Name("investigator"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn(logCtx, "nats disconnected", slog.Any("err", errs.Loggable(err)))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info(logCtx, "nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errs.Wrapf(err, "connect nats %q", url)
	}

	logging.Info(logCtx, "nats notifier connected", slog.String("subject", subject))
	return &NATSNotifier{conn: conn, subject: subject}, nil
}

func (n *NATSNotifier) NotifyEnqueued(_ context.Context, notice ports.EnqueuedNotice) error {
	raw, err := json.Marshal(notice)
	if err != nil {
		return errs.Wrap(err, "encode enqueued notice")
	}
	if err := n.conn.Publish(n.subject, raw); err != nil {
		return errs.Wrap(err, "publish enqueued notice")
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATSNotifier) Close() error {
	if n == nil || n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

// Nop drops every notice.
type Nop struct{}

func (Nop) NotifyEnqueued(context.Context, ports.EnqueuedNotice) error { return nil }
