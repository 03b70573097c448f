// Package hermes publishes monitoring alerts to NATS so that other services
// can react to them without reading root's mailbox.
package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
)

// SubjectAlertPrefix is followed by the task name, e.g. clustermon.alert.msm.
const SubjectAlertPrefix = "clustermon.alert."

const flushTimeout = 5 * time.Second

// AlertEvent is the JSON payload published for every mailed alert.
type AlertEvent struct {
	ID      string    `json:"id"`
	RunID   string    `json:"run_id"`
	Task    string    `json:"task"`
	Host    string    `json:"host"`
	Subject string    `json:"subject"`
	Lines   []string  `json:"lines"`
	At      time.Time `json:"at"`
}

// AlertSubject returns the subject an alert for task is published on.
func AlertSubject(task string) string {
	return SubjectAlertPrefix + task
}

func NewAlertEvent(runID uuid.UUID, alert monitor.Alert) AlertEvent {
	return AlertEvent{
		ID:      uuid.NewString(),
		RunID:   runID.String(),
		Task:    alert.Task,
		Host:    alert.Host,
		Subject: alert.Subject,
		Lines:   alert.Lines,
		At:      alert.At.UTC(),
	}
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewClient connects to url. Cron runs are short, so unlike a daemon it does
// not keep retrying: a server that is down is reported straight away.
func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("clustermon"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(3),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// PublishAlert publishes alert and waits for the server to acknowledge it,
// since the process usually exits right afterwards.
func (c *Client) PublishAlert(ctx context.Context, runID uuid.UUID, alert monitor.Alert) error {
	subject := AlertSubject(alert.Task)
	if err := c.Publish(subject, NewAlertEvent(runID, alert)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := c.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	c.logger.Debug("alert published", "subject", subject, "run_id", runID)
	return nil
}

func (c *Client) Close() {
	c.conn.Close()
}
