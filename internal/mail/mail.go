package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
)

const (
	DefaultRelay     = "localhost:25"
	DefaultRecipient = "root"
)

// Message is a plain-text email.
type Message struct {
	To      string
	From    string
	Subject string
	Body    string
}

// Notifier delivers a message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

var _ Notifier = (*SMTP)(nil)

// SMTP sends through a local relay without authentication. Each call opens
// and closes its own connection and makes a single attempt.
type SMTP struct {
	relay    string
	heloName string
	now      func() time.Time
	logger   *slog.Logger
}

func NewSMTP(relay, heloName string, logger *slog.Logger) *SMTP {
	if relay == "" {
		relay = DefaultRelay
	}
	if heloName == "" {
		heloName = "localhost"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTP{relay: relay, heloName: heloName, now: time.Now, logger: logger}
}

// Notify sends msg. Every relay error wraps monitor.ErrNotificationFailure.
func (s *SMTP) Notify(ctx context.Context, msg Message) error {
	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("send mail via %s: %v: %w", s.relay, err, monitor.ErrNotificationFailure)
	}
	s.logger.Info("alert mailed", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (s *SMTP) send(ctx context.Context, msg Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.relay)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	host, _, err := net.SplitHostPort(s.relay)
	if err != nil {
		host = s.relay
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("greeting: %w", err)
	}
	defer c.Close()

	if err := c.Hello(s.heloName); err != nil {
		return fmt.Errorf("helo: %w", err)
	}
	if err := c.Mail(msg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := wc.Write(formatMessage(msg, s.now(), messageID(s.heloName))); err != nil {
		wc.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return c.Quit()
}

func messageID(host string) string {
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), host)
}

func formatMessage(msg Message, date time.Time, id string) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", msg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", id)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\r\n") {
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}
