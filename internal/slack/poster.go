// Package slack posts monitoring alerts to a Slack channel alongside the
// email to root.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxLines caps the alert lines quoted in one message; the email has them all.
const maxLines = 20

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PublishAlert posts alert to the channel.
func (p *Poster) PublishAlert(ctx context.Context, runID uuid.UUID, alert monitor.Alert) error {
	text := formatAlertMessage(alert)

	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("%s | run %s", alert.Task, runID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted alert to slack", "ts", slackResp.TS, "task", alert.Task, "run_id", runID)
	return nil
}

func formatAlertMessage(alert monitor.Alert) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*%s* on `%s`\n", alert.Subject, alert.Host)
	if len(alert.Lines) == 0 {
		return sb.String()
	}

	lines := alert.Lines
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	sb.WriteString("```\n")
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	sb.WriteString("```")
	if extra := len(alert.Lines) - len(lines); extra > 0 {
		fmt.Fprintf(&sb, "\n_%d more lines in the email to root._", extra)
	}
	return sb.String()
}
