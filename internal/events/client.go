// Package events is anderson's NATS surface: it announces stored insights
// and finished jobs to the swarm and accepts external ingest triggers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects owned by anderson.
const (
	SubjectInsightStored = "swarm.anderson.insight.stored"
	SubjectJobCompleted  = "swarm.anderson.job.completed"
	SubjectJobFailed     = "swarm.anderson.job.failed"
	SubjectIngestTrigger = "swarm.anderson.ingest.trigger"
)

// InsightStored is published once per newly persisted insight.
type InsightStored struct {
	InsightID      string  `json:"insight_id"`
	ConversationID string  `json:"conversation_id"`
	Type           string  `json:"type"`
	Category       string  `json:"category"`
	Title          string  `json:"title"`
	Confidence     float64 `json:"confidence"`
}

// JobResult is published when a scheduled job finishes.
type JobResult struct {
	Job      string `json:"job"`
	RunID    string `json:"run_id"`
	Detail   string `json:"detail,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// IngestTrigger asks anderson to run an ingest cycle. An empty Path means
// a full sweep of the configured history directories.
type IngestTrigger struct {
	Path string `json:"path,omitempty"`
}

// ParseIngestTrigger decodes a trigger payload. A malformed payload is
// logged and treated as a full-sweep request.
func ParseIngestTrigger(data []byte, logger *slog.Logger) IngestTrigger {
	var trig IngestTrigger
	if len(data) > 0 {
		if err := json.Unmarshal(data, &trig); err != nil {
			logger.Warn("malformed ingest trigger", "error", err)
		}
	}
	return trig
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
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

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
