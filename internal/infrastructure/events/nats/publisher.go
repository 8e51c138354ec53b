package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mkravets/consultrag/internal/core/domain"
)

// Publisher emits answer-completed events for downstream consumers (the
// consultation-history recorder lives outside this service). Publishing is
// best-effort: failures are logged and never fail the request.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

func New(url, subject string, logger *slog.Logger, options Options) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("consultrag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{conn: conn, subject: subject, logger: logger}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

type answerEvent struct {
	RequestID  string    `json:"request_id"`
	Status     string    `json:"status"`
	Domains    []string  `json:"domains"`
	RetryCount int       `json:"retry_count"`
	Sources    int       `json:"sources"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	At         time.Time `json:"at"`
}

// PublishAnswerCompleted publishes a compact completion event.
func (p *Publisher) PublishAnswerCompleted(ctx context.Context, answer *domain.Answer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(answerEvent{
		RequestID:  answer.RequestID,
		Status:     string(answer.Status),
		Domains:    answer.Domains,
		RetryCount: answer.RetryCount,
		Sources:    len(answer.Sources),
		ElapsedMS:  answer.Timings.Total.Milliseconds(),
		At:         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal answer event: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}
