// File: internal/infra/kafka/publisher.go
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"companion-billing/internal/config"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/adapter"
)

const writeTimeout = 15 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// LedgerEntryMessage is the JSON value published for each committed entry.
type LedgerEntryMessage struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	SubscriptionID *string    `json:"subscription_id,omitempty"`
	Coins          int64      `json:"coins"`
	SourceType     string     `json:"source_type"`
	SourceID       string     `json:"source_id,omitempty"`
	OrderID        string     `json:"order_id,omitempty"`
	Description    string     `json:"description"`
	PeriodStart    *time.Time `json:"period_start,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Publisher writes committed ledger entries to a topic keyed by user id, so
// entries of one user keep their order within a partition.
type Publisher struct {
	w     messageWriter
	topic string
	log   *zerolog.Logger
}

var _ adapter.LedgerPublisher = (*Publisher)(nil)

// NewPublisher returns a kafka backed publisher, or a no-op one when no
// brokers are configured.
func NewPublisher(cfg config.KafkaConfig, logger *zerolog.Logger) adapter.LedgerPublisher {
	if len(cfg.Brokers) == 0 {
		logger.Info().Msg("kafka brokers not configured; ledger events are not published")
		return NoopPublisher{}
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka publisher initialized")
	return newPublisher(w, cfg.Topic, logger)
}

func newPublisher(w messageWriter, topic string, logger *zerolog.Logger) *Publisher {
	return &Publisher{w: w, topic: topic, log: logger}
}

func (p *Publisher) PublishLedgerEntries(ctx context.Context, entries []*model.CoinTransaction) error {
	msgs, err := messages(entries)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.w.WriteMessages(writeCtx, msgs...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.log.Error().Err(err).Str("topic", p.topic).Msg("kafka write timeout exceeded")
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		p.log.Error().Err(err).Str("topic", p.topic).Int("count", len(msgs)).Msg("failed to write ledger entries")
		return fmt.Errorf("kafka: write messages: %w", err)
	}
	p.log.Debug().Str("topic", p.topic).Int("count", len(msgs)).Msg("ledger entries published")
	return nil
}

func (p *Publisher) Close() error {
	if err := p.w.Close(); err != nil {
		return fmt.Errorf("kafka: close writer: %w", err)
	}
	return nil
}

func messages(entries []*model.CoinTransaction) ([]kafkago.Message, error) {
	out := make([]kafkago.Message, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		value, err := json.Marshal(LedgerEntryMessage{
			ID:             e.ID,
			UserID:         e.UserID,
			SubscriptionID: e.SubscriptionID,
			Coins:          e.Coins,
			SourceType:     string(e.SourceType),
			SourceID:       e.SourceID,
			OrderID:        e.OrderID,
			Description:    e.Description,
			PeriodStart:    e.PeriodStart,
			PeriodEnd:      e.PeriodEnd,
			CreatedAt:      e.CreatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("kafka: marshal ledger entry %s: %w", e.ID, err)
		}
		out = append(out, kafkago.Message{Key: []byte(e.UserID), Value: value, Time: e.CreatedAt})
	}
	return out, nil
}

// NoopPublisher drops every entry.
type NoopPublisher struct{}

func (NoopPublisher) PublishLedgerEntries(context.Context, []*model.CoinTransaction) error {
	return nil
}
func (NoopPublisher) Close() error { return nil }
