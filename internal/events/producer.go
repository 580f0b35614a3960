package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ErrBufferFull is returned when the producer cannot accept more messages
// without blocking the caller.
var ErrBufferFull = errors.New("event buffer is full")

// ErrProducerClosed is returned by Publish after Close.
var ErrProducerClosed = errors.New("event producer is closed")

// messageWriter is the subset of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes envelopes to one Kafka topic from a background
// goroutine so request handlers never wait on the broker.
type Producer struct {
	w       messageWriter
	inbox   chan kafka.Message
	closeCh chan struct{}
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewProducer creates a producer for topic. buf bounds the number of
// messages waiting to be written.
func NewProducer(brokers []string, topic string, buf int, logger zerolog.Logger) *Producer {
	logger = logger.With().Str("component", "events").Str("topic", topic).Logger()
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newProducer(w, buf, logger)
}

func newProducer(w messageWriter, buf int, logger zerolog.Logger) *Producer {
	if buf <= 0 {
		buf = 1
	}
	return &Producer{
		w:       w,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		logger:  logger,
	}
}

// Start runs the write loop until Close is called.
func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				p.logger.Error().
					Err(err).
					Str("key", string(m.Key)).
					Msg("failed to publish event")
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			p.logger.Error().Err(err).Msg("failed to close kafka writer")
		}
	}()
}

// Publish enqueues env keyed by its correlation id.
func (p *Producer) Publish(_ context.Context, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(env.CorrelationID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(env.EventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	select {
	case p.inbox <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting messages and lets the write loop flush what is queued.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the queued messages are flushed or ctx is done.
func (p *Producer) WaitClosed(ctx context.Context) error {
	select {
	case <-p.closeCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
