package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// DefaultBufferSize is the number of events queued before Publish starts dropping.
const DefaultBufferSize = 1000

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds producer settings.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	BufferSize int
	Workers    int
}

// Kafka publishes events to a Kafka topic from a small pool of workers.
// Publish only enqueues; events are dropped with a warning when the queue is full.
type Kafka struct {
	writer messageWriter
	queue  chan Event
	logger *slog.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewKafka creates a Kafka publisher and starts its workers.
func NewKafka(cfg KafkaConfig, logger *slog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	w := &kafka.Writer{
		Addr:            kafka.TCP(cfg.Brokers...),
		Topic:           cfg.Topic,
		Balancer:        &kafka.Hash{},
		WriteTimeout:    10 * time.Second,
		WriteBackoffMin: 100 * time.Millisecond,
		WriteBackoffMax: 5 * time.Second,
		RequiredAcks:    kafka.RequireAll,
	}
	return newKafka(w, cfg, logger), nil
}

func newKafka(w messageWriter, cfg KafkaConfig, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	k := &Kafka{
		writer: w,
		queue:  make(chan Event, cfg.BufferSize),
		logger: logger,
	}
	for i := 0; i < cfg.Workers; i++ {
		k.wg.Add(1)
		go k.run()
	}
	return k
}

// Publish enqueues e for delivery.
func (k *Kafka) Publish(_ context.Context, e Event) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrClosed
	}
	select {
	case k.queue <- e:
	default:
		k.logger.Warn("event queue full, dropping event",
			slog.String("type", e.Type),
			slog.String("photo_id", e.PhotoID))
	}
	return nil
}

// Close stops accepting events, flushes the queue and closes the writer.
func (k *Kafka) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	close(k.queue)
	k.mu.Unlock()

	k.wg.Wait()
	return k.writer.Close()
}

func (k *Kafka) run() {
	defer k.wg.Done()
	for e := range k.queue {
		value, err := json.Marshal(e)
		if err != nil {
			k.logger.Error("failed to marshal event", slog.String("error", err.Error()))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.PhotoID), Value: value, Time: e.At})
		cancel()
		if err != nil {
			k.logger.Error("failed to publish event",
				slog.String("type", e.Type),
				slog.String("photo_id", e.PhotoID),
				slog.String("error", err.Error()))
		}
	}
}
