package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaDialTimeout = 3 * time.Second

// KafkaChecker implements health checking for the photo event brokers.
type KafkaChecker struct {
	brokers []string
	dialer  *kafka.Dialer
}

// NewKafkaChecker creates a checker that succeeds when any of the brokers
// accepts a connection.
func NewKafkaChecker(brokers []string) *KafkaChecker {
	return &KafkaChecker{
		brokers: brokers,
		dialer:  &kafka.Dialer{Timeout: kafkaDialTimeout},
	}
}

// HealthCheck dials the brokers in order and stops at the first one that
// answers.
func (k *KafkaChecker) HealthCheck(ctx context.Context) error {
	if len(k.brokers) == 0 {
		return errors.New("kafka brokers not configured")
	}

	var errs []error
	for _, broker := range k.brokers {
		conn, err := k.dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", broker, err))
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("failed to reach kafka: %w", errors.Join(errs...))
}
