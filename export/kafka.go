package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ridge/smcmon/retry"
	"github.com/ridge/smcmon/tlog"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const writerTimeout = time.Minute

var writerRetry retry.Config = retry.ExpConfig{
	Min:   100 * time.Millisecond,
	Max:   10 * time.Second,
	Scale: 2.0,
}

// The subset of the kafka-go writer in use
type kafkaWriter interface {
	WriteMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

type kafkaSink struct {
	topic  string
	writer kafkaWriter
}

// NewKafka creates a sink writing to the topic on the brokers
func NewKafka(brokers []string, topic string) Sink {
	return newKafka(topic, &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	})
}

func newKafka(topic string, writer kafkaWriter) *kafkaSink {
	return &kafkaSink{topic: topic, writer: writer}
}

// Write implements Sink. Transient broker errors are retried with backoff.
func (k *kafkaSink) Write(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	ctx = tlog.With(ctx, zap.String("topic", k.topic))
	batch := make([]kafka.Message, 0, len(messages))
	for _, m := range messages {
		headers := make([]kafka.Header, 0, len(m.Headers))
		for key, value := range m.Headers {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
		batch = append(batch, kafka.Message{
			Key:     []byte(m.Key),
			Value:   m.Value,
			Headers: headers,
		})
	}

	return retry.Do(ctx, writerRetry, func() error {
		ctx, cancel := context.WithTimeout(ctx, writerTimeout)
		defer cancel()

		if err := k.writer.WriteMessages(ctx, batch...); err != nil {
			err = fmt.Errorf("failed to write Kafka messages: %w", err)
			if shouldRetry(err) {
				return retry.Retriable(err)
			}
			return err
		}
		tlog.Get(ctx).Debug("Records exported", zap.Int("messages", len(batch)))
		return nil
	})
}

// Close implements Sink
func (k *kafkaSink) Close() error {
	return k.writer.Close()
}

func shouldRetry(err error) bool {
	if errors.Is(err, kafka.Unknown) {
		return true
	}
	var kerr kafka.Error
	if !errors.As(err, &kerr) {
		return true
	}
	return kerr.Temporary() || kerr.Timeout()
}
