package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	headerID        = "x-message-id"
	headerTimestamp = "x-message-ts"
)

// KafkaConfig defines configuration for the Kafka implementation.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"clientID"`

	// Producer settings
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`

	// Consumer settings
	MinBytes int           `yaml:"minBytes"`
	MaxBytes int           `yaml:"maxBytes"`
	MaxWait  time.Duration `yaml:"maxWait"`

	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// KafkaQueue implements MessageQueue using Kafka.
type KafkaQueue struct {
	config KafkaConfig
	writer *kafka.Writer
	dialer *kafka.Dialer

	mu            sync.Mutex
	subscriptions []*kafkaSubscription
	started       bool
	closed        bool
}

type kafkaSubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	baseCtx context.Context

	readers []*kafka.Reader
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewKafkaQueue creates a Kafka-backed message queue.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers are required")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1 << 10
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   cfg.DialTimeout,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaQueue{
		config: cfg,
		writer: writer,
		dialer: dialer,
	}, nil
}

// Publish publishes a message to the specified topic.
func (q *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	return q.writer.WriteMessages(ctx, toKafkaMessage(topic, message))
}

// Subscribe registers a consumer-group reader for the topic.
func (q *KafkaQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	options := SubscribeOptions{}
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if options.ConsumerGroup == "" {
		return errors.New("consumer group is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("queue is closed")
	}
	if q.started {
		return errors.New("cannot subscribe after start")
	}
	q.subscriptions = append(q.subscriptions, &kafkaSubscription{
		topic:   topic,
		handler: handler,
		opts:    options,
		baseCtx: ctx,
	})
	return nil
}

// Start launches consume loops for all registered subscriptions.
func (q *KafkaQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("queue is closed")
	}
	if q.started {
		return nil
	}
	for _, sub := range q.subscriptions {
		baseCtx := sub.baseCtx
		if baseCtx == nil {
			baseCtx = context.Background()
		}
		ctx, cancel := context.WithCancel(baseCtx)
		sub.cancel = cancel
		for i := 0; i < sub.opts.Concurrency; i++ {
			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:  q.config.Brokers,
				GroupID:  sub.opts.ConsumerGroup,
				Topic:    sub.topic,
				Dialer:   q.dialer,
				MinBytes: q.config.MinBytes,
				MaxBytes: q.config.MaxBytes,
				MaxWait:  q.config.MaxWait,
			})
			sub.readers = append(sub.readers, reader)
			sub.wg.Add(1)
			go q.consumeLoop(ctx, sub, reader)
		}
	}
	q.started = true
	return nil
}

func (q *KafkaQueue) consumeLoop(ctx context.Context, sub *kafkaSubscription, reader *kafka.Reader) {
	defer sub.wg.Done()
	for {
		kmsg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			// Transient fetch error, back off briefly and retry.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		msg := fromKafkaMessage(kmsg)
		if err := sub.handler(ctx, msg); err != nil {
			// Leave the offset uncommitted so the broker redelivers.
			continue
		}
		_ = reader.CommitMessages(ctx, kmsg)
	}
}

// Stop gracefully stops consuming messages.
func (q *KafkaQueue) Stop() error {
	q.mu.Lock()
	subs := q.subscriptions
	q.started = false
	q.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if sub.cancel != nil {
			sub.cancel()
		}
		sub.wg.Wait()
		for _, reader := range sub.readers {
			if err := reader.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		sub.readers = nil
	}
	return firstErr
}

// Close stops all consumers and closes the producer.
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	stopErr := q.Stop()
	writeErr := q.writer.Close()
	if stopErr != nil {
		return stopErr
	}
	return writeErr
}

func toKafkaMessage(topic string, message *Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(message.Headers)+2)
	for k, v := range message.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if message.ID != "" {
		headers = append(headers, kafka.Header{Key: headerID, Value: []byte(message.ID)})
	}
	ts := message.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	headers = append(headers, kafka.Header{Key: headerTimestamp, Value: []byte(fmt.Sprintf("%d", ts.UnixMilli()))})

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(message.ID),
		Value:   message.Body,
		Headers: headers,
		Time:    ts,
	}
}

func fromKafkaMessage(kmsg kafka.Message) *Message {
	msg := &Message{
		Body:      kmsg.Value,
		Headers:   make(map[string]string, len(kmsg.Headers)),
		Timestamp: kmsg.Time,
	}
	for _, h := range kmsg.Headers {
		switch h.Key {
		case headerID:
			msg.ID = string(h.Value)
		case headerTimestamp:
			// informational only, message.Timestamp comes from the broker
		default:
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	if msg.ID == "" {
		msg.ID = string(kmsg.Key)
	}
	return msg
}
