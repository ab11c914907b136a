// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/modmesh/internal/message"
)

// ============================================================================
// QUEUE CHANNEL
// ============================================================================

// topicPrefix namespaces all component topics. Kafka topic names cannot
// contain colons, so component "router" maps to topic "module.router".
const topicPrefix = "module."

// Topic returns the Kafka topic for a component id.
func Topic(component string) string {
	return topicPrefix + component
}

// QueueChannel moves envelopes through Kafka: a sync producer writes to the
// target component's topic, and a consumer group subscribed to this
// component's own topic feeds a bounded inbox for Receive. Delivery is
// fire-and-forget at the channel level; ordering holds per topic partition.
type QueueChannel struct {
	selfID   string
	brokers  []string
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	logger   *zap.Logger

	// pacer optionally throttles produces to protect the broker.
	pacer *rate.Limiter

	inbox  chan *message.Envelope
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// QueueOption configures a QueueChannel.
type QueueOption func(*QueueChannel)

// WithProducePacing caps the produce rate.
func WithProducePacing(perSecond float64, burst int) QueueOption {
	return func(c *QueueChannel) {
		c.pacer = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewQueueChannel connects to the brokers, starts producing, and joins
// consumer group "modmesh-<selfID>" on this component's own topic.
func NewQueueChannel(brokers []string, selfID string, logger *zap.Logger, opts ...QueueOption) (*QueueChannel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	cfg.Consumer.Offsets.AutoCommit.Interval = time.Second

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("producer creation failed: %w", err)
	}

	group, err := sarama.NewConsumerGroup(brokers, "modmesh-"+selfID, cfg)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("consumer group creation failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &QueueChannel{
		selfID:   selfID,
		brokers:  brokers,
		producer: producer,
		group:    group,
		logger:   logger,
		inbox:    make(chan *message.Envelope, 1024),
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(1)
	go c.consumeLoop(ctx)
	return c, nil
}

// Send produces the envelope to the target component's topic, keyed by
// correlation id so stream frames of one transfer share a partition.
func (c *QueueChannel) Send(env *message.Envelope) bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}

	if c.pacer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout(env))
		err := c.pacer.Wait(ctx)
		cancel()
		if err != nil {
			return false
		}
	}

	data, err := message.Marshal(env)
	if err != nil {
		c.logger.Warn("queue envelope encode failed", zap.Error(err))
		return false
	}

	key := env.Header.CorrelationID
	if key == "" {
		key = env.Header.MessageID
	}
	_, _, err = c.producer.SendMessage(&sarama.ProducerMessage{
		Topic: Topic(env.Header.TargetModule),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		c.logger.Warn("queue produce failed",
			zap.String("target", env.Header.TargetModule),
			zap.Error(err))
		return false
	}
	return true
}

// Receive returns the next consumed envelope, or nil after the poll
// interval.
func (c *QueueChannel) Receive() *message.Envelope {
	select {
	case env := <-c.inbox:
		return env
	case <-time.After(receivePoll):
		return nil
	}
}

// Healthy pings a broker by opening a throwaway client.
func (c *QueueChannel) Healthy() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}

	client, err := sarama.NewClient(c.brokers, sarama.NewConfig())
	if err != nil {
		return false
	}
	defer client.Close()
	return len(client.Brokers()) > 0
}

// Close stops the consumer loop and releases the Kafka clients.
func (c *QueueChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	groupErr := c.group.Close()
	prodErr := c.producer.Close()
	if groupErr != nil {
		return groupErr
	}
	return prodErr
}

// consumeLoop re-joins the consumer group across rebalances until Close.
func (c *QueueChannel) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	handler := &groupHandler{inbox: c.inbox, logger: c.logger}
	topics := []string{Topic(c.selfID)}

	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.group.Consume(ctx, topics, handler); err != nil {
			if strings.Contains(err.Error(), "context canceled") {
				return
			}
			c.logger.Warn("consumer group error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// groupHandler implements sarama.ConsumerGroupHandler, decoding each record
// into the inbox.
type groupHandler struct {
	inbox  chan *message.Envelope
	logger *zap.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for record := range claim.Messages() {
		env, err := message.Unmarshal(record.Value)
		if err != nil {
			// Malformed records are committed and dropped; redelivery
			// cannot fix them.
			h.logger.Warn("malformed queue record dropped",
				zap.String("topic", record.Topic),
				zap.Int64("offset", record.Offset),
				zap.Error(err))
			session.MarkMessage(record, "")
			continue
		}

		select {
		case h.inbox <- env:
			session.MarkMessage(record, "")
		case <-session.Context().Done():
			return nil
		}
	}
	return nil
}
