package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/clashsync/internal/config"
	"github.com/clashsync/internal/domain"
)

// AwardHandler applies diamond awards
type AwardHandler interface {
	AwardDiamondsBatch(ctx context.Context, batch domain.BatchDiamondAward) (int, error)
}

// AwardEvent is the wire format of a diamond award on the topic
type AwardEvent struct {
	UserID string `json:"user_id"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason,omitempty"`
	Source string `json:"source,omitempty"`
}

var errInvalidAward = errors.New("invalid award event")

// decodeAward parses and validates a single event payload
func decodeAward(value []byte) (domain.DiamondAward, error) {
	var event AwardEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return domain.DiamondAward{}, fmt.Errorf("decoding award: %w", err)
	}
	if event.UserID == "" || event.Delta == 0 {
		return domain.DiamondAward{}, errInvalidAward
	}
	reason := event.Reason
	if reason == "" {
		reason = event.Source
	}
	return domain.DiamondAward{UserID: event.UserID, Delta: event.Delta, Reason: reason}, nil
}

// Consumer consumes diamond award events from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       AwardHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler AwardHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim collects awards from a partition and applies them in batches.
// Offsets are marked once the batch holding them has been handed over.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	logger := h.consumer.logger
	batch := make([]domain.DiamondAward, 0, cfg.BatchSize)
	pending := make([]*sarama.ConsumerMessage, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if len(pending) == 0 {
			return
		}

		if len(batch) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			applied, err := h.consumer.handler.AwardDiamondsBatch(ctx, domain.BatchDiamondAward{Awards: batch})
			cancel()
			if err != nil {
				logger.Error("failed to process batch", "error", err, "batch_size", len(batch))
			} else {
				logger.Debug("processed batch", "batch_size", len(batch), "applied", applied)
			}
		}

		for _, msg := range pending {
			session.MarkMessage(msg, "")
		}
		batch = batch[:0]
		pending = pending[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			// Process remaining batch before exit
			processBatch()
			return nil

		case <-batchTimer.C:
			processBatch()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}

			pending = append(pending, message)
			award, err := decodeAward(message.Value)
			if err != nil {
				logger.Warn("skipping award event",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				continue
			}
			batch = append(batch, award)

			if len(batch) >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
