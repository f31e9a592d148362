package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"fleet_tracker/internal/activity"
	"fleet_tracker/internal/metrics"
)

// KafkaConfig configures the ingest topic feed.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// rediscoverWait spaces out partition discovery retries after failures.
const rediscoverWait = 5 * time.Second

// KafkaConsumer drains the ingest topic with one reader per partition.
// Offsets live in memory for the lifetime of the process; after a restart
// the retained log replays, which the aggregator absorbs as ordinary
// re-ingests.
type KafkaConsumer struct {
	cfg    KafkaConfig
	proc   *Processor
	logger *slog.Logger

	mu      sync.Mutex
	offsets map[int]int64
}

// NewKafkaConsumer builds a consumer; call Run to start draining.
func NewKafkaConsumer(cfg KafkaConfig, proc *Processor, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaConsumer{
		cfg:     cfg,
		proc:    proc,
		logger:  logger.With("component", "kafka_feed"),
		offsets: make(map[int]int64),
	}
}

// Run consumes until ctx is cancelled. Partition readers that drop out
// trigger a fresh discovery round so topic expansion is picked up.
func (c *KafkaConsumer) Run(ctx context.Context) {
	for {
		parts, err := c.partitions(ctx)
		if err != nil {
			c.logger.Warn("kafka partition discovery failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(rediscoverWait):
				continue
			}
		}
		if len(parts) > 0 {
			c.logger.Info("kafka feed started", "topic", c.cfg.Topic, "partitions", len(parts))
		}

		var wg sync.WaitGroup
		for _, p := range parts {
			wg.Add(1)
			go func(partition int) {
				defer wg.Done()
				c.consumePartition(ctx, partition)
			}(p)
		}
		wg.Wait()

		select {
		case <-ctx.Done():
			return
		case <-time.After(rediscoverWait):
		}
	}
}

func (c *KafkaConsumer) partitions(ctx context.Context) ([]int, error) {
	conn, err := kafka.DialContext(ctx, "tcp", c.cfg.Brokers[0])
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.logger.Warn("closing kafka connection", "error", err)
		}
	}()

	parts, err := conn.ReadPartitions(c.cfg.Topic)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if p.Topic == c.cfg.Topic {
			out = append(out, p.ID)
		}
	}
	return out, nil
}

func (c *KafkaConsumer) consumePartition(ctx context.Context, partition int) {
	start := kafka.FirstOffset
	if last, ok := c.offset(partition); ok {
		start = last + 1
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   c.cfg.Brokers,
		Topic:     c.cfg.Topic,
		Partition: partition,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer func() {
		if err := r.Close(); err != nil {
			c.logger.Warn("closing kafka reader", "partition", partition, "error", err)
		}
	}()

	if err := r.SetOffset(start); err != nil {
		c.logger.Warn("kafka seek failed", "partition", partition, "offset", start, "error", err)
		return
	}

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("kafka fetch failed", "partition", partition, "error", err)
			}
			return
		}

		frameCtx, cancel := context.WithTimeout(ctx, ingestTimeout)
		_, _ = c.proc.Process(frameCtx, "kafka", fmt.Sprintf("kafka:%s/%d", c.cfg.Topic, partition), m.Value)
		cancel()

		c.setOffset(partition, m.Offset)
	}
}

func (c *KafkaConsumer) offset(partition int) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.offsets[partition]
	return v, ok
}

func (c *KafkaConsumer) setOffset(partition int, offset int64) {
	c.mu.Lock()
	c.offsets[partition] = offset
	c.mu.Unlock()
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ActivityPublisher streams activity events to a Kafka topic, keyed by
// company id so one company's history stays ordered within a partition.
type ActivityPublisher struct {
	writer kafkaMessageWriter
	closer io.Closer
	logger *slog.Logger
}

// NewActivityPublisher builds a publisher writing to topic on brokers.
func NewActivityPublisher(brokers []string, topic string, logger *slog.Logger) *ActivityPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           5 * time.Millisecond,
		AllowAutoTopicCreation: false,
	}
	return &ActivityPublisher{
		writer: w,
		closer: w,
		logger: logger.With("component", "activity_publisher"),
	}
}

// Publish writes one batch of events. Unaffiliated events (empty FCID) are
// keyed by the zero company id.
func (p *ActivityPublisher) Publish(ctx context.Context, events []activity.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for i := range events {
		value, err := json.Marshal(&events[i])
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}
		key := events[i].FCID
		if key == "" {
			key = "0"
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: value,
			Time:  events[i].CreatedAt,
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		metrics.IncFeedMessage("kafka_publish", "error")
		return fmt.Errorf("publishing events: %w", err)
	}
	metrics.IncFeedMessage("kafka_publish", "ok")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *ActivityPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// PublishingStore decorates an activity store, mirroring every appended
// batch to the Kafka publisher. Publish failures are logged and swallowed;
// the database write is the one that counts.
type PublishingStore struct {
	activity.Store
	pub    *ActivityPublisher
	logger *slog.Logger
}

// NewPublishingStore wraps store so appended events also reach pub.
func NewPublishingStore(store activity.Store, pub *ActivityPublisher, logger *slog.Logger) *PublishingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishingStore{Store: store, pub: pub, logger: logger.With("component", "activity_publisher")}
}

// AppendEvents persists the batch, then mirrors it to Kafka.
func (s *PublishingStore) AppendEvents(ctx context.Context, events []activity.Event) error {
	if err := s.Store.AppendEvents(ctx, events); err != nil {
		return err
	}
	if err := s.pub.Publish(ctx, events); err != nil {
		s.logger.Warn("mirroring events to kafka", "error", err, "count", len(events))
	}
	return nil
}
