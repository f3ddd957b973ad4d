package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message was processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer routes each partition to a single lane so offsets are handled and
// committed in order. A handler error stops the consumer without committing
// that offset or anything after it; the group redelivers from there on restart.
type Consumer struct {
	r       reader
	workers int
	log     *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if log == nil {
		log = zap.NewNop()
	}
	return newConsumer(r, workers, log.With(zap.String("topic", topic), zap.String("group", group)))
}

func newConsumer(r reader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, log: log}
}

// Start blocks until ctx is cancelled (returning nil) or a message fails
// (returning the failure).
func (c *Consumer) Start(parent context.Context, h Handler) error {
	defer c.r.Close()

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	var (
		once   sync.Once
		failed error
	)
	fail := func(err error) {
		once.Do(func() {
			failed = err
			cancel(err)
		})
	}

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if ctx.Err() != nil {
					continue // drain, nothing past a failure is committed
				}
				if err := h(ctx, m); err != nil {
					c.log.Error("handle message",
						zap.Int("partition", m.Partition),
						zap.Int64("offset", m.Offset),
						zap.Error(err),
					)
					fail(fmt.Errorf("partition %d offset %d: %w", m.Partition, m.Offset, err))
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					fail(fmt.Errorf("commit partition %d offset %d: %w", m.Partition, m.Offset, err))
				}
			}
		}(lanes[i])
	}

	var fetchErr error
	for fetchErr == nil {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			fetchErr = err
			break
		}
		select {
		case lanes[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			fetchErr = ctx.Err()
		}
	}
	for _, l := range lanes {
		close(l)
	}
	wg.Wait()

	if failed != nil {
		return failed
	}
	if parent.Err() != nil || errors.Is(fetchErr, context.Canceled) {
		return nil
	}
	return fetchErr
}
