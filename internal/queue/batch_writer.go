package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/weather-archive/internal/apperr"
	"github.com/smukkama/weather-archive/internal/observations"
	"github.com/smukkama/weather-archive/internal/protocol"
)

// Upserter applies a validated batch of readings for one location.
// *observations.Engine satisfies it.
type Upserter interface {
	UpsertBatch(ctx context.Context, locationID int64, batch []observations.Input) (int64, error)
}

// BatchWriter consumes observation batches from Kafka and applies them
// through the upsert engine
type BatchWriter struct {
	consumer      *Consumer
	engine        Upserter
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(consumer *Consumer, engine Upserter, batchSize int, flushInterval time.Duration) *BatchWriter {
	return &BatchWriter{
		consumer:      consumer,
		engine:        engine,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins consuming and writing to the store
func (bw *BatchWriter) Start(ctx context.Context) error {
	bw.wg.Add(1)
	go bw.run(ctx)
	return nil
}

// Stop stops the batch writer gracefully
func (bw *BatchWriter) Stop() {
	close(bw.stopCh)
	bw.wg.Wait()
}

func (bw *BatchWriter) run(ctx context.Context) {
	defer bw.wg.Done()

	var batch []kafka.Message
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	msgChan := make(chan kafka.Message, 10)
	go func() {
		for {
			msg, err := bw.consumer.Consume(ctx)
			if err != nil {
				fmt.Printf("Consumer error: %v\n", err)
				continue
			}
			msgChan <- msg
		}
	}()

	for {
		select {
		case <-bw.stopCh:
			// Flush remaining batch before stopping
			if len(batch) > 0 {
				bw.flush(ctx, batch)
			}
			return

		case <-ticker.C:
			if len(batch) > 0 {
				bw.flush(ctx, batch)
				batch = nil
			}

		case msg := <-msgChan:
			batch = append(batch, msg)

			if len(batch) >= bw.batchSize {
				bw.flush(ctx, batch)
				batch = nil
			}
		}
	}
}

func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}

	successCount := 0
	for _, msg := range batch {
		retryable, err := bw.processMessage(ctx, msg)
		if err != nil {
			fmt.Printf("Failed to process message: %v\n", err)
			if retryable {
				// Leave the offset uncommitted so the message redelivers.
				continue
			}
		} else {
			successCount++
		}

		// Commit applied messages and non-retryable rejects alike.
		if err := bw.consumer.Commit(ctx, msg); err != nil {
			fmt.Printf("Failed to commit offset: %v\n", err)
		}
	}

	fmt.Printf("Flushed batch of %d messages to store\n", successCount)
}

// processMessage applies one Kafka message. The bool reports whether a
// failure is worth redelivering: storage errors are, malformed messages and
// unknown locations are not.
func (bw *BatchWriter) processMessage(ctx context.Context, msg kafka.Message) (bool, error) {
	batchMsg, err := protocol.DecodeBatchMessage(msg.Value)
	if err != nil {
		return false, fmt.Errorf("failed to decode message: %w", err)
	}
	if err := batchMsg.Validate(); err != nil {
		return false, fmt.Errorf("invalid message %s: %w", batchMsg.MessageID, err)
	}

	inputs := make([]observations.Input, len(batchMsg.Observations))
	for i, obs := range batchMsg.Observations {
		inputs[i] = observations.Input{
			Timestamp: obs.Timestamp,
			TempC:     obs.TempC,
			Source:    obs.Source,
		}
	}

	if _, err := bw.engine.UpsertBatch(ctx, batchMsg.LocationID, inputs); err != nil {
		retryable := apperr.CodeOf(err) == apperr.CodeStorageError
		return retryable, fmt.Errorf("failed to apply batch %s for location %d: %w",
			batchMsg.MessageID, batchMsg.LocationID, err)
	}
	return false, nil
}
