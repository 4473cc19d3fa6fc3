package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/bus"
	"github.com/fletcherlabs/fletcher/internal/events"
)

const (
	defaultBatchSize     = 10
	defaultFlushInterval = 30 * time.Minute
	defaultMaxBuffer     = 1024
)

// BatcherConfig configures the storage batcher. Zero values take the
// defaults above.
type BatcherConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxBuffer     int
	Logger        *zap.Logger
}

// Batcher buffers trade-attempt records and flushes them to a Sink when the
// batch fills or the flush interval elapses. Records that fail to flush are
// put back at the front of the buffer so ordering survives a retry.
type Batcher struct {
	config BatcherConfig
	logger *zap.Logger
	sink   Sink

	mu     sync.Mutex
	buffer []Record

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewBatcher(cfg BatcherConfig, sink Sink) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = defaultMaxBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Batcher{
		config: cfg,
		logger: cfg.Logger,
		sink:   sink,
	}
}

// Register subscribes the batcher on the bus.
func (b *Batcher) Register(msgBus *bus.Bus) {
	msgBus.Subscribe(events.KindStoreTradeResults, b.HandleStoreTradeResults)
}

// Start launches the periodic flusher.
func (b *Batcher) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.config.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := b.Flush(ctx); err != nil {
					b.logger.Error("periodic-flush-failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts the flusher and drains whatever is buffered. Records that still
// cannot be flushed are lost; the error reports how many.
func (b *Batcher) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Flush(ctx); err != nil {
		b.mu.Lock()
		dropped := len(b.buffer)
		b.mu.Unlock()
		return fmt.Errorf("final flush dropped %d records: %w", dropped, err)
	}
	return b.sink.Close()
}

// HandleStoreTradeResults appends the record and flushes inline once the
// batch fills.
func (b *Batcher) HandleStoreTradeResults(ctx context.Context, msg events.Message) error {
	store, ok := msg.(events.StoreTradeResults)
	if !ok {
		return fmt.Errorf("unexpected message type %T", msg)
	}

	b.mu.Lock()
	if len(b.buffer) >= b.config.MaxBuffer {
		// Drop the oldest record rather than grow without bound while the
		// sink is down.
		b.buffer = b.buffer[1:]
		recordsDropped.Inc()
		b.logger.Error("storage-buffer-full-dropping-oldest",
			zap.Int("max-buffer", b.config.MaxBuffer))
	}
	b.buffer = append(b.buffer, NewRecord(store.Result))
	recordsBuffered.Set(float64(len(b.buffer)))
	full := len(b.buffer) >= b.config.BatchSize
	b.mu.Unlock()

	if full {
		if err := b.Flush(ctx); err != nil {
			b.logger.Error("batch-flush-failed", zap.Error(err))
		}
	}
	return nil
}

// Flush writes the buffered records to the sink. The buffer is swapped out
// under the lock so the insert runs without holding it; on failure the batch
// is put back in front of anything buffered in the meantime.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.buffer
	b.buffer = nil
	recordsBuffered.Set(0)
	b.mu.Unlock()

	if err := b.sink.Insert(ctx, batch); err != nil {
		flushesTotal.WithLabelValues("failure").Inc()
		b.mu.Lock()
		b.buffer = append(batch, b.buffer...)
		if len(b.buffer) > b.config.MaxBuffer {
			over := len(b.buffer) - b.config.MaxBuffer
			b.buffer = b.buffer[over:]
			recordsDropped.Add(float64(over))
			b.logger.Error("storage-buffer-full-dropping-oldest",
				zap.Int("dropped", over))
		}
		recordsBuffered.Set(float64(len(b.buffer)))
		b.mu.Unlock()
		return fmt.Errorf("flush %d records: %w", len(batch), err)
	}

	flushesTotal.WithLabelValues("success").Inc()
	recordsStored.Add(float64(len(batch)))
	b.logger.Debug("trade-records-flushed", zap.Int("count", len(batch)))
	return nil
}
