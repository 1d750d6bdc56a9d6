package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"reqlog/internal/metrics"
)

const batchSize = 100

// WriterConfig controls buffering.
type WriterConfig struct {
	// BufferSize is the number of entries queued before new ones are dropped
	// (default: 1000).
	BufferSize int
	// FlushInterval is the longest time an entry waits in the queue
	// (default: 5s).
	FlushInterval time.Duration
}

// Writer buffers entries and writes them to a Store in batches from a
// background goroutine. A batch is written when it reaches 100 entries or
// when the flush interval elapses.
type Writer struct {
	store         Store
	buffer        chan *Entry
	done          chan struct{}
	wg            sync.WaitGroup
	flushInterval time.Duration
	closeOnce     sync.Once
	closeErr      error
}

// NewWriter starts a Writer for store.
func NewWriter(store Store, cfg WriterConfig) *Writer {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	w := &Writer{
		store:         store,
		buffer:        make(chan *Entry, cfg.BufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.FlushInterval,
	}

	w.wg.Add(1)
	go w.flushLoop()

	return w
}

// Write queues an entry. It never blocks: when the buffer is full the entry
// is dropped and counted.
func (w *Writer) Write(entry *Entry) {
	if entry == nil {
		return
	}

	select {
	case <-w.done:
		metrics.SinkDropped.Inc()
		return
	default:
	}

	select {
	case w.buffer <- entry:
	default:
		metrics.SinkDropped.Inc()
		slog.Warn("request log sink buffer full, dropping entry",
			"id", entry.ID,
			"url", entry.URL,
		)
	}
}

// Close stops the writer, writes the queued entries and closes the store.
// Safe to call multiple times.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		w.closeErr = w.store.Close()
	})
	return w.closeErr
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, batchSize)

	for {
		select {
		case entry := <-w.buffer:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				w.flushBatch(batch)
				batch = make([]*Entry, 0, batchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flushBatch(batch)
				batch = make([]*Entry, 0, batchSize)
			}

		case <-w.done:
			// Writes racing with Close may still land in the buffer, so
			// drain without closing it.
		drain:
			for {
				select {
				case entry := <-w.buffer:
					batch = append(batch, entry)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				w.flushBatch(batch)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := w.store.Flush(ctx); err != nil {
				slog.Error("failed to flush request log store", "error", err)
			}
			cancel()
			return
		}
	}
}

func (w *Writer) flushBatch(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.store.WriteBatch(ctx, batch); err != nil {
		metrics.SinkWriteFailures.Inc()
		slog.Error("failed to write request log batch",
			"error", err,
			"count", len(batch),
		)
	}
}
