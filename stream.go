package rateshop

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// Observability constants for the ChunkRunner.
const (
	// Metrics.
	ChunkTotal         = metricz.Key("chunk.total")
	ChunkProcessed     = metricz.Key("chunk.processed")
	ChunkFailuresTotal = metricz.Key("chunk.failures.total")

	// Hook event keys.
	ChunkEventComplete    = hookz.Key("chunk.complete")
	ChunkEventAllComplete = hookz.Key("chunk.all_complete")
)

// ChunkEvent is emitted via hookz as chunks finish.
type ChunkEvent struct {
	Name            Name
	ChunkIndex      int
	ChunkSize       int
	ProcessedChunks int
	TotalChunks     int
	Err             error
	Timestamp       time.Time
}

// ProgressFunc receives (processedChunks, totalChunks) after each chunk
// completes, in completion order.
type ProgressFunc func(processedChunks, totalChunks int)

// ChunkFunc processes one chunk of shipments through the full pipeline.
// chunkStart is the offset of the chunk within the original list, so
// per-shipment identity survives chunk boundaries regardless of
// completion order.
type ChunkFunc func(ctx context.Context, chunkStart int, chunk []ShipmentRecord) error

// ChunkRunner splits a large shipment set into fixed-size chunks and
// processes a bounded number of them concurrently. Final aggregation is
// order-independent: results are keyed by shipment identity, never by
// position, so chunk completion order does not matter.
type ChunkRunner struct {
	name          Name
	chunkSize     int
	maxConcurrent int

	onProgress ProgressFunc
	metrics    *metricz.Registry
	hooks      *hookz.Hooks[ChunkEvent]
	mu         sync.RWMutex
}

// NewChunkRunner creates a ChunkRunner with the given chunk size and
// concurrent chunk limit.
func NewChunkRunner(name Name, chunkSize, maxConcurrent int) *ChunkRunner {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	metrics := metricz.New()
	metrics.Gauge(ChunkTotal)
	metrics.Gauge(ChunkProcessed)
	metrics.Counter(ChunkFailuresTotal)

	return &ChunkRunner{
		name:          name,
		chunkSize:     chunkSize,
		maxConcurrent: maxConcurrent,
		metrics:       metrics,
		hooks:         hookz.New[ChunkEvent](),
	}
}

// WithProgress sets the progress callback.
func (c *ChunkRunner) WithProgress(fn ProgressFunc) *ChunkRunner {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress = fn
	return c
}

// Name returns the name of this runner.
func (c *ChunkRunner) Name() Name { return c.name }

// Metrics returns the metrics registry for this runner.
func (c *ChunkRunner) Metrics() *metricz.Registry { return c.metrics }

// OnChunkComplete registers a handler called as each chunk finishes.
func (c *ChunkRunner) OnChunkComplete(handler func(context.Context, ChunkEvent) error) error {
	_, err := c.hooks.Hook(ChunkEventComplete, handler)
	return err
}

// OnAllComplete registers a handler called after the last chunk finishes.
func (c *ChunkRunner) OnAllComplete(handler func(context.Context, ChunkEvent) error) error {
	_, err := c.hooks.Hook(ChunkEventAllComplete, handler)
	return err
}

// Run splits shipments into chunks and invokes process for each, at most
// maxConcurrent chunks at a time. A chunk's failure does not stop the
// other chunks; the first error is returned after all chunks resolve.
func (c *ChunkRunner) Run(ctx context.Context, shipments []ShipmentRecord, process ChunkFunc) error {
	c.mu.RLock()
	chunkSize := c.chunkSize
	maxConcurrent := c.maxConcurrent
	onProgress := c.onProgress
	c.mu.RUnlock()

	totalChunks := (len(shipments) + chunkSize - 1) / chunkSize
	c.metrics.Gauge(ChunkTotal).Set(float64(totalChunks))
	if totalChunks == 0 {
		return nil
	}

	sem := make(chan struct{}, maxConcurrent)
	errs := make(chan error, totalChunks)
	var wg sync.WaitGroup
	var processed int
	var progressMu sync.Mutex

	for index := 0; index < totalChunks; index++ {
		start := index * chunkSize
		end := start + chunkSize
		if end > len(shipments) {
			end = len(shipments)
		}

		wg.Add(1)
		go func(index, start int, chunk []ShipmentRecord) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}

			err := process(ctx, start, chunk)
			if err != nil {
				c.metrics.Counter(ChunkFailuresTotal).Inc()
				errs <- err
			}

			progressMu.Lock()
			processed++
			done := processed
			progressMu.Unlock()
			c.metrics.Gauge(ChunkProcessed).Set(float64(done))

			if onProgress != nil {
				onProgress(done, totalChunks)
			}
			_ = c.hooks.Emit(ctx, ChunkEventComplete, ChunkEvent{ //nolint:errcheck
				Name:            c.name,
				ChunkIndex:      index,
				ChunkSize:       len(chunk),
				ProcessedChunks: done,
				TotalChunks:     totalChunks,
				Err:             err,
				Timestamp:       time.Now(),
			})
		}(index, start, shipments[start:end])
	}

	wg.Wait()
	close(errs)

	progressMu.Lock()
	done := processed
	progressMu.Unlock()

	// Canceled chunks never process, so the final event reports the real
	// count rather than assuming every chunk ran.
	_ = c.hooks.Emit(ctx, ChunkEventAllComplete, ChunkEvent{ //nolint:errcheck
		Name:            c.name,
		ProcessedChunks: done,
		TotalChunks:     totalChunks,
		Timestamp:       time.Now(),
	})

	// First error wins; the other chunks already ran to completion.
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down the runner's hooks.
func (c *ChunkRunner) Close() error {
	c.hooks.Close()
	return nil
}
