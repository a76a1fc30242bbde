package audit

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aura-assist/gateway/internal/mq"
	"github.com/aura-assist/gateway/internal/storage"
)

const (
	// DefaultBatchSize is the number of events per archived object.
	DefaultBatchSize = 500
	// DefaultFlushInterval bounds how long a partial batch may wait.
	DefaultFlushInterval = time.Minute
)

// Archiver consumes audit events from the queue and writes them to
// object storage in JSON Lines batches, keyed by arrival time.
type Archiver struct {
	queue         mq.Backend
	store         storage.ObjectStorage
	channel       string
	batchSize     int
	flushInterval time.Duration
	log           zerolog.Logger

	mu    sync.Mutex
	buf   bytes.Buffer
	count int
}

// ArchiverOption customizes an Archiver.
type ArchiverOption func(*Archiver)

// WithBatchSize overrides the per-object event count.
func WithBatchSize(n int) ArchiverOption {
	return func(a *Archiver) { a.batchSize = n }
}

// WithFlushInterval overrides the partial-batch flush interval.
func WithFlushInterval(d time.Duration) ArchiverOption {
	return func(a *Archiver) { a.flushInterval = d }
}

// NewArchiver constructs an archiver draining the named channel.
func NewArchiver(queue mq.Backend, store storage.ObjectStorage, channel string, log zerolog.Logger, opts ...ArchiverOption) *Archiver {
	a := &Archiver{
		queue:         queue,
		store:         store,
		channel:       channel,
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		log:           log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run consumes until ctx is done, flushing any buffered partial batch on
// the way out.
func (a *Archiver) Run(ctx context.Context) error {
	if err := a.store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure audit bucket: %w", err)
	}

	flushCtx, cancelFlush := context.WithCancel(ctx)
	defer cancelFlush()
	go a.flushLoop(flushCtx)

	err := a.queue.Subscribe(ctx, a.channel, func(ctx context.Context, msg mq.Message) error {
		return a.append(ctx, msg.Data)
	})

	// Subscribe returned; persist whatever is still buffered. ctx may
	// already be canceled, so flush with a fresh deadline.
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.flush(drainCtx)

	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *Archiver) append(ctx context.Context, data []byte) error {
	a.mu.Lock()
	a.buf.Write(data)
	a.buf.WriteByte('\n')
	a.count++
	full := a.count >= a.batchSize
	a.mu.Unlock()

	if full {
		a.flush(ctx)
	}
	return nil
}

func (a *Archiver) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.flush(ctx)
		}
	}
}

// flush writes the buffered batch as one object. Failed uploads are
// logged and the batch is dropped; the queue retains unacked messages,
// so only already-acked events in the buffer can be lost.
func (a *Archiver) flush(ctx context.Context) {
	a.mu.Lock()
	if a.count == 0 {
		a.mu.Unlock()
		return
	}
	batch := append([]byte(nil), a.buf.Bytes()...)
	count := a.count
	a.buf.Reset()
	a.count = 0
	a.mu.Unlock()

	key := fmt.Sprintf("audit/%s-%d.jsonl", time.Now().UTC().Format("2006/01/02/150405"), time.Now().UnixNano())
	if err := a.store.Put(ctx, key, bytes.NewReader(batch), int64(len(batch)), "application/x-ndjson"); err != nil {
		a.log.Error().Err(err).Str("key", key).Int("events", count).Msg("archive audit batch")
		return
	}
	a.log.Info().Str("key", key).Int("events", count).Msg("archived audit batch")
}
