package projection

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/joamik/cinema-reservation/internal/eventstore"
)

const (
	defaultCommitBatch    = 100
	defaultCommitInterval = 500 * time.Millisecond
	defaultRetryAttempts  = 4
	defaultRetryBase      = 5 * time.Second
	defaultRestartMin     = 3 * time.Second
	defaultRestartMax     = 30 * time.Second
	defaultPageSize       = 100
	defaultPollInterval   = 50 * time.Millisecond
	defaultGapWait        = 5 * time.Second
)

// Options tunes the processor. Zero values fall back to defaults; tests use
// small durations to keep runs fast.
type Options struct {
	// CommitBatch is the number of processed events after which the read
	// offset is committed.
	CommitBatch int
	// CommitInterval commits the offset after this much time even when the
	// batch is not full; whichever comes first wins.
	CommitInterval time.Duration
	// RetryAttempts bounds how often one failing event is retried before
	// the whole stream is torn down.
	RetryAttempts int
	// RetryBase is the first retry delay; it doubles per attempt.
	RetryBase time.Duration
	// RestartMin/RestartMax bound the randomized backoff before the stream
	// is restarted from the last committed offset.
	RestartMin time.Duration
	RestartMax time.Duration
	// PageSize bounds one ReadByTag call.
	PageSize int
	// PollInterval is the idle sleep at the head of the stream.
	PollInterval time.Duration
	// GapWait bounds how long the reader holds at a hole in the offset
	// sequence. SQL backends allocate offsets at insert time but make them
	// visible at commit time, so a slow transaction shows up as a missing
	// offset with higher ones already readable. Advancing past the hole
	// would lose the event once it commits; the reader waits instead, and
	// only steps over the offset after GapWait (a rolled-back append leaves
	// a permanent hole).
	GapWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.CommitBatch <= 0 {
		o.CommitBatch = defaultCommitBatch
	}
	if o.CommitInterval <= 0 {
		o.CommitInterval = defaultCommitInterval
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = defaultRetryAttempts
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if o.RestartMin <= 0 {
		o.RestartMin = defaultRestartMin
	}
	if o.RestartMax <= o.RestartMin {
		o.RestartMax = o.RestartMin + defaultRestartMax
	}
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.GapWait <= 0 {
		o.GapWait = defaultGapWait
	}
	return o
}

// Processor tails a tagged event stream and feeds a Handler, one event in
// flight at a time to preserve causal ordering of increments and
// decrements. Offsets are committed in batches, trading a small
// at-least-once redelivery window for throughput; the handler side
// neutralizes duplicates via per-row offset watermarks.
type Processor struct {
	name    string
	tag     string
	store   eventstore.Store
	offsets OffsetStore
	handler Handler
	opts    Options
}

// NewProcessor builds a processor identified by name; the name keys the
// committed offset, so renaming a projection restarts it from offset zero.
func NewProcessor(name, tag string, store eventstore.Store, offsets OffsetStore, handler Handler, opts Options) *Processor {
	return &Processor{
		name:    name,
		tag:     tag,
		store:   store,
		offsets: offsets,
		handler: handler,
		opts:    opts.withDefaults(),
	}
}

// Run consumes the stream until ctx is canceled. A handler that keeps
// failing past its retry budget tears the whole stream down; Run then
// restarts from the last committed offset after a randomized backoff, which
// redelivers some already-applied events. Failures never propagate to
// command callers; they surface here as log alerts.
func (p *Processor) Run(ctx context.Context) error {
	for {
		err := p.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		backoff := p.restartBackoff()
		log.Printf("projection %s: stream failed: %v; restarting in %s", p.name, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// consume is one life of the stream: resume from the committed offset and
// process until ctx cancellation or an exhausted handler failure.
func (p *Processor) consume(ctx context.Context) error {
	position, err := p.offsets.LoadOffset(ctx, p.name)
	if err != nil {
		return fmt.Errorf("load offset: %w", err)
	}

	pending := 0
	lastCommit := time.Now()

	commit := func() error {
		if pending == 0 {
			return nil
		}
		if err := p.offsets.SaveOffset(ctx, p.name, position); err != nil {
			return fmt.Errorf("commit offset %d: %w", position, err)
		}
		pending = 0
		lastCommit = time.Now()
		return nil
	}

	// Non-zero while the reader is holding at a hole in the offset
	// sequence, waiting for a lagging append to commit.
	var gapDeadline time.Time

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := p.store.ReadByTag(ctx, p.tag, position, p.opts.PageSize)
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}

		progressed := false
		for _, env := range page {
			if env.Offset > position+1 {
				if gapDeadline.IsZero() {
					gapDeadline = time.Now().Add(p.opts.GapWait)
				}
				if time.Now().Before(gapDeadline) {
					// Hold and re-read; the missing offset usually shows
					// up within one transaction's lifetime.
					break
				}
				log.Printf("projection %s: offsets %d-%d never became visible; skipping",
					p.name, position+1, env.Offset-1)
			}
			gapDeadline = time.Time{}
			if err := p.handleWithRetry(ctx, env); err != nil {
				return err
			}
			position = env.Offset
			pending++
			progressed = true
			if pending >= p.opts.CommitBatch || time.Since(lastCommit) >= p.opts.CommitInterval {
				if err := commit(); err != nil {
					return err
				}
			}
		}

		if !progressed {
			if time.Since(lastCommit) >= p.opts.CommitInterval {
				if err := commit(); err != nil {
					return err
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.opts.PollInterval):
			}
		}
	}
}

// handleWithRetry retries one event with exponential backoff before giving
// up and escalating to a stream restart.
func (p *Processor) handleWithRetry(ctx context.Context, env eventstore.Envelope) error {
	delay := p.opts.RetryBase
	var lastErr error
	for attempt := 1; attempt <= p.opts.RetryAttempts; attempt++ {
		lastErr = p.handler.Handle(ctx, env)
		if lastErr == nil {
			return nil
		}
		if attempt == p.opts.RetryAttempts {
			break
		}
		log.Printf("projection %s: offset %d attempt %d/%d failed: %v",
			p.name, env.Offset, attempt, p.opts.RetryAttempts, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("offset %d failed after %d attempts: %w", env.Offset, p.opts.RetryAttempts, lastErr)
}

func (p *Processor) restartBackoff() time.Duration {
	spread := p.opts.RestartMax - p.opts.RestartMin
	return p.opts.RestartMin + time.Duration(rand.Int63n(int64(spread)))
}
