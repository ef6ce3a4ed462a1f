package entity

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/joamik/cinema-reservation/internal/domain"
	"github.com/joamik/cinema-reservation/internal/eventstore"
)

// ErrAskTimeout reports that the gateway gave up waiting for an entity
// reply. This is an infrastructure condition, never a domain rejection, and
// the command may still take effect after the deadline: the gateway performs
// no retries and no deduplication, so a caller that retries after a timeout
// accepts the risk of applying the command twice.
var ErrAskTimeout = errors.New("show service: ask timed out")

// ErrShowNotFound is returned by FindShowBy for an absent aggregate.
var ErrShowNotFound = errors.New("show service: show not found")

// errEntityStopped is the internal signal that an entity died between
// resolution and reply; the gateway resolves a fresh entity once.
var errEntityStopped = errors.New("show service: entity stopped")

const (
	defaultAskTimeout  = 500 * time.Millisecond
	defaultShardCount  = 32
	defaultMailboxSize = 64
)

// Config tunes the gateway. Zero values fall back to defaults.
type Config struct {
	// AskTimeout bounds every request-reply interaction with an entity.
	AskTimeout time.Duration
	// ShardCount fixes the number of registry shards commands are
	// partitioned over by aggregate id.
	ShardCount int
	// MailboxSize is the per-entity command queue capacity.
	MailboxSize int
}

func (c Config) withDefaults() Config {
	if c.AskTimeout <= 0 {
		c.AskTimeout = defaultAskTimeout
	}
	if c.ShardCount <= 0 {
		c.ShardCount = defaultShardCount
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = defaultMailboxSize
	}
	return c
}

// shard is one partition of the entity registry. Partitioning by hashed
// aggregate id keeps registry contention bounded without any global lock.
type shard struct {
	mu       sync.Mutex
	entities map[domain.ShowID]*showEntity
}

// ShowService is the command gateway. It resolves (and lazily activates) the
// owning entity for an aggregate id and performs request-reply with a
// bounded timeout. Domain rejections come back as domain.CommandError
// values; timeouts and storage failures come back as distinct
// infrastructure errors.
type ShowService struct {
	store       eventstore.Store
	clock       domain.Clock
	askTimeout  time.Duration
	mailboxSize int
	shards      []*shard
	quit        chan struct{}
	stopOnce    sync.Once
}

// NewShowService constructs a gateway over the given event store.
func NewShowService(store eventstore.Store, clock domain.Clock, cfg Config) *ShowService {
	cfg = cfg.withDefaults()
	shards := make([]*shard, cfg.ShardCount)
	for i := range shards {
		shards[i] = &shard{entities: make(map[domain.ShowID]*showEntity)}
	}
	return &ShowService{
		store:       store,
		clock:       clock,
		askTimeout:  cfg.AskTimeout,
		mailboxSize: cfg.MailboxSize,
		shards:      shards,
		quit:        make(chan struct{}),
	}
}

// CreateShow submits a CreateShow command for id.
func (s *ShowService) CreateShow(ctx context.Context, id domain.ShowID, title string, maxSeats int) error {
	return s.askCommand(ctx, domain.CreateShow{ID: id, Title: title, MaxSeats: maxSeats})
}

// ReserveSeat submits a ReserveSeat command for id.
func (s *ShowService) ReserveSeat(ctx context.Context, id domain.ShowID, seatNumber domain.SeatNumber) error {
	return s.askCommand(ctx, domain.ReserveSeat{ID: id, SeatNumber: seatNumber})
}

// CancelReservation submits a CancelSeatReservation command for id.
func (s *ShowService) CancelReservation(ctx context.Context, id domain.ShowID, seatNumber domain.SeatNumber) error {
	return s.askCommand(ctx, domain.CancelSeatReservation{ID: id, SeatNumber: seatNumber})
}

// FindShowBy returns the current aggregate snapshot, or ErrShowNotFound if
// no ShowCreated event has ever been applied for id.
func (s *ShowService) FindShowBy(ctx context.Context, id domain.ShowID) (*domain.Show, error) {
	timer := time.NewTimer(s.askTimeout)
	defer timer.Stop()

	for attempt := 0; attempt < 2; attempt++ {
		e := s.entityFor(id)
		reply := make(chan showSnapshot, 1)

		snapshot, err := s.ask(ctx, e, getShow{replyTo: reply}, reply, timer)
		if errors.Is(err, errEntityStopped) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if snapshot.err != nil {
			return nil, snapshot.err
		}
		if snapshot.show == nil {
			return nil, ErrShowNotFound
		}
		return snapshot.show, nil
	}
	return nil, fmt.Errorf("show service: entity for %s unavailable", id)
}

// Stop shuts down every entity goroutine. In-flight commands that already
// reached an entity finish first; queued ones are abandoned and their
// callers time out.
func (s *ShowService) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

func (s *ShowService) askCommand(ctx context.Context, command domain.ShowCommand) error {
	timer := time.NewTimer(s.askTimeout)
	defer timer.Stop()

	for attempt := 0; attempt < 2; attempt++ {
		e := s.entityFor(command.ShowID())
		reply := make(chan error, 1)

		err := s.askErr(ctx, e, commandEnvelope{command: command, replyTo: reply}, reply, timer)
		if errors.Is(err, errEntityStopped) {
			continue
		}
		return err
	}
	return fmt.Errorf("show service: entity for %s unavailable", command.ShowID())
}

// askErr dispatches msg to e and waits for an error reply, the timeout, or
// entity death. The timeout cancels only the caller's wait: a command the
// entity already accepted still runs to completion.
func (s *ShowService) askErr(ctx context.Context, e *showEntity, msg message, reply chan error, timer *time.Timer) error {
	select {
	case e.mailbox <- msg:
	case <-e.stopped:
		return errEntityStopped
	case <-timer.C:
		return ErrAskTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-e.stopped:
		// The entity drains its mailbox before announcing death, so a
		// reply may already be buffered.
		select {
		case err := <-reply:
			return err
		default:
			return errEntityStopped
		}
	case <-timer.C:
		return ErrAskTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ask is askErr for snapshot queries.
func (s *ShowService) ask(ctx context.Context, e *showEntity, msg message, reply chan showSnapshot, timer *time.Timer) (showSnapshot, error) {
	select {
	case e.mailbox <- msg:
	case <-e.stopped:
		return showSnapshot{}, errEntityStopped
	case <-timer.C:
		return showSnapshot{}, ErrAskTimeout
	case <-ctx.Done():
		return showSnapshot{}, ctx.Err()
	}

	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-e.stopped:
		select {
		case snapshot := <-reply:
			return snapshot, nil
		default:
			return showSnapshot{}, errEntityStopped
		}
	case <-timer.C:
		return showSnapshot{}, ErrAskTimeout
	case <-ctx.Done():
		return showSnapshot{}, ctx.Err()
	}
}

// entityFor resolves the live entity owning id, activating one if the shard
// has none (or only a stopped one) registered.
func (s *ShowService) entityFor(id domain.ShowID) *showEntity {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.entities[id]; ok {
		select {
		case <-e.stopped:
			delete(sh.entities, id)
		default:
			return e
		}
	}

	e := newShowEntity(id, s.store, s.clock, s.mailboxSize, s.quit)
	e.evict = func() { s.removeEntity(id, e) }
	sh.entities[id] = e
	go e.run()
	return e
}

func (s *ShowService) removeEntity(id domain.ShowID, e *showEntity) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.entities[id] == e {
		delete(sh.entities, id)
	}
}

// shardFor maps an aggregate id onto its registry shard by FNV-1a hash.
// This is the stable "resolve owner for id" boundary: a multi-node
// deployment would swap the shard lookup for a cluster ownership protocol
// without changing callers.
func (s *ShowService) shardFor(id domain.ShowID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[int(h.Sum32())%len(s.shards)]
}
