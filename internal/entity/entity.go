// Package entity hosts the single-writer show entities and the ShowService
// gateway that routes commands to them. Each active show aggregate is owned
// by exactly one goroutine draining a mailbox channel, which serializes
// commands per aggregate while leaving different aggregates fully
// concurrent; there is no global lock on the write path.
package entity

import (
	"context"
	"fmt"
	"log"

	"github.com/joamik/cinema-reservation/internal/domain"
	"github.com/joamik/cinema-reservation/internal/eventstore"
)

// message is a mailbox entry: either a command envelope or a state query.
type message interface {
	isMessage()
}

// commandEnvelope carries a show command and the channel the entity replies
// on. The reply channel is buffered so a caller that gave up on its timeout
// never blocks the entity.
type commandEnvelope struct {
	command domain.ShowCommand
	replyTo chan error
}

// getShow asks for the current aggregate snapshot. A nil show in the reply
// means the aggregate is absent. Queries never touch storage.
type getShow struct {
	replyTo chan showSnapshot
}

// showSnapshot is the reply to a getShow query. err is only set when the
// entity could not establish its state at all (replay failure).
type showSnapshot struct {
	show *domain.Show
	err  error
}

func (commandEnvelope) isMessage() {}
func (getShow) isMessage()         {}

// showEntity is the single writer for one aggregate id. Its in-memory state
// is rebuilt from the event log on activation and only the entity's own
// goroutine ever reads or mutates it afterwards.
type showEntity struct {
	id      domain.ShowID
	store   eventstore.Store
	clock   domain.Clock
	mailbox chan message

	// stopped is closed after the entity has drained its mailbox and will
	// never reply again. Senders select on it to avoid waiting on a dead
	// entity.
	stopped chan struct{}
	// quit is the service-wide shutdown signal.
	quit <-chan struct{}
	// evict removes this instance from the gateway registry so the next
	// activation replays from the log.
	evict func()
}

func newShowEntity(id domain.ShowID, store eventstore.Store, clock domain.Clock, mailboxSize int, quit <-chan struct{}) *showEntity {
	return &showEntity{
		id:      id,
		store:   store,
		clock:   clock,
		mailbox: make(chan message, mailboxSize),
		stopped: make(chan struct{}),
		quit:    quit,
	}
}

// run is the entity's event loop. It replays history once, then processes
// mailbox messages strictly in order until shutdown or a fatal storage
// failure. On a fatal failure the entity evicts itself so the next command
// for this id activates a fresh entity that replays from the log.
func (e *showEntity) run() {
	defer close(e.stopped)

	state, err := e.recover()
	if err != nil {
		log.Printf("show-entity %s: recover failed: %v", e.id, err)
		e.fail(fmt.Errorf("recover show %s: %w", e.id, err))
		return
	}

	for {
		select {
		case <-e.quit:
			return
		case msg := <-e.mailbox:
			switch m := msg.(type) {
			case getShow:
				m.replyTo <- showSnapshot{show: state}
			case commandEnvelope:
				next, err := e.handleCommand(state, m)
				if err != nil {
					e.fail(err)
					return
				}
				state = next
			}
		}
	}
}

// recover rebuilds aggregate state from the full persisted history. A show
// that has never been created yields nil state.
func (e *showEntity) recover() (*domain.Show, error) {
	envelopes, err := e.store.ReadAll(context.Background(), e.id)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var state *domain.Show
	for _, env := range envelopes {
		next, err := domain.Apply(state, env.Event)
		if err != nil {
			return nil, fmt.Errorf("apply seq %d: %w", env.Seq, err)
		}
		state = next
	}
	return state, nil
}

// handleCommand runs one command to completion: process, persist, apply,
// reply. A domain rejection is replied immediately and leaves state and
// storage untouched. A persistence or apply failure is replied as an
// infrastructure error and returned so the caller tears the entity down;
// in-memory state is never advanced past what the log holds.
func (e *showEntity) handleCommand(state *domain.Show, m commandEnvelope) (*domain.Show, error) {
	events, err := domain.Process(state, m.command, e.clock)
	if err != nil {
		m.replyTo <- err
		return state, nil
	}

	// Persist before replying: a CommandProcessed answer always means the
	// events are durable. The append is deliberately not bound to the
	// caller's deadline; work already dispatched completes even if the
	// caller stopped waiting.
	if err := e.store.Append(context.Background(), e.id, events); err != nil {
		appendErr := fmt.Errorf("append events for show %s: %w", e.id, err)
		m.replyTo <- appendErr
		return state, appendErr
	}

	next := state
	for _, ev := range events {
		applied, err := domain.Apply(next, ev)
		if err != nil {
			// The log now holds an event the state machine refuses;
			// poison this entity rather than serve from a state that
			// diverged from the log.
			applyErr := fmt.Errorf("apply persisted event for show %s: %w", e.id, err)
			m.replyTo <- applyErr
			return state, applyErr
		}
		next = applied
	}

	m.replyTo <- nil
	return next, nil
}

// fail evicts the entity and answers everything still queued with cause.
// Messages that race past the drain are covered by the stopped channel on
// the sender side.
func (e *showEntity) fail(cause error) {
	if e.evict != nil {
		e.evict()
	}
	for {
		select {
		case msg := <-e.mailbox:
			switch m := msg.(type) {
			case getShow:
				m.replyTo <- showSnapshot{err: cause}
			case commandEnvelope:
				m.replyTo <- cause
			}
		default:
			return
		}
	}
}
