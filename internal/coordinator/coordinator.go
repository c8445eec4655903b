// Package coordinator owns all room state and serializes every mutation
// of it on a single event loop.
//
// Inbound events, disconnects and API queries are queued as closures on
// the loop and run one at a time to completion. Chat store calls run on a
// separate persistence worker in FIFO order; the broadcast that depends on
// a store call is queued back onto the loop once the call returns, so
// other events may interleave while the store is busy.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/collabrooms/internal/chat"
	"github.com/manpreetbhatti/collabrooms/internal/metrics"
	"github.com/manpreetbhatti/collabrooms/internal/protocol"
	"github.com/manpreetbhatti/collabrooms/internal/room"
)

var (
	ErrStopped      = errors.New("coordinator stopped")
	ErrRoomNotFound = errors.New("room not found")
)

// Transport delivers an outbound event to live connections. Unknown
// connection ids are ignored.
type Transport interface {
	Deliver(msg protocol.Outbound, connIDs ...string)
}

type Options struct {
	// Only the admin connection of the request's room may answer a join
	// request. When false any connection knowing the requester id may.
	StrictJoinResponses bool
	// Destroy a room as soon as its member set becomes empty
	CloseEmptyRooms bool
	// Upper bound for a single chat store call
	StoreTimeout time.Duration
	// Chat text limit in runes
	MaxMessageLength int
	// Capacity of the inbound event queue
	QueueSize int
	Now       func() time.Time
}

func DefaultOptions() Options {
	return Options{
		StrictJoinResponses: true,
		StoreTimeout:        5 * time.Second,
		MaxMessageLength:    protocol.DefaultMaxMessageLength,
		QueueSize:           1024,
		Now:                 time.Now,
	}
}

// job runs on the persistence worker and may return a continuation
// that is executed back on the event loop.
type job func(ctx context.Context) func()

type Coordinator struct {
	log       zerolog.Logger
	transport Transport
	store     chat.Store
	metrics   *metrics.Metrics
	opts      Options

	rooms   *room.Directory
	conns   *room.Registry
	pending *room.PendingQueue
	cursors *room.CursorIndex

	events  chan func()
	resume  chan func()
	jobs    chan job
	backlog []job
	done    chan struct{}
}

// New builds a coordinator. m may be nil.
func New(log zerolog.Logger, transport Transport, store chat.Store, m *metrics.Metrics, opts Options) *Coordinator {
	def := DefaultOptions()
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = def.StoreTimeout
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = def.MaxMessageLength
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}

	return &Coordinator{
		log:       log.With().Str("component", "coordinator").Logger(),
		transport: transport,
		store:     store,
		metrics:   m,
		opts:      opts,
		rooms:     room.NewDirectory(),
		conns:     room.NewRegistry(),
		pending:   room.NewPendingQueue(),
		cursors:   room.NewCursorIndex(),
		events:    make(chan func(), opts.QueueSize),
		resume:    make(chan func(), 64),
		jobs:      make(chan job),
		done:      make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	go c.persist(ctx)

	c.log.Info().Msg("event loop started")
	for {
		var (
			jobs chan job
			next job
		)
		if len(c.backlog) > 0 {
			jobs = c.jobs
			next = c.backlog[0]
		}

		select {
		case <-ctx.Done():
			c.log.Info().Int("unsaved_jobs", len(c.backlog)).Msg("event loop stopped")
			return
		case fn := <-c.events:
			c.safely(fn)
		case fn := <-c.resume:
			c.safely(fn)
		case jobs <- next:
			c.backlog[0] = nil
			c.backlog = c.backlog[1:]
		}
	}
}

// Done is closed once Run has returned
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) persist(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-c.jobs:
			jctx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
			then := j(jctx)
			cancel()
			if then == nil {
				continue
			}
			select {
			case c.resume <- then:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Coordinator) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("event handler panicked")
		}
	}()
	fn()
	c.observe()
}

// exec queues fn on the event loop
func (c *Coordinator) exec(ctx context.Context, fn func()) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.events <- fn:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// query runs fn on the event loop and waits for its result
func query[T any](ctx context.Context, c *Coordinator, fn func() T) (T, error) {
	var zero T
	res := make(chan T, 1)
	if err := c.exec(ctx, func() { res <- fn() }); err != nil {
		return zero, err
	}
	select {
	case v := <-res:
		return v, nil
	case <-c.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// enqueue schedules a store job; loop only
func (c *Coordinator) enqueue(j job) {
	c.backlog = append(c.backlog, j)
}

// Submit hands one inbound event from connID to the loop
func (c *Coordinator) Submit(ctx context.Context, connID string, in protocol.Inbound) error {
	return c.exec(ctx, func() { c.dispatch(connID, in) })
}

// Disconnect purges every trace of connID
func (c *Coordinator) Disconnect(ctx context.Context, connID string) error {
	return c.exec(ctx, func() { c.disconnect(connID) })
}

func (c *Coordinator) dispatch(connID string, in protocol.Inbound) {
	if c.metrics != nil {
		c.metrics.InboundEvents.WithLabelValues(in.Event()).Inc()
	}

	if err := c.validate(in); err != nil {
		c.reject(connID, in.Event(), err)
		return
	}

	switch e := in.(type) {
	case *protocol.JoinRoom:
		c.join(connID, e.RoomID, e.User)
	case *protocol.RespondJoinRequest:
		c.respond(connID, e.RequesterID, e.Accepted)
	case *protocol.CodeChange:
		c.codeChange(connID, e.Code)
	case *protocol.CursorPosition:
		c.cursorPosition(connID, e.RoomID, e.User, e.Position)
	case *protocol.LanguageChange:
		c.languageChange(connID, e.RoomID, e.Language)
	case *protocol.NewMessage:
		c.newMessage(connID, e.RoomID, e.User, e.Text)
	case *protocol.LeaveRoom:
		c.leave(connID, e.RoomID)
	case *protocol.CloseRoom:
		c.closeRoom(connID, e.RoomID)
	default:
		c.reject(connID, in.Event(), protocol.ErrUnknownEvent)
	}
}

func (c *Coordinator) validate(in protocol.Inbound) error {
	if m, ok := in.(*protocol.NewMessage); ok {
		return m.ValidateLength(c.opts.MaxMessageLength)
	}
	return in.Validate()
}

func (c *Coordinator) reject(connID, event string, err error) {
	c.log.Debug().Str("conn", connID).Str("event", event).Err(err).Msg("rejected event")
	if c.metrics != nil {
		c.metrics.RejectedEvents.WithLabelValues(event).Inc()
	}
	c.send(connID, protocol.Error(err.Error()))
}

func (c *Coordinator) send(connID string, msg protocol.Outbound) {
	c.transport.Deliver(msg, connID)
}

// broadcast sends msg to every member of r except the given connection
func (c *Coordinator) broadcast(r *room.Room, except string, msg protocol.Outbound) {
	ids := r.ConnIDs(except)
	if len(ids) == 0 {
		return
	}
	c.transport.Deliver(msg, ids...)
}

// memberRoom resolves roomID only if connID is currently a member of it
func (c *Coordinator) memberRoom(connID, roomID string) (*room.Room, bool) {
	bound, ok := c.conns.Lookup(connID)
	if !ok || bound != roomID {
		return nil, false
	}
	return c.rooms.Get(roomID)
}

func (c *Coordinator) now() time.Time {
	return c.opts.Now()
}

func (c *Coordinator) storeFailed(op, roomID string, err error) {
	c.log.Error().Err(err).Str("op", op).Str("room", roomID).Msg("chat store call failed")
	if c.metrics != nil {
		c.metrics.StoreFailures.WithLabelValues(op).Inc()
	}
}

// clearHistory schedules removal of a room's stored chat
func (c *Coordinator) clearHistory(roomID string) {
	c.enqueue(func(ctx context.Context) func() {
		if err := c.store.Clear(ctx, roomID); err != nil {
			c.storeFailed("clear", roomID, err)
		}
		return nil
	})
}

func (c *Coordinator) observe() {
	if c.metrics == nil {
		return
	}
	c.metrics.ActiveRooms.Set(float64(c.rooms.Len()))
	c.metrics.JoinedConnections.Set(float64(c.conns.Len()))
	c.metrics.PendingRequests.Set(float64(c.pending.Len()))
}
