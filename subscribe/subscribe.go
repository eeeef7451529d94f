package subscribe

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/queue"
)

// DefaultQueueSize is the initial buffer of each client queue. The queue
// grows past it, so a slow reader never blocks the publisher.
const DefaultQueueSize = 20

// ErrServerShuttingDown is returned once the server has been stopped.
var ErrServerShuttingDown = errors.New("snapshot server shutting down")

// Client receives the snapshots published after it subscribed, starting
// with the latest one published before.
type Client struct {
	id      uint64
	cancel  func()
	updates *queue.ConcurrentQueue
	quit    chan struct{}
}

// Updates returns the channel snapshots are delivered on.
func (c *Client) Updates() <-chan interface{} {
	return c.updates.ChanOut()
}

// Quit is closed when the server stops delivering to this client.
func (c *Client) Quit() <-chan struct{} {
	return c.quit
}

// Cancel ends the subscription.
func (c *Client) Cancel() {
	c.cancel()
}

// Server fans out snapshots to every subscribed client. The last snapshot
// is replayed to new clients so they never start from an empty view.
type Server struct {
	nextClientID atomic.Uint64

	started atomic.Bool
	stopped atomic.Bool

	queueSize int

	clients  map[uint64]*Client
	registry chan registration
	updates  chan interface{}

	// latest is owned by the handler goroutine.
	latest    interface{}
	hasLatest bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// registration adds or removes a client.
type registration struct {
	remove bool
	client *Client
}

// NewServer returns a server whose clients buffer queueSize snapshots
// before their queue starts growing. A non-positive size selects
// DefaultQueueSize.
func NewServer(queueSize int) *Server {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Server{
		queueSize: queueSize,
		clients:   make(map[uint64]*Client),
		registry:  make(chan registration),
		updates:   make(chan interface{}),
		quit:      make(chan struct{}),
	}
}

// Start launches the fan-out goroutine.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	s.wg.Add(1)
	go s.fanOut()

	return nil
}

// Stop shuts down the server and closes every client's quit channel.
func (s *Server) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	close(s.quit)
	s.wg.Wait()

	return nil
}

// Subscribe registers a new client.
func (s *Server) Subscribe() (*Client, error) {
	client := &Client{
		id:      s.nextClientID.Add(1),
		updates: queue.NewConcurrentQueue(s.queueSize),
		quit:    make(chan struct{}),
	}
	client.cancel = func() {
		select {
		case s.registry <- registration{remove: true, client: client}:
		case <-s.quit:
		}
	}

	select {
	case s.registry <- registration{client: client}:
	case <-s.quit:
		return nil, ErrServerShuttingDown
	}

	return client, nil
}

// SendUpdate publishes a snapshot to all current clients.
func (s *Server) SendUpdate(update interface{}) error {
	select {
	case s.updates <- update:
		return nil
	case <-s.quit:
		return ErrServerShuttingDown
	}
}

// deliver pushes an update into a client's queue. It returns false if the
// server is quitting.
func (s *Server) deliver(c *Client, update interface{}) bool {
	select {
	case c.updates.ChanIn() <- update:
	case <-c.quit:
	case <-s.quit:
		return false
	}

	return true
}

// fanOut owns the client set and the latest snapshot.
//
// NOTE: MUST be run as a goroutine.
func (s *Server) fanOut() {
	defer s.wg.Done()

	for {
		select {
		case reg := <-s.registry:
			c := reg.client
			if reg.remove {
				if _, ok := s.clients[c.id]; ok {
					c.updates.Stop()
					close(c.quit)
					delete(s.clients, c.id)
				}

				continue
			}

			c.updates.Start()
			s.clients[c.id] = c

			if s.hasLatest && !s.deliver(c, s.latest) {
				s.shutdown()
				return
			}

		case upd := <-s.updates:
			s.latest, s.hasLatest = upd, true

			for _, c := range s.clients {
				if !s.deliver(c, upd) {
					s.shutdown()
					return
				}
			}

		case <-s.quit:
			s.shutdown()
			return
		}
	}
}

func (s *Server) shutdown() {
	for id, c := range s.clients {
		c.updates.Stop()
		close(c.quit)
		delete(s.clients, id)
	}
}
