package feequote

import (
	"sync"

	"github.com/kaleidoswap/desktop-app-sub002/payerr"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// tracked is the quote the tracker currently accepts.
type tracked struct {
	id  QuoteID
	key Key
}

// Tracker holds the single quote that may be committed. Any change of
// target, asset, amount or rail invalidates it.
type Tracker struct {
	mu      sync.Mutex
	current fn.Option[tracked]
}

// NewTracker returns a tracker with no current quote.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Track makes q, selected for key, the current quote. It replaces any
// previous one.
func (t *Tracker) Track(q FeeQuote, key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = fn.Some(tracked{id: q.ID(), key: key})
}

// Observe reports the key of the form as it is now. The current quote is
// dropped when it was computed for a different key. It returns true if a
// quote was invalidated.
func (t *Tracker) Observe(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	stale := fn.ElimOption(t.current, func() bool { return false },
		func(c tracked) bool { return c.key != key },
	)
	if stale {
		log.Debugf("Quote invalidated, key changed to %+v", key)
		t.current = fn.None[tracked]()
	}

	return stale
}

// Invalidate drops the current quote.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = fn.None[tracked]()
}

// Validate returns QuoteStale unless q is the current quote.
func (t *Tracker) Validate(q FeeQuote) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ok := fn.ElimOption(t.current, func() bool { return false },
		func(c tracked) bool { return q != nil && c.id == q.ID() },
	)
	if !ok {
		id := QuoteID(0)
		if q != nil {
			id = q.ID()
		}

		return payerr.New(payerr.QuoteStale, "quote %d is no longer "+
			"valid", id)
	}

	return nil
}
