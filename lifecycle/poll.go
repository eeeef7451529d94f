package lifecycle

import (
	"errors"

	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/kaleidoswap/desktop-app-sub002/payerr"
)

// startPollingLocked launches the status loop of a submitted attempt.
func (c *Controller) startPollingLocked(a *PaymentAttempt) {
	if c.poll != nil {
		c.poll.stop()
	}

	p := &poller{
		attemptID: a.ID,
		ticker:    c.cfg.NewTicker(c.cfg.PollInterval),
		timeout:   c.cfg.Clock.TickAfter(c.cfg.PollTimeout),
		deadline:  c.cfg.Clock.Now().Add(c.cfg.PollTimeout),
		quit:      make(chan struct{}),
	}
	c.poll = p
	c.setStateLocked(StatePolling)

	log.Debugf("Polling payment %v every %v for up to %v", a.NodeID,
		c.cfg.PollInterval, c.cfg.PollTimeout)

	c.wg.Add(1)
	go c.pollLoop(a, p)
}

// pollLoop queries the node until the payment ends, the deadline passes or
// the poller is stopped. The ticker is stopped on every exit path.
//
// NOTE: MUST be run as a goroutine.
func (c *Controller) pollLoop(a *PaymentAttempt, p *poller) {
	defer c.wg.Done()

	p.ticker.Resume()
	defer p.ticker.Stop()

	for {
		select {
		case <-p.ticker.Ticks():
			if !c.cfg.Clock.Now().Before(p.deadline) {
				c.expire(a)
				return
			}

			status, err := c.cfg.Node.PollStatus(c.ctx, a.NodeID)
			c.cfg.Metrics.ObservePoll(a.Rail)

			switch {
			case errors.Is(err, node.ErrNotFound):
				log.Debugf("Payment %v not yet known to node",
					a.NodeID)

			case err != nil:
				log.Warnf("Unable to poll payment %v: %v",
					a.NodeID, err)

			case status.Terminal():
				c.finish(a, stateFor(status), nil)
				return
			}

		case <-p.timeout:
			c.expire(a)
			return

		case <-p.quit:
			return

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Controller) expire(a *PaymentAttempt) {
	c.finish(a, StateExpired, payerr.New(payerr.Expired, "no final "+
		"status after %v", c.cfg.PollTimeout))
}
