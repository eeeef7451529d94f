package lifecycle

import (
	"time"

	"github.com/kaleidoswap/desktop-app-sub002/feequote"
	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/kaleidoswap/desktop-app-sub002/target"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Outcome is how an attempt ended.
type Outcome struct {
	State State
	At    time.Time
	Err   error
}

// PaymentAttempt is a single try at paying a target. It is created by
// Prepare and never reused once it ends.
type PaymentAttempt struct {
	// ID is the local id of the attempt.
	ID string

	// NodeID is the id returned by the node or SDK on submit.
	NodeID string

	Target          target.PaymentTarget
	Asset           string
	RequestedAmount int64
	Rail            target.Rail
	Speed           node.Speed
	Quote           feequote.FeeQuote
	CreatedAt       time.Time

	// Result is set once the attempt reaches a terminal state.
	Result fn.Option[Outcome]
}

// PrepareOptions tune Prepare.
type PrepareOptions struct {
	// Speed is the on-chain confirmation speed.
	Speed node.Speed

	// CustomFeeRate is a user supplied on-chain fee rate in sat/vB.
	CustomFeeRate fn.Option[string]
}
