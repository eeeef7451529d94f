package feequote

import (
	"fmt"

	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/kaleidoswap/desktop-app-sub002/target"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shopspring/decimal"
)

// QuoteID identifies a quote. IDs increase monotonically per Aggregator.
type QuoteID uint64

// Key is what a quote was computed for. A quote is only valid for the key
// it carries.
type Key struct {
	Target string
	Asset  string
	Amount int64
	Rail   target.Rail
}

// FeeQuote is a fee quote for one or more rails. The set of implementations
// is closed.
type FeeQuote interface {
	// ID returns the quote id.
	ID() QuoteID

	// QuoteKey returns the key the quote was computed for.
	QuoteKey() Key

	// FeeSats returns the fee in satoshis at the given speed.
	FeeSats(speed node.Speed) int64

	sealed()
}

// Header carries the identity shared by every quote.
type Header struct {
	QuoteID QuoteID
	Key     Key
}

// ID returns the quote id.
func (h *Header) ID() QuoteID { return h.QuoteID }

// QuoteKey returns the key the quote was computed for.
func (h *Header) QuoteKey() Key { return h.Key }

// LightningFee is the worst case routing fee of a Lightning payment.
type LightningFee struct {
	Header

	Sats int64
}

func (l *LightningFee) FeeSats(node.Speed) int64 { return l.Sats }
func (l *LightningFee) sealed()                  {}

// OnchainFee holds the fee rates of the three speed tiers in sat/vB and the
// user's custom rate, if any.
type OnchainFee struct {
	Header

	Slow   decimal.Decimal
	Medium decimal.Decimal
	Fast   decimal.Decimal
	Custom fn.Option[decimal.Decimal]

	// VBytes is the size the absolute fee is estimated for.
	VBytes int64
}

// Rate returns the fee rate used at speed. A custom rate overrides the
// tiers.
func (o *OnchainFee) Rate(speed node.Speed) decimal.Decimal {
	return o.Custom.UnwrapOrFunc(func() decimal.Decimal {
		switch speed {
		case node.SpeedSlow:
			return o.Slow
		case node.SpeedFast:
			return o.Fast
		default:
			return o.Medium
		}
	})
}

// FeeSats returns the estimated absolute fee, rounded up.
func (o *OnchainFee) FeeSats(speed node.Speed) int64 {
	return o.Rate(speed).Mul(decimal.NewFromInt(o.VBytes)).Ceil().IntPart()
}

func (o *OnchainFee) sealed() {}

// AssetRailFee is the bitcoin fee of moving an asset.
type AssetRailFee struct {
	Header

	Sats int64

	// Rate is the on-chain fee rate used, for asset on-chain transfers.
	Rate fn.Option[decimal.Decimal]
}

func (a *AssetRailFee) FeeSats(node.Speed) int64 { return a.Sats }
func (a *AssetRailFee) sealed()                  {}

// L2Fee is the Layer-2 SDK's authoritative fee for a prepared send.
type L2Fee struct {
	Header

	Sats int64

	// OnChain holds the tiered fees when the send exits on-chain.
	OnChain fn.Option[node.OnChainFeeTiers]

	// Prepared is the SDK response the fee was taken from. It is passed
	// back to the SDK on submit.
	Prepared *node.PreparedSend
}

// FeeSats returns the fee at speed.
func (l *L2Fee) FeeSats(speed node.Speed) int64 {
	exit := fn.ElimOption(l.OnChain, func() int64 { return 0 },
		func(t node.OnChainFeeTiers) int64 {
			switch speed {
			case node.SpeedSlow:
				return t.Slow
			case node.SpeedFast:
				return t.Fast
			default:
				return t.Medium
			}
		},
	)

	return l.Sats + exit
}

func (l *L2Fee) sealed() {}

// CompositeFee holds one quote per applicable rail.
type CompositeFee struct {
	Header

	Quotes map[target.Rail]FeeQuote

	// Recommended is set only when one rail is strictly cheapest.
	Recommended fn.Option[target.Rail]

	// Speed is the speed the recommendation was computed for.
	Speed node.Speed
}

// FeeSats returns the fee of the recommended rail, or the cheapest one.
func (c *CompositeFee) FeeSats(speed node.Speed) int64 {
	if c.Recommended.IsSome() {
		rail := c.Recommended.UnwrapOr(0)
		return c.Quotes[rail].FeeSats(speed)
	}

	var lowest int64 = -1
	for _, q := range c.Quotes {
		fee := q.FeeSats(speed)
		if lowest < 0 || fee < lowest {
			lowest = fee
		}
	}

	return max(lowest, 0)
}

// ForRail returns the quote of a single rail.
func (c *CompositeFee) ForRail(rail target.Rail) (FeeQuote, error) {
	q, ok := c.Quotes[rail]
	if !ok {
		return nil, fmt.Errorf("no quote for rail %v", rail)
	}

	return q, nil
}

func (c *CompositeFee) sealed() {}

// Compile-time checks that every variant implements FeeQuote.
var (
	_ FeeQuote = (*LightningFee)(nil)
	_ FeeQuote = (*OnchainFee)(nil)
	_ FeeQuote = (*AssetRailFee)(nil)
	_ FeeQuote = (*L2Fee)(nil)
	_ FeeQuote = (*CompositeFee)(nil)
)

// recommend returns the rail whose fee is strictly lower than every other.
func recommend(quotes map[target.Rail]FeeQuote,
	speed node.Speed) fn.Option[target.Rail] {

	var (
		best     target.Rail
		bestFee  int64
		tied     bool
		haveBest bool
	)
	for rail, q := range quotes {
		fee := q.FeeSats(speed)
		switch {
		case !haveBest || fee < bestFee:
			best, bestFee, tied, haveBest = rail, fee, false, true
		case fee == bestFee:
			tied = true
		}
	}

	if !haveBest || tied || len(quotes) < 2 {
		return fn.None[target.Rail]()
	}

	return fn.Some(best)
}
