package lifecycle

import (
	"slices"
	"time"

	"github.com/kaleidoswap/desktop-app-sub002/feequote"
	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/kaleidoswap/desktop-app-sub002/target"
	"github.com/kaleidoswap/desktop-app-sub002/units"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shopspring/decimal"
)

// TargetView is the serializable form of a classified payment target. Only
// the fields of the target's kind are set.
type TargetView struct {
	Kind string `json:"kind"`

	// Lightning invoice.
	Payee       string     `json:"payee,omitempty"`
	AmountMsat  *uint64    `json:"amount_msat,omitempty"`
	PaymentHash string     `json:"payment_hash,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	// Asset carried by a Lightning or asset invoice.
	AssetID     string  `json:"asset_id,omitempty"`
	AssetAmount *uint64 `json:"asset_amount,omitempty"`

	// Asset invoice.
	RecipientID    string   `json:"recipient_id,omitempty"`
	RecipientType  string   `json:"recipient_type,omitempty"`
	TransportHints []string `json:"transport_hints,omitempty"`

	// On-chain, Layer-2 and Lightning addresses.
	Address string `json:"address,omitempty"`
	Network string `json:"network,omitempty"`

	Reason string `json:"reason,omitempty"`
}

func optPtr[T any](o fn.Option[T]) *T {
	return fn.MapOptionZ(o, func(v T) *T { return &v })
}

// NewTargetView flattens a payment target.
func NewTargetView(t target.PaymentTarget) *TargetView {
	if t == nil {
		return nil
	}

	v := &TargetView{Kind: t.Kind().String()}

	switch t := t.(type) {
	case *target.OnChainAddress:
		v.Address = t.Address.String()
		v.Network = t.Network

	case *target.LightningInvoice:
		v.Payee = t.Payee
		v.AmountMsat = optPtr(fn.MapOption(
			func(m units.MilliSatoshi) uint64 { return uint64(m) },
		)(t.AmountMsat))
		v.PaymentHash = t.PaymentHash
		if t.Expiry > 0 {
			exp := t.ExpiresAt()
			v.ExpiresAt = &exp
		}
		v.AssetID = t.AssetID.UnwrapOr("")
		v.AssetAmount = optPtr(t.AssetAmount)

	case *target.LightningAddress:
		v.Address = t.Identifier

	case *target.AssetInvoice:
		v.RecipientID = t.RecipientID
		v.RecipientType = t.RecipientType
		v.TransportHints = slices.Clone(t.TransportHints)
		v.AssetID = t.AssetID.UnwrapOr("")
		v.AssetAmount = optPtr(t.Amount)
		v.ExpiresAt = optPtr(t.ExpiryTimestamp)

	case *target.L2Address:
		v.Address = t.Address

	case *target.Invalid:
		v.Reason = t.Reason
	}

	return v
}

// TierView holds the fees of the three on-chain speeds. Rates are in
// sat/vB and only known for sends the node prices itself.
type TierView struct {
	SlowSats   int64 `json:"slow_sats"`
	MediumSats int64 `json:"medium_sats"`
	FastSats   int64 `json:"fast_sats"`

	SlowRate   string `json:"slow_rate,omitempty"`
	MediumRate string `json:"medium_rate,omitempty"`
	FastRate   string `json:"fast_rate,omitempty"`
	CustomRate string `json:"custom_rate,omitempty"`
}

// RailFeeView is the fee of one rail.
type RailFeeView struct {
	Rail    string    `json:"rail"`
	FeeSats int64     `json:"fee_sats"`
	Tiers   *TierView `json:"tiers,omitempty"`
}

// QuoteView is the serializable form of a fee quote.
type QuoteView struct {
	ID          uint64        `json:"id"`
	Speed       string        `json:"speed"`
	Rails       []RailFeeView `json:"rails"`
	Recommended string        `json:"recommended_rail,omitempty"`
}

// NewQuoteView flattens a quote for speed. A composite quote yields one
// entry per rail, in rail order.
func NewQuoteView(q feequote.FeeQuote, speed node.Speed) *QuoteView {
	if q == nil {
		return nil
	}

	v := &QuoteView{
		ID:    uint64(q.ID()),
		Speed: speed.String(),
	}

	c, ok := q.(*feequote.CompositeFee)
	if !ok {
		v.Rails = []RailFeeView{railFeeView(q, speed)}
		return v
	}

	for _, rail := range target.AllRails {
		if rq, ok := c.Quotes[rail]; ok {
			v.Rails = append(v.Rails, railFeeView(rq, speed))
		}
	}
	v.Recommended = fn.MapOptionZ(c.Recommended, target.Rail.String)

	return v
}

func railFeeView(q feequote.FeeQuote, speed node.Speed) RailFeeView {
	v := RailFeeView{
		Rail:    q.QuoteKey().Rail.String(),
		FeeSats: q.FeeSats(speed),
	}

	switch q := q.(type) {
	case *feequote.OnchainFee:
		// The tiers are priced at their own rate even when a custom
		// rate is set.
		vbytes := decimal.NewFromInt(q.VBytes)
		sats := func(rate decimal.Decimal) int64 {
			return rate.Mul(vbytes).Ceil().IntPart()
		}
		v.Tiers = &TierView{
			SlowSats:   sats(q.Slow),
			MediumSats: sats(q.Medium),
			FastSats:   sats(q.Fast),
			SlowRate:   q.Slow.String(),
			MediumRate: q.Medium.String(),
			FastRate:   q.Fast.String(),
		}
		q.Custom.WhenSome(func(r decimal.Decimal) {
			v.Tiers.CustomRate = r.String()
		})

	case *feequote.L2Fee:
		q.OnChain.WhenSome(func(node.OnChainFeeTiers) {
			v.Tiers = &TierView{
				SlowSats:   q.FeeSats(node.SpeedSlow),
				MediumSats: q.FeeSats(node.SpeedMedium),
				FastSats:   q.FeeSats(node.SpeedFast),
			}
		})
	}

	return v
}
