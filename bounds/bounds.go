package bounds

import (
	"fmt"
	"math"

	"github.com/kaleidoswap/desktop-app-sub002/asset"
	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/kaleidoswap/desktop-app-sub002/payerr"
	"github.com/kaleidoswap/desktop-app-sub002/target"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shopspring/decimal"
)

const (
	// DefaultDustLimit is the smallest on-chain output in satoshis.
	DefaultDustLimit int64 = 546

	// DefaultHTLCReserve is the amount in satoshis kept below the HTLC
	// ceiling to leave room for routing fees.
	DefaultHTLCReserve int64 = 3000
)

// Limits are the policy constants the bounds are computed with.
type Limits struct {
	// DustLimit is the on-chain minimum in satoshis.
	DustLimit int64

	// HTLCReserve is subtracted from the HTLC ceiling.
	HTLCReserve int64

	// AssetRate is the number of asset base units one satoshi is worth.
	// When None, asset Lightning payments are bounded by the asset
	// channel balance alone.
	AssetRate fn.Option[decimal.Decimal]
}

// DefaultLimits returns the default policy.
func DefaultLimits() Limits {
	return Limits{
		DustLimit:   DefaultDustLimit,
		HTLCReserve: DefaultHTLCReserve,
	}
}

// AmountBound is the closed interval of amounts that can be sent for a
// target, in base units of Asset.
type AmountBound struct {
	Min int64
	Max int64

	// Asset is the id of the asset the bound is expressed in.
	Asset string

	// Rail is the rail the bound was computed for.
	Rail target.Rail

	// Fixed is set when the target dictates the amount.
	Fixed bool

	// Infeasible is set when no amount can be sent. Reason names the
	// cause.
	Infeasible bool
	Reason     string
}

// Check validates an amount against the bound. An infeasible bound always
// reports InfeasibleBound, whatever the amount.
func (b AmountBound) Check(amount int64) error {
	if b.Infeasible {
		return payerr.New(payerr.InfeasibleBound, "%s", b.Reason)
	}

	if amount < b.Min || amount > b.Max {
		return payerr.New(payerr.OutOfRange, "amount %d outside "+
			"[%d, %d]", amount, b.Min, b.Max)
	}

	return nil
}

// String returns a compact description of the bound.
func (b AmountBound) String() string {
	if b.Infeasible {
		return fmt.Sprintf("infeasible(%s, %s: %s)", b.Rail, b.Asset,
			b.Reason)
	}

	return fmt.Sprintf("[%d, %d] %s via %s fixed=%v", b.Min, b.Max,
		b.Asset, b.Rail, b.Fixed)
}

// Calculate computes the bound for the target's primary rail.
func Calculate(t target.PaymentTarget, a asset.Asset, bal *node.Balances,
	limits Limits) AmountBound {

	primary := target.PrimaryRail(t)
	if primary.IsNone() {
		reason := "invalid payment target"
		if inv, ok := t.(*target.Invalid); ok {
			reason = inv.Reason
		}

		return AmountBound{
			Asset:      a.ID,
			Infeasible: true,
			Reason:     reason,
		}
	}

	return CalculateFor(primary.UnwrapOr(0), t, a, bal, limits)
}

// CalculateFor computes the bound for paying t over the given rail.
func CalculateFor(rail target.Rail, t target.PaymentTarget, a asset.Asset,
	bal *node.Balances, limits Limits) AmountBound {

	b := AmountBound{
		Asset: a.ID,
		Rail:  rail,
	}

	fixed, err := fixedAmount(t, rail)
	if err != nil {
		return infeasible(b, err.Error())
	}
	fixed.WhenSome(func(amt int64) {
		b.Min, b.Max, b.Fixed = amt, amt, true
	})

	var (
		avail     int64
		reasonMax string
	)
	switch rail {
	case target.RailOnChain:
		if !b.Fixed {
			b.Min = limits.DustLimit
		}
		avail = bal.OnChain
		reasonMax = "insufficient on-chain balance"

	case target.RailAssetOnChain:
		avail = bal.OnChain
		reasonMax = "insufficient asset balance"

	case target.RailLightning:
		headroom, ok := htlcHeadroom(bal, limits)
		if !ok {
			return infeasible(b, htlcReason(bal, limits))
		}

		avail = min(bal.LightningOutbound, headroom)
		reasonMax = "insufficient outbound capacity"

	case target.RailAssetLightning:
		headroom, ok := htlcHeadroom(bal, limits)
		if !ok {
			return infeasible(b, htlcReason(bal, limits))
		}

		avail = bal.AssetOffchainOutbound
		limits.AssetRate.WhenSome(func(rate decimal.Decimal) {
			converted := decimal.NewFromInt(headroom).Mul(rate).
				Floor().IntPart()
			avail = min(avail, converted)
		})
		reasonMax = "insufficient asset outbound capacity"

	case target.RailL2:
		avail = bal.L2
		reasonMax = "insufficient Layer-2 balance"

	default:
		return infeasible(b, fmt.Sprintf("unsupported rail %v", rail))
	}

	avail = max(avail, 0)

	if b.Fixed {
		if b.Max > avail {
			return infeasible(b, "insufficient capacity")
		}

		return b
	}

	b.Max = avail
	if b.Max < b.Min {
		return infeasible(b, reasonMax)
	}

	return b
}

// fixedAmount returns the amount dictated by the target on the rail, in base
// units of the asset being paid.
func fixedAmount(t target.PaymentTarget, rail target.Rail) (fn.Option[int64],
	error) {

	switch t := t.(type) {
	case *target.LightningInvoice:
		if rail == target.RailAssetLightning {
			return toInt64(t.AssetAmount)
		}

		return t.FixedSats(), nil

	case *target.AssetInvoice:
		return toInt64(t.Amount)

	case *target.OnChainAddress, *target.LightningAddress,
		*target.L2Address:

		return fn.None[int64](), nil

	case *target.Invalid:
		return fn.None[int64](), fmt.Errorf("%s", t.Reason)

	default:
		panic(fmt.Sprintf("unknown payment target %T", t))
	}
}

func toInt64(o fn.Option[uint64]) (fn.Option[int64], error) {
	if o.IsNone() {
		return fn.None[int64](), nil
	}

	v := o.UnwrapOr(0)
	if v > math.MaxInt64 {
		return fn.None[int64](), fmt.Errorf("invoice amount %d "+
			"exceeds maximum representable amount", v)
	}

	return fn.Some(int64(v)), nil
}

// htlcHeadroom returns the HTLC ceiling less the reserve, and false if the
// ceiling does not cover the reserve.
func htlcHeadroom(bal *node.Balances, limits Limits) (int64, bool) {
	if bal.HTLCCeiling < limits.HTLCReserve {
		return 0, false
	}

	return bal.HTLCCeiling - limits.HTLCReserve, true
}

func htlcReason(bal *node.Balances, limits Limits) string {
	return fmt.Sprintf("HTLC ceiling %d sat is below the %d sat reserve",
		bal.HTLCCeiling, limits.HTLCReserve)
}

// infeasible marks the bound infeasible. A fixed amount is kept so that
// min = max = amount still holds.
func infeasible(b AmountBound, reason string) AmountBound {
	b.Infeasible = true
	b.Reason = reason

	return b
}
