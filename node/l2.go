package node

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// L2Rail is the settlement path the Layer-2 SDK picked for a prepared send.
type L2Rail uint8

const (
	// L2RailSpark is an internal Layer-2 transfer.
	L2RailSpark L2Rail = iota

	// L2RailLightning is a Lightning payment made by the Layer-2 wallet.
	L2RailLightning

	// L2RailOnChain is a cooperative exit to an on-chain address.
	L2RailOnChain
)

// String returns a short name for the rail.
func (r L2Rail) String() string {
	switch r {
	case L2RailSpark:
		return "spark"
	case L2RailLightning:
		return "lightning"
	case L2RailOnChain:
		return "onchain"
	default:
		return "unknown"
	}
}

// OnChainFeeTiers is the SDK's fee for each exit speed, in satoshis.
type OnChainFeeTiers struct {
	Slow   int64
	Medium int64
	Fast   int64
}

// L2FeeBreakdown holds the fee of each rail the SDK can use for the prepared
// payment. Absent rails are None.
type L2FeeBreakdown struct {
	Spark     fn.Option[int64]
	Lightning fn.Option[int64]
	OnChain   fn.Option[OnChainFeeTiers]
}

// PreparedSend is the SDK's authoritative quote for a send.
type PreparedSend struct {
	// Destination is the payment request the quote is for.
	Destination string

	// Amount is the amount in satoshis that will be sent.
	Amount int64

	// Fees is the fee breakdown by rail.
	Fees L2FeeBreakdown

	// Rail is the rail the SDK will use unless told otherwise.
	Rail L2Rail

	// Handle is the SDK's opaque prepared response.
	Handle any
}

// Speed is an on-chain confirmation speed.
type Speed uint8

const (
	// SpeedSlow targets roughly six blocks.
	SpeedSlow Speed = iota

	// SpeedMedium targets roughly three blocks.
	SpeedMedium

	// SpeedFast targets the next block.
	SpeedFast
)

// String returns the speed name.
func (s Speed) String() string {
	switch s {
	case SpeedSlow:
		return "slow"
	case SpeedMedium:
		return "medium"
	case SpeedFast:
		return "fast"
	default:
		return "unknown"
	}
}

// SendOptions tunes a Layer-2 send.
type SendOptions struct {
	// PreferSpark settles a Lightning invoice internally when the
	// recipient is also on the Layer-2 network.
	PreferSpark bool

	// Speed is used for on-chain exits.
	Speed Speed
}

// SendOutcome is the result of a Layer-2 send.
type SendOutcome struct {
	// PaymentID identifies the payment in the SDK.
	PaymentID string

	// Status is the status reported by the SDK.
	Status PaymentStatus

	// FeeSats is the fee actually paid.
	FeeSats int64
}

// L2Wallet is the subset of the Layer-2 SDK consumed by the engine.
type L2Wallet interface {
	// Balance returns the Layer-2 balance in satoshis.
	Balance(ctx context.Context) (int64, error)

	// PrepareSend asks the SDK for an authoritative quote. Amount is
	// None when the destination fixes it.
	PrepareSend(ctx context.Context, destination string,
		amount fn.Option[int64]) (*PreparedSend, error)

	// Send commits a prepared payment.
	Send(ctx context.Context, prepared *PreparedSend,
		opts SendOptions) (*SendOutcome, error)
}
