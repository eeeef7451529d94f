package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/kaleidoswap/desktop-app-sub002/asset"
	"github.com/kaleidoswap/desktop-app-sub002/units"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrNotFound is returned by PollStatus when the node has no record of the
// attempt.
var ErrNotFound = errors.New("payment not found")

// LightningInvoiceInfo is the node's decoding of a Lightning invoice. The
// engine copies these fields verbatim and never re-derives them.
type LightningInvoiceInfo struct {
	// Payee is the hex encoded public key of the recipient.
	Payee string

	// AmountMsat is the amount fixed by the invoice, if any.
	AmountMsat fn.Option[units.MilliSatoshi]

	// AssetID is the asset the invoice requests, if any.
	AssetID fn.Option[string]

	// AssetAmount is the asset amount the invoice requests, if any.
	AssetAmount fn.Option[uint64]

	// PaymentHash identifies the payment.
	PaymentHash string

	// Expiry is how long after Timestamp the invoice stays payable.
	Expiry time.Duration

	// Timestamp is the invoice creation time.
	Timestamp time.Time
}

// ExpiresAt returns the absolute expiry of the invoice.
func (l *LightningInvoiceInfo) ExpiresAt() time.Time {
	return l.Timestamp.Add(l.Expiry)
}

// AssetInvoiceInfo is the node's decoding of an RGB asset invoice.
type AssetInvoiceInfo struct {
	// RecipientID is the blinded UTXO or witness recipient.
	RecipientID string

	// RecipientType is "Blind" or "Witness".
	RecipientType string

	// AssetID is the requested asset, if fixed.
	AssetID fn.Option[string]

	// Amount is the requested amount in raw asset units, if fixed.
	Amount fn.Option[uint64]

	// ExpirationTimestamp is when the invoice stops being payable.
	ExpirationTimestamp fn.Option[time.Time]

	// TransportEndpoints are the consignment transport hints.
	TransportEndpoints []string
}

// Balances is a snapshot of what the wallet can spend for a single asset.
// All values are in the asset's base units, except HTLCCeiling which is the
// largest single bitcoin HTLC in satoshis.
type Balances struct {
	// OnChain is the spendable on-chain balance.
	OnChain int64

	// LightningOutbound is the usable bitcoin outbound capacity in
	// satoshis.
	LightningOutbound int64

	// AssetOffchainOutbound is the asset amount that can leave through
	// channels.
	AssetOffchainOutbound int64

	// HTLCCeiling is the next outbound HTLC limit in satoshis.
	HTLCCeiling int64

	// L2 is the Layer-2 wallet balance in satoshis. The node does not
	// know it; callers fill it from the L2Wallet.
	L2 int64

	// FetchedAt is when the snapshot was taken.
	FetchedAt time.Time
}

// FeeEstimates are on-chain fee rates in sat/vB.
type FeeEstimates struct {
	Slow     float64
	Medium   float64
	Fast     float64
	MinRelay float64
}

// PaymentStatus is the node's view of a submitted payment.
type PaymentStatus uint8

const (
	// StatusPending means the payment is still in flight.
	StatusPending PaymentStatus = iota

	// StatusSucceeded means the payment settled.
	StatusSucceeded

	// StatusFailed means the payment was rejected.
	StatusFailed

	// StatusExpired means the payment or invoice expired.
	StatusExpired
)

// String returns the status name used by the node.
func (s PaymentStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusSucceeded:
		return "Succeeded"
	case StatusFailed:
		return "Failed"
	case StatusExpired:
		return "Expired"
	default:
		return fmt.Sprintf("PaymentStatus(%d)", uint8(s))
	}
}

// Terminal returns true for every status but Pending.
func (s PaymentStatus) Terminal() bool {
	return s != StatusPending
}

// ParsePaymentStatus parses the node's status string.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch s {
	case "Pending":
		return StatusPending, nil
	case "Succeeded":
		return StatusSucceeded, nil
	case "Failed":
		return StatusFailed, nil
	case "Expired":
		return StatusExpired, nil
	default:
		return 0, fmt.Errorf("unknown payment status %q", s)
	}
}

// SubmitKind selects the node endpoint a submission goes to.
type SubmitKind uint8

const (
	// SubmitLightning pays a Lightning invoice.
	SubmitLightning SubmitKind = iota

	// SubmitLightningAddress pays a Lightning address.
	SubmitLightningAddress

	// SubmitOnChain sends bitcoin to an address.
	SubmitOnChain

	// SubmitAsset sends an RGB asset to an asset invoice recipient.
	SubmitAsset
)

// String returns a short name for the submit kind.
func (k SubmitKind) String() string {
	switch k {
	case SubmitLightning:
		return "lightning"
	case SubmitLightningAddress:
		return "lightning_address"
	case SubmitOnChain:
		return "onchain"
	case SubmitAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// SubmitRequest is everything the node needs to commit a payment.
type SubmitRequest struct {
	// Kind selects the endpoint.
	Kind SubmitKind

	// Destination is the invoice, address, or recipient id.
	Destination string

	// AssetID is the asset being sent; BTC for bitcoin.
	AssetID string

	// Amount is the amount in base units of AssetID. For Lightning
	// invoices with a fixed amount it is informational.
	Amount int64

	// AmountFixed is set when the invoice carries its own amount, so the
	// node must not be sent one.
	AmountFixed bool

	// FeeRate is the on-chain fee rate in sat/vB. Zero for Lightning.
	FeeRate float64

	// TransportEndpoints are forwarded for asset transfers.
	TransportEndpoints []string

	// WitnessAmountSat is the bitcoin amount attached to a witness
	// recipient.
	WitnessAmountSat btcutil.Amount

	// Donation marks an asset transfer as a gift.
	Donation bool
}

// SubmitResult is the node's answer to a submission.
type SubmitResult struct {
	// AttemptID is the id used for PollStatus: the payment hash for
	// Lightning, the txid on-chain.
	AttemptID string

	// Status is the initial status of the payment.
	Status PaymentStatus
}

// Node is the subset of the wallet node consumed by the engine.
type Node interface {
	// DecodeLightningInvoice decodes a Lightning invoice.
	DecodeLightningInvoice(ctx context.Context,
		invoice string) (*LightningInvoiceInfo, error)

	// DecodeAssetInvoice decodes an RGB asset invoice.
	DecodeAssetInvoice(ctx context.Context,
		invoice string) (*AssetInvoiceInfo, error)

	// Balances returns the spendable balances of an asset.
	Balances(ctx context.Context, assetID string) (*Balances, error)

	// EstimateFees returns on-chain fee rates for the three speed tiers
	// and the minimum relay fee.
	EstimateFees(ctx context.Context) (*FeeEstimates, error)

	// Submit commits a payment.
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)

	// PollStatus returns the current status of a submitted payment.
	PollStatus(ctx context.Context, attemptID string) (PaymentStatus,
		error)

	asset.Registry
}
