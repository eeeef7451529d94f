package feequote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/kaleidoswap/desktop-app-sub002/paymetrics"
	"github.com/kaleidoswap/desktop-app-sub002/payerr"
	"github.com/kaleidoswap/desktop-app-sub002/target"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultOnChainVBytes is the size of a one input, two output
	// P2WPKH transaction.
	DefaultOnChainVBytes = 141

	// DefaultAssetOnChainVBytes is the size of an RGB transfer
	// transaction with its OP_RETURN commitment.
	DefaultAssetOnChainVBytes = 250

	// DefaultAssetCarrierSats is the bitcoin amount carried by the HTLC
	// of an asset Lightning payment.
	DefaultAssetCarrierSats = 3000
)

// ErrNoRails is returned when a quote is requested for no rail.
var ErrNoRails = errors.New("no rail can settle the target")

// LightningFeePolicy bounds the routing fee of a Lightning payment.
type LightningFeePolicy struct {
	// BaseSats is the flat part of the fee.
	BaseSats int64

	// PPM is the proportional part in parts per million.
	PPM int64

	// MaxSats caps the fee. Zero disables the cap.
	MaxSats int64
}

// DefaultLightningFeePolicy returns a 10 sat + 0.5% policy capped at the
// HTLC reserve.
func DefaultLightningFeePolicy() LightningFeePolicy {
	return LightningFeePolicy{
		BaseSats: 10,
		PPM:      5_000,
		MaxSats:  3_000,
	}
}

// Fee returns the worst case routing fee for amount satoshis.
func (p LightningFeePolicy) Fee(amount int64) int64 {
	fee := p.BaseSats + amount*p.PPM/1_000_000
	if p.MaxSats > 0 && fee > p.MaxSats {
		return p.MaxSats
	}

	return fee
}

// FeeEstimator returns on-chain fee rates.
type FeeEstimator interface {
	EstimateFees(ctx context.Context) (*node.FeeEstimates, error)
}

// Config holds the collaborators and policy of an Aggregator.
type Config struct {
	// Estimator provides on-chain fee rates.
	Estimator FeeEstimator

	// L2 is the Layer-2 wallet, nil when none is connected.
	L2 node.L2Wallet

	// PreferSpark picks the internal Layer-2 fee for Lightning targets
	// when the SDK offers one.
	PreferSpark bool

	// Lightning is the routing fee policy.
	Lightning LightningFeePolicy

	// OnChainVBytes and AssetOnChainVBytes size absolute on-chain fees.
	OnChainVBytes      int64
	AssetOnChainVBytes int64

	// AssetCarrierSats is the HTLC amount of asset Lightning payments.
	AssetCarrierSats int64

	// Metrics records quote latency.
	Metrics paymetrics.Recorder

	// Clock times quotes.
	Clock clock.Clock
}

// Request describes what to quote.
type Request struct {
	// Target is the classified payment target.
	Target target.PaymentTarget

	// Asset is the id of the asset being paid.
	Asset string

	// Amount is the amount in base units of Asset.
	Amount int64

	// Rails are the rails to quote. More than one produces a
	// CompositeFee.
	Rails []target.Rail

	// Speed selects the on-chain tier used for the recommendation.
	Speed node.Speed

	// CustomRate is a user supplied on-chain fee rate in sat/vB.
	CustomRate fn.Option[string]
}

// Aggregator produces fee quotes across rails.
type Aggregator struct {
	cfg Config

	nextID atomic.Uint64
}

// New creates an aggregator, filling zero policy values with defaults.
func New(cfg Config) *Aggregator {
	if cfg.Lightning == (LightningFeePolicy{}) {
		cfg.Lightning = DefaultLightningFeePolicy()
	}
	if cfg.OnChainVBytes == 0 {
		cfg.OnChainVBytes = DefaultOnChainVBytes
	}
	if cfg.AssetOnChainVBytes == 0 {
		cfg.AssetOnChainVBytes = DefaultAssetOnChainVBytes
	}
	if cfg.AssetCarrierSats == 0 {
		cfg.AssetCarrierSats = DefaultAssetCarrierSats
	}
	if cfg.Metrics == nil {
		cfg.Metrics = paymetrics.NewNoop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Aggregator{cfg: cfg}
}

func (a *Aggregator) header(req *Request, rail target.Rail) Header {
	return Header{
		QuoteID: QuoteID(a.nextID.Add(1)),
		Key: Key{
			Target: req.Target.Input(),
			Asset:  req.Asset,
			Amount: req.Amount,
			Rail:   rail,
		},
	}
}

// ParseFeeRate validates a custom fee rate in sat/vB. The rate must be a
// positive decimal no lower than minRelay. It is never clamped.
func ParseFeeRate(text string, minRelay decimal.Decimal) (decimal.Decimal,
	error) {

	rate, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, payerr.New(payerr.InvalidFeeRate,
			"fee rate %q is not a number", text)
	}

	if !rate.IsPositive() {
		return decimal.Zero, payerr.New(payerr.InvalidFeeRate,
			"fee rate must be positive")
	}

	if rate.LessThan(minRelay) {
		return decimal.Zero, payerr.New(payerr.InvalidFeeRate,
			"fee rate %v sat/vB is below the minimum relay fee "+
				"%v sat/vB", rate, minRelay)
	}

	return rate, nil
}

// Quote returns a fee quote for the request.
func (a *Aggregator) Quote(ctx context.Context, req *Request) (FeeQuote,
	error) {

	if len(req.Rails) == 0 {
		return nil, ErrNoRails
	}

	estimates := sync.OnceValues(func() (*node.FeeEstimates, error) {
		est, err := a.cfg.Estimator.EstimateFees(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to estimate fees: %w",
				err)
		}

		return est, nil
	})

	custom := fn.None[decimal.Decimal]()
	if req.CustomRate.IsSome() {
		est, err := estimates()
		if err != nil {
			return nil, err
		}

		rate, err := ParseFeeRate(
			req.CustomRate.UnwrapOr(""),
			decimal.NewFromFloat(est.MinRelay),
		)
		if err != nil {
			return nil, err
		}
		custom = fn.Some(rate)
	}

	q := &quoter{
		Aggregator: a,
		req:        req,
		estimates:  estimates,
		custom:     custom,
	}

	if len(req.Rails) == 1 {
		return q.quoteRail(ctx, req.Rails[0])
	}

	quotes := make([]FeeQuote, len(req.Rails))
	errs := make([]error, len(req.Rails))

	var g errgroup.Group
	for i, rail := range req.Rails {
		g.Go(func() error {
			quotes[i], errs[i] = q.quoteRail(ctx, rail)
			return nil
		})
	}
	_ = g.Wait()

	composite := &CompositeFee{
		Header: a.header(req, req.Rails[0]),
		Quotes: make(map[target.Rail]FeeQuote, len(req.Rails)),
		Speed:  req.Speed,
	}
	for i, rail := range req.Rails {
		if errs[i] != nil {
			log.Warnf("Unable to quote rail %v for %v: %v", rail,
				req.Target.Input(), errs[i])
			continue
		}

		composite.Quotes[rail] = quotes[i]
	}

	if len(composite.Quotes) == 0 {
		return nil, errors.Join(errs...)
	}

	composite.Recommended = recommend(composite.Quotes, req.Speed)

	return composite, nil
}

// quoter holds the state shared by the rail quotes of one request.
type quoter struct {
	*Aggregator

	req       *Request
	estimates func() (*node.FeeEstimates, error)
	custom    fn.Option[decimal.Decimal]
}

func (q *quoter) quoteRail(ctx context.Context, rail target.Rail) (FeeQuote,
	error) {

	start := q.cfg.Clock.Now()
	defer func() {
		q.cfg.Metrics.ObserveQuote(rail, q.cfg.Clock.Now().Sub(start))
	}()

	switch rail {
	case target.RailLightning:
		return &LightningFee{
			Header: q.header(q.req, rail),
			Sats:   q.cfg.Lightning.Fee(q.req.Amount),
		}, nil

	case target.RailAssetLightning:
		return &AssetRailFee{
			Header: q.header(q.req, rail),
			Sats:   q.cfg.Lightning.Fee(q.cfg.AssetCarrierSats),
		}, nil

	case target.RailOnChain:
		est, err := q.estimates()
		if err != nil {
			return nil, err
		}

		return &OnchainFee{
			Header: q.header(q.req, rail),
			Slow:   decimal.NewFromFloat(est.Slow),
			Medium: decimal.NewFromFloat(est.Medium),
			Fast:   decimal.NewFromFloat(est.Fast),
			Custom: q.custom,
			VBytes: q.cfg.OnChainVBytes,
		}, nil

	case target.RailAssetOnChain:
		est, err := q.estimates()
		if err != nil {
			return nil, err
		}

		tiers := &OnchainFee{
			Slow:   decimal.NewFromFloat(est.Slow),
			Medium: decimal.NewFromFloat(est.Medium),
			Fast:   decimal.NewFromFloat(est.Fast),
			Custom: q.custom,
			VBytes: q.cfg.AssetOnChainVBytes,
		}

		return &AssetRailFee{
			Header: q.header(q.req, rail),
			Sats:   tiers.FeeSats(q.req.Speed),
			Rate:   fn.Some(tiers.Rate(q.req.Speed)),
		}, nil

	case target.RailL2:
		return q.quoteL2(ctx)

	default:
		return nil, fmt.Errorf("unsupported rail %v", rail)
	}
}

func (q *quoter) quoteL2(ctx context.Context) (FeeQuote, error) {
	if q.cfg.L2 == nil {
		return nil, errors.New("no layer-2 wallet connected")
	}

	amount := fn.Some(q.req.Amount)
	if inv, ok := q.req.Target.(*target.LightningInvoice); ok &&
		inv.AmountMsat.IsSome() {

		amount = fn.None[int64]()
	}

	prepared, err := q.cfg.L2.PrepareSend(ctx, q.req.Target.Input(), amount)
	if err != nil {
		return nil, payerr.External(
			payerr.PrepareFailed, "layer-2 prepare failed", err,
		)
	}

	quote := &L2Fee{
		Header:   q.header(q.req, target.RailL2),
		Prepared: prepared,
	}

	fees := prepared.Fees
	notOffered := fmt.Errorf("layer-2 wallet offers no %v route for "+
		"this target", q.req.Target.Kind())

	switch q.req.Target.(type) {
	case *target.L2Address:
		quote.Sats, err = fees.Spark.UnwrapOrErr(notOffered)

	case *target.LightningInvoice, *target.LightningAddress:
		if q.cfg.PreferSpark && fees.Spark.IsSome() {
			quote.Sats = fees.Spark.UnwrapOr(0)
			break
		}
		quote.Sats, err = fees.Lightning.UnwrapOrErr(notOffered)

	case *target.OnChainAddress:
		if fees.OnChain.IsNone() {
			err = notOffered
		}
		quote.OnChain = fees.OnChain

	default:
		err = notOffered
	}
	if err != nil {
		return nil, err
	}

	return quote, nil
}
