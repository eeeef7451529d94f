package rln

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/kaleidoswap/desktop-app-sub002/asset"
	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/kaleidoswap/desktop-app-sub002/units"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Confirmation targets, in blocks, of the three fee tiers.
const (
	slowBlocks   = 6
	mediumBlocks = 3
	fastBlocks   = 1
)

// A compile time check to ensure Client implements node.Node.
var _ node.Node = (*Client)(nil)

// DecodeLightningInvoice decodes a Lightning invoice through the node.
func (c *Client) DecodeLightningInvoice(ctx context.Context,
	invoice string) (*node.LightningInvoiceInfo, error) {

	var resp decodeLNInvoiceResponse
	err := c.call(ctx, "/decodelninvoice", &decodeLNInvoiceRequest{
		Invoice: invoice,
	}, &resp, true)
	if err != nil {
		return nil, err
	}

	info := &node.LightningInvoiceInfo{
		AmountMsat: fn.MapOption(func(v uint64) units.MilliSatoshi {
			return units.MilliSatoshi(v)
		})(fn.OptionFromPtr(resp.AmtMsat)),
		AssetID:     fn.OptionFromPtr(resp.AssetID),
		AssetAmount: fn.OptionFromPtr(resp.AssetAmount),
		PaymentHash: resp.PaymentHash,
		Expiry:      time.Duration(resp.ExpirySec) * time.Second,
		Timestamp:   time.Unix(resp.Timestamp, 0),
	}
	if resp.PayeePubkey != nil {
		info.Payee = *resp.PayeePubkey
	}

	return info, nil
}

// DecodeAssetInvoice decodes an RGB invoice through the node.
func (c *Client) DecodeAssetInvoice(ctx context.Context,
	invoice string) (*node.AssetInvoiceInfo, error) {

	var resp decodeRGBInvoiceResponse
	err := c.call(ctx, "/decodergbinvoice", &decodeRGBInvoiceRequest{
		Invoice: invoice,
	}, &resp, true)
	if err != nil {
		return nil, err
	}

	info := &node.AssetInvoiceInfo{
		RecipientID:        resp.RecipientID,
		RecipientType:      resp.RecipientType,
		AssetID:            fn.OptionFromPtr(resp.AssetID),
		TransportEndpoints: resp.TransportEndpoints,
	}
	if resp.Assignment.Type == assignmentFungible {
		info.Amount = fn.OptionFromPtr(resp.Assignment.Value)
	}
	if resp.ExpirationTimestamp != nil {
		info.ExpirationTimestamp = fn.Some(
			time.Unix(*resp.ExpirationTimestamp, 0),
		)
	}

	return info, nil
}

// Balances fetches the wallet and channel balances of an asset
// concurrently.
func (c *Client) Balances(ctx context.Context,
	assetID string) (*node.Balances, error) {

	bal := &node.Balances{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if assetID == asset.BTCAssetID {
			var resp btcBalanceResponse
			err := c.call(gctx, "/btcbalance", &btcBalanceRequest{
				SkipSync: c.cfg.SkipSync,
			}, &resp, true)
			if err != nil {
				return err
			}

			bal.OnChain = resp.Vanilla.Spendable
			return nil
		}

		var resp assetBalanceResponse
		err := c.call(gctx, "/assetbalance", &assetBalanceRequest{
			AssetID: assetID,
		}, &resp, true)
		if err != nil {
			return err
		}

		bal.OnChain = resp.Spendable
		bal.AssetOffchainOutbound = resp.OffchainOutbound
		return nil
	})

	var channels []channel
	g.Go(func() error {
		var resp listChannelsResponse
		err := c.call(gctx, "/listchannels", nil, &resp, true)
		if err != nil {
			return err
		}

		channels = resp.Channels
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Only usable channels count. The HTLC ceiling is the largest single
	// HTLC any of them can carry.
	for _, ch := range channels {
		if !ch.Ready || !ch.IsUsable {
			continue
		}

		out := units.MilliSatoshi(ch.OutboundBalanceMsat)
		bal.LightningOutbound += out.Sats()

		limit := units.MilliSatoshi(ch.NextOutboundHTLCLimitMsat)
		bal.HTLCCeiling = max(bal.HTLCCeiling, limit.Sats())
	}
	bal.FetchedAt = c.cfg.Clock.Now()

	return bal, nil
}

// EstimateFees queries the three fee tiers concurrently.
func (c *Client) EstimateFees(ctx context.Context) (*node.FeeEstimates,
	error) {

	est := &node.FeeEstimates{
		MinRelay: c.cfg.MinRelayFee,
	}

	g, gctx := errgroup.WithContext(ctx)
	for blocks, rate := range map[uint16]*float64{
		slowBlocks:   &est.Slow,
		mediumBlocks: &est.Medium,
		fastBlocks:   &est.Fast,
	} {
		g.Go(func() error {
			var resp estimateFeeResponse
			err := c.call(gctx, "/estimatefee", &estimateFeeRequest{
				Blocks: blocks,
			}, &resp, true)
			if err != nil {
				return err
			}

			*rate = max(resp.FeeRate, c.cfg.MinRelayFee)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return est, nil
}

// Submit commits a payment. Sends are never retried.
func (c *Client) Submit(ctx context.Context,
	req *node.SubmitRequest) (*node.SubmitResult, error) {

	if req.Amount < 0 {
		return nil, fmt.Errorf("negative amount %d", req.Amount)
	}

	switch req.Kind {
	case node.SubmitLightning:
		return c.sendPayment(ctx, req.Destination, req)

	case node.SubmitLightningAddress:
		amt := units.NewMSatFromSatoshis(btcutil.Amount(req.Amount))
		invoice, err := c.resolveLightningAddress(
			ctx, req.Destination, amt,
		)
		if err != nil {
			return nil, err
		}

		// The service picks the invoice, it is only paid for the
		// amount the user confirmed.
		err = c.checkResolvedInvoice(ctx, req.Destination, invoice, amt)
		if err != nil {
			return nil, err
		}

		fixed := *req
		fixed.AmountFixed = true

		return c.sendPayment(ctx, invoice, &fixed)

	case node.SubmitOnChain:
		var resp sendResponse
		err := c.call(ctx, "/sendbtc", &sendBTCRequest{
			Amount:   uint64(req.Amount),
			Address:  req.Destination,
			FeeRate:  feeRate(req.FeeRate),
			SkipSync: c.cfg.SkipSync,
		}, &resp, false)
		if err != nil {
			return nil, err
		}

		return &node.SubmitResult{
			AttemptID: resp.TxID,
			Status:    node.StatusSucceeded,
		}, nil

	case node.SubmitAsset:
		amount := uint64(req.Amount)
		send := &sendAssetRequest{
			AssetID: req.AssetID,
			Assignment: assignment{
				Type:  assignmentFungible,
				Value: &amount,
			},
			RecipientID:        req.Destination,
			Donation:           req.Donation,
			FeeRate:            feeRate(req.FeeRate),
			MinConfirmations:   c.cfg.MinConfirmations,
			TransportEndpoints: req.TransportEndpoints,
			SkipSync:           c.cfg.SkipSync,
		}
		if send.TransportEndpoints == nil {
			send.TransportEndpoints = []string{}
		}
		if req.WitnessAmountSat > 0 {
			send.WitnessData = &witnessData{
				AmountSat: uint64(req.WitnessAmountSat),
			}
		}

		var resp sendResponse
		err := c.call(ctx, "/sendasset", send, &resp, false)
		if err != nil {
			return nil, err
		}

		return &node.SubmitResult{
			AttemptID: resp.TxID,
			Status:    node.StatusSucceeded,
		}, nil

	default:
		return nil, fmt.Errorf("unknown submit kind %v", req.Kind)
	}
}

// sendPayment pays a Lightning invoice. An amount is only sent along for
// invoices that do not carry one.
func (c *Client) sendPayment(ctx context.Context, invoice string,
	req *node.SubmitRequest) (*node.SubmitResult, error) {

	send := &sendPaymentRequest{
		Invoice: invoice,
	}

	isAsset := req.AssetID != "" && req.AssetID != asset.BTCAssetID
	switch {
	case isAsset:
		amount := uint64(req.Amount)
		send.AssetID = &req.AssetID
		send.AssetAmount = &amount

	case !req.AmountFixed:
		sats := btcutil.Amount(req.Amount)
		msat := uint64(units.NewMSatFromSatoshis(sats))
		send.AmtMsat = &msat
	}

	var resp sendPaymentResponse
	err := c.call(ctx, "/sendpayment", send, &resp, false)
	if err != nil {
		return nil, err
	}

	status, err := parseStatus(resp.Status)
	if err != nil {
		return nil, err
	}

	return &node.SubmitResult{
		AttemptID: resp.PaymentHash,
		Status:    status,
	}, nil
}

// PollStatus looks up a Lightning payment by its hash.
func (c *Client) PollStatus(ctx context.Context,
	paymentHash string) (node.PaymentStatus, error) {

	var resp getPaymentResponse
	err := c.call(ctx, "/getpayment", &getPaymentRequest{
		PaymentHash: paymentHash,
	}, &resp, true)
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %v", node.ErrNotFound, err)
		}

		return 0, err
	}

	return parseStatus(resp.Payment.Status)
}

// ListPayments returns every Lightning payment known to the node.
func (c *Client) ListPayments(ctx context.Context) ([]Payment, error) {
	var resp listPaymentsResponse
	if err := c.call(ctx, "/listpayments", nil, &resp, true); err != nil {
		return nil, err
	}

	return resp.Payments, nil
}

// ListAssets returns the fungible assets of the wallet.
func (c *Client) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	var resp listAssetsResponse
	err := c.call(ctx, "/listassets", &listAssetsRequest{
		FilterAssetSchemas: []string{"Nia", "Cfa"},
	}, &resp, true)
	if err != nil {
		return nil, err
	}

	assets := make([]asset.Asset, 0, len(resp.NIA)+len(resp.CFA))
	for _, records := range [][]assetRecord{resp.NIA, resp.CFA} {
		for _, r := range records {
			ticker := r.Ticker
			if ticker == "" {
				ticker = r.Name
			}

			assets = append(assets, asset.Asset{
				ID:        r.AssetID,
				Ticker:    ticker,
				Name:      r.Name,
				Precision: r.Precision,
				Kind:      asset.KindFungible,
			})
		}
	}

	return assets, nil
}

// parseStatus maps the node's payment status. Claimable payments are still
// in flight.
func parseStatus(s string) (node.PaymentStatus, error) {
	if s == "Claimable" {
		return node.StatusPending, nil
	}

	return node.ParsePaymentStatus(s)
}

func isNotFound(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.StatusCode == http.StatusNotFound {
		return true
	}

	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "unknown payment") ||
		strings.Contains(msg, "not found")
}

// feeRate rounds a sat/vB rate up to the integer rate the node takes.
func feeRate(r float64) uint64 {
	return uint64(decimal.NewFromFloat(r).Ceil().IntPart())
}
