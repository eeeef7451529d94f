package rln

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kaleidoswap/desktop-app-sub002/asset"
	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/kaleidoswap/desktop-app-sub002/units"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

const testToken = "secret"

var testNow = time.Unix(1_700_000_000, 0)

// reply is a canned response of the fake node.
type reply struct {
	status int
	body   any
}

func ok(body any) reply {
	return reply{status: http.StatusOK, body: body}
}

func nodeError(status int, msg string) reply {
	return reply{status: status, body: map[string]any{
		"error": msg,
		"code":  status,
		"name":  "Generic",
	}}
}

type handlerFunc func(body map[string]any) reply

// fakeNode serves canned replies and records every request body by path.
type fakeNode struct {
	t *testing.T

	mu       sync.Mutex
	handlers map[string]handlerFunc
	requests map[string][]map[string]any
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	f := &fakeNode{
		t:        t,
		handlers: make(map[string]handlerFunc),
		requests: make(map[string][]map[string]any),
	}

	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	return f, srv
}

func (f *fakeNode) on(path string, h handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[path] = h
}

func (f *fakeNode) calls(path string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requests[path]
}

func (f *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	raw, _ := io.ReadAll(r.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}

	f.mu.Lock()
	h, found := f.handlers[r.URL.Path]
	f.requests[r.URL.Path] = append(f.requests[r.URL.Path], body)
	f.mu.Unlock()

	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// The LNURL endpoints are not behind the node token.
	if r.URL.Path != "/.well-known/lnurlp/alice" &&
		r.URL.Path != "/lnurl/callback" &&
		r.Header.Get("Authorization") != "Bearer "+testToken {

		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	rep := h(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_ = json.NewEncoder(w).Encode(rep.body)
}

func newTestClient(t *testing.T) (*fakeNode, *Client) {
	f, srv := newFakeNode(t)

	c := NewClient(Config{
		URL:               srv.URL + "/",
		Token:             testToken,
		RequestsPerSecond: 1000,
		Burst:             100,
		MinConfirmations:  1,
		LightningAddressURL: func(user, _ string) string {
			return srv.URL + "/.well-known/lnurlp/" + user
		},
		Clock: clock.NewTestClock(testNow),
	})

	return f, c
}

func TestDecodeLightningInvoice(t *testing.T) {
	t.Parallel()

	f, c := newTestClient(t)
	f.on("/decodelninvoice", func(body map[string]any) reply {
		return ok(map[string]any{
			"amt_msat":     50_000,
			"expiry_sec":   3600,
			"timestamp":    testNow.Unix(),
			"asset_id":     nil,
			"asset_amount": nil,
			"payment_hash": "hash",
			"payee_pubkey": "02abc",
			"network":      "Regtest",
		})
	})

	info, err := c.DecodeLightningInvoice(context.Background(), "lnbcrt1")
	require.NoError(t, err)
	require.Equal(t, units.MilliSatoshi(50_000),
		info.AmountMsat.UnwrapOrFail(t))
	require.True(t, info.AssetID.IsNone())
	require.True(t, info.AssetAmount.IsNone())
	require.Equal(t, "hash", info.PaymentHash)
	require.Equal(t, "02abc", info.Payee)
	require.Equal(t, testNow.Add(time.Hour), info.ExpiresAt())

	require.Equal(t, "lnbcrt1",
		f.calls("/decodelninvoice")[0]["invoice"])
}

func TestDecodeAssetInvoice(t *testing.T) {
	t.Parallel()

	f, c := newTestClient(t)
	f.on("/decodergbinvoice", func(map[string]any) reply {
		return ok(map[string]any{
			"recipient_id":   "utxob:abc",
			"recipient_type": "Blind",
			"asset_id":       "rgb:asset",
			"assignment": map[string]any{
				"type":  "Fungible",
				"value": 100,
			},
			"network":              "Regtest",
			"expiration_timestamp": testNow.Unix(),
			"transport_endpoints":  []string{"rpc://proxy"},
		})
	})

	info, err := c.DecodeAssetInvoice(context.Background(), "rgb:inv")
	require.NoError(t, err)
	require.Equal(t, "utxob:abc", info.RecipientID)
	require.Equal(t, "Blind", info.RecipientType)
	require.Equal(t, "rgb:asset", info.AssetID.UnwrapOrFail(t))
	require.Equal(t, uint64(100), info.Amount.UnwrapOrFail(t))
	require.True(t, testNow.Equal(
		info.ExpirationTimestamp.UnwrapOrFail(t),
	))
	require.Equal(t, []string{"rpc://proxy"}, info.TransportEndpoints)

	// An open assignment leaves the amount to the payer.
	f.on("/decodergbinvoice", func(map[string]any) reply {
		return ok(map[string]any{
			"recipient_id":   "wvout:abc",
			"recipient_type": "Witness",
			"assignment":     map[string]any{"type": "Any"},
		})
	})

	info, err = c.DecodeAssetInvoice(context.Background(), "rgb:inv2")
	require.NoError(t, err)
	require.True(t, info.Amount.IsNone())
	require.True(t, info.AssetID.IsNone())
	require.True(t, info.ExpirationTimestamp.IsNone())
}

func testChannels() reply {
	return ok(map[string]any{"channels": []map[string]any{{
		"ready":                         true,
		"is_usable":                     true,
		"outbound_balance_msat":         400_000_000,
		"next_outbound_htlc_limit_msat": 150_000_999,
	}, {
		"ready":                         true,
		"is_usable":                     true,
		"outbound_balance_msat":         100_000_000,
		"next_outbound_htlc_limit_msat": 90_000_000,
	}, {
		"ready":                         true,
		"is_usable":                     false,
		"outbound_balance_msat":         900_000_000,
		"next_outbound_htlc_limit_msat": 900_000_000,
	}}})
}

func TestBalances(t *testing.T) {
	t.Parallel()

	f, c := newTestClient(t)
	f.on("/listchannels", func(map[string]any) reply {
		return testChannels()
	})
	f.on("/btcbalance", func(map[string]any) reply {
		return ok(map[string]any{
			"vanilla": map[string]any{
				"settled":   70_000,
				"future":    80_000,
				"spendable": 60_000,
			},
			"colored": map[string]any{"spendable": 3_000},
		})
	})
	f.on("/assetbalance", func(body map[string]any) reply {
		if body["asset_id"] != "rgb:asset" {
			return nodeError(http.StatusBadRequest, "unknown asset")
		}

		return ok(map[string]any{
			"settled":           500,
			"spendable":         400,
			"offchain_outbound": 250,
		})
	})

	ctx := context.Background()

	bal, err := c.Balances(ctx, asset.BTCAssetID)
	require.NoError(t, err)
	require.Equal(t, &node.Balances{
		OnChain:           60_000,
		LightningOutbound: 500_000,
		HTLCCeiling:       150_000,
		FetchedAt:         testNow,
	}, bal)

	bal, err = c.Balances(ctx, "rgb:asset")
	require.NoError(t, err)
	require.Equal(t, int64(400), bal.OnChain)
	require.Equal(t, int64(250), bal.AssetOffchainOutbound)
	require.Equal(t, int64(150_000), bal.HTLCCeiling)

	// A failing call fails the snapshot.
	f.on("/listchannels", func(map[string]any) reply {
		return nodeError(http.StatusForbidden, "Node is locked")
	})
	_, err = c.Balances(ctx, asset.BTCAssetID)
	require.EqualError(t, err, "Node is locked")
}

func TestEstimateFees(t *testing.T) {
	t.Parallel()

	f, c := newTestClient(t)
	f.on("/estimatefee", func(body map[string]any) reply {
		rates := map[float64]float64{6: 0.5, 3: 4.2, 1: 12}
		blocks, _ := body["blocks"].(float64)

		return ok(map[string]any{"fee_rate": rates[blocks]})
	})

	est, err := c.EstimateFees(context.Background())
	require.NoError(t, err)
	require.Equal(t, &node.FeeEstimates{
		Slow:     DefaultMinRelayFee,
		Medium:   4.2,
		Fast:     12,
		MinRelay: DefaultMinRelayFee,
	}, est)
	require.Len(t, f.calls("/estimatefee"), 3)
}

func TestSubmitLightning(t *testing.T) {
	t.Parallel()

	f, c := newTestClient(t)
	f.on("/sendpayment", func(map[string]any) reply {
		return ok(map[string]any{
			"payment_id":   "id",
			"payment_hash": "hash",
			"status":       "Pending",
		})
	})

	ctx := context.Background()

	// Amountless invoice: the amount goes along in msat.
	res, err := c.Submit(ctx, &node.SubmitRequest{
		Kind:        node.SubmitLightning,
		Destination: "lnbcrt1",
		AssetID:     asset.BTCAssetID,
		Amount:      1_500,
	})
	require.NoError(t, err)
	require.Equal(t, &node.SubmitResult{
		AttemptID: "hash",
		Status:    node.StatusPending,
	}, res)

	// Fixed invoice: nothing but the invoice.
	_, err = c.Submit(ctx, &node.SubmitRequest{
		Kind:        node.SubmitLightning,
		Destination: "lnbcrt2",
		AssetID:     asset.BTCAssetID,
		Amount:      50,
		AmountFixed: true,
	})
	require.NoError(t, err)

	// Asset invoice: the asset amount goes along.
	_, err = c.Submit(ctx, &node.SubmitRequest{
		Kind:        node.SubmitLightning,
		Destination: "lnbcrt3",
		AssetID:     "rgb:asset",
		Amount:      42,
		AmountFixed: true,
	})
	require.NoError(t, err)

	calls := f.calls("/sendpayment")
	require.Len(t, calls, 3)
	require.Equal(t, map[string]any{
		"invoice":  "lnbcrt1",
		"amt_msat": float64(1_500_000),
	}, calls[0])
	require.Equal(t, map[string]any{"invoice": "lnbcrt2"}, calls[1])
	require.Equal(t, map[string]any{
		"invoice":      "lnbcrt3",
		"asset_id":     "rgb:asset",
		"asset_amount": float64(42),
	}, calls[2])
}

func TestSubmitOnChainAndAsset(t *testing.T) {
	t.Parallel()

	f, c := newTestClient(t)
	f.on("/sendbtc", func(map[string]any) reply {
		return ok(map[string]any{"txid": "tx1"})
	})
	f.on("/sendasset", func(map[string]any) reply {
		return ok(map[string]any{"txid": "tx2"})
	})

	ctx := context.Background()

	res, err := c.Submit(ctx, &node.SubmitRequest{
		Kind:        node.SubmitOnChain,
		Destination: "bcrt1qaddr",
		AssetID:     asset.BTCAssetID,
		Amount:      10_000,
		FeeRate:     2.3,
	})
	require.NoError(t, err)
	require.Equal(t, "tx1", res.AttemptID)
	require.Equal(t, node.StatusSucceeded, res.Status)
	require.Equal(t, map[string]any{
		"amount":    float64(10_000),
		"address":   "bcrt1qaddr",
		"fee_rate":  float64(3),
		"skip_sync": false,
	}, f.calls("/sendbtc")[0])

	res, err = c.Submit(ctx, &node.SubmitRequest{
		Kind:             node.SubmitAsset,
		Destination:      "wvout:abc",
		AssetID:          "rgb:asset",
		Amount:           7,
		FeeRate:          5,
		WitnessAmountSat: 1_000,
	})
	require.NoError(t, err)
	require.Equal(t, "tx2", res.AttemptID)

	send := f.calls("/sendasset")[0]
	require.Equal(t, "rgb:asset", send["asset_id"])
	require.Equal(t, "wvout:abc", send["recipient_id"])
	require.Equal(t, map[string]any{
		"type":  "Fungible",
		"value": float64(7),
	}, send["assignment"])
	require.Equal(t, []any{}, send["transport_endpoints"])
	require.Equal(t, float64(1), send["min_confirmations"])
	require.Equal(t, map[string]any{
		"amount_sat": float64(1_000),
		"blinding":   nil,
	}, send["witness_data"])
}

// TestNodeErrorPreserved checks that the node's message reaches the caller
// untouched and that sends are not retried.
func TestNodeErrorPreserved(t *testing.T) {
	t.Parallel()

	f, c := newTestClient(t)
	f.on("/sendpayment", func(map[string]any) reply {
		return nodeError(http.StatusBadRequest,
			"Failed to find route to destination")
	})

	_, err := c.Submit(context.Background(), &node.SubmitRequest{
		Kind:        node.SubmitLightning,
		Destination: "lnbcrt1",
		AmountFixed: true,
	})
	require.EqualError(t, err, "Failed to find route to destination")
	require.True(t, IsNodeError(err))
	require.Len(t, f.calls("/sendpayment"), 1)

	var nodeErr *Error
	require.ErrorAs(t, err, &nodeErr)
	require.Equal(t, http.StatusBadRequest, nodeErr.StatusCode)
	require.Equal(t, "Generic", nodeErr.Name)

	// Bodies that are not the error object are kept as they are.
	f.on("/listpayments", func(map[string]any) reply {
		return reply{status: http.StatusBadGateway, body: "upstream"}
	})
	_, err = c.ListPayments(context.Background())
	require.EqualError(t, err, `"upstream"`)
}

func TestPollStatus(t *testing.T) {
	t.Parallel()

	f, c := newTestClient(t)

	statuses := map[string]string{
		"a": "Pending",
		"b": "Claimable",
		"c": "Succeeded",
		"d": "Failed",
	}
	f.on("/getpayment", func(body map[string]any) reply {
		hash := body["payment_hash"].(string)
		status, found := statuses[hash]
		if !found {
			return nodeError(http.StatusBadRequest,
				"Unknown payment hash")
		}

		return ok(map[string]any{"payment": map[string]any{
			"payment_hash": hash,
			"status":       status,
		}})
	})

	ctx := context.Background()
	for hash, want := range map[string]node.PaymentStatus{
		"a": node.StatusPending,
		"b": node.StatusPending,
		"c": node.StatusSucceeded,
		"d": node.StatusFailed,
	} {
		status, err := c.PollStatus(ctx, hash)
		require.NoError(t, err)
		require.Equal(t, want, status, hash)
	}

	_, err := c.PollStatus(ctx, "unknown")
	require.ErrorIs(t, err, node.ErrNotFound)
}

func TestListAssets(t *testing.T) {
	t.Parallel()

	f, c := newTestClient(t)
	f.on("/listassets", func(body map[string]any) reply {
		schemas, _ := body["filter_asset_schemas"].([]any)
		if len(schemas) != 2 {
			return nodeError(http.StatusBadRequest, "bad filter")
		}

		return ok(map[string]any{
			"nia": []map[string]any{{
				"asset_id":  "rgb:usdt",
				"ticker":    "USDT",
				"name":      "Tether",
				"precision": 6,
			}},
			"cfa": []map[string]any{{
				"asset_id":  "rgb:art",
				"name":      "ART",
				"precision": 0,
			}},
		})
	})

	cache := asset.NewCache(c)
	usdt, err := cache.ByTicker(context.Background(), "usdt")
	require.NoError(t, err)
	require.Equal(t, asset.Asset{
		ID:        "rgb:usdt",
		Ticker:    "USDT",
		Name:      "Tether",
		Precision: 6,
		Kind:      asset.KindFungible,
	}, usdt)

	art, err := cache.Get(context.Background(), "rgb:art")
	require.NoError(t, err)
	require.Equal(t, "ART", art.Ticker)
	require.Len(t, f.calls("/listassets"), 1)
}

func TestSubmitLightningAddress(t *testing.T) {
	t.Parallel()

	f, c := newTestClient(t)

	var callback string
	f.on("/.well-known/lnurlp/alice", func(map[string]any) reply {
		return ok(map[string]any{
			"callback":    callback,
			"minSendable": 1_000,
			"maxSendable": 10_000_000,
			"metadata":    `[["text/plain","alice"]]`,
			"tag":         "payRequest",
		})
	})
	f.on("/lnurl/callback", func(map[string]any) reply {
		return ok(map[string]any{"pr": "lnbcrt-alice", "routes": []any{}})
	})
	var invoiceMsat atomic.Int64
	invoiceMsat.Store(2_000_000)
	f.on("/decodelninvoice", func(map[string]any) reply {
		return ok(map[string]any{
			"amt_msat":     invoiceMsat.Load(),
			"expiry_sec":   3600,
			"timestamp":    testNow.Unix(),
			"payment_hash": "hash",
			"payee_pubkey": "02abc",
			"network":      "Regtest",
		})
	})
	f.on("/sendpayment", func(map[string]any) reply {
		return ok(map[string]any{
			"payment_hash": "hash",
			"status":       "Pending",
		})
	})

	// The callback lives on the same test server.
	srvURL := c.cfg.URL
	callback = srvURL + "/lnurl/callback?session=1"

	res, err := c.Submit(context.Background(), &node.SubmitRequest{
		Kind:        node.SubmitLightningAddress,
		Destination: "Alice@example.com",
		AssetID:     asset.BTCAssetID,
		Amount:      2_000,
	})
	require.NoError(t, err)
	require.Equal(t, "hash", res.AttemptID)

	require.Equal(t, map[string]any{"invoice": "lnbcrt-alice"},
		f.calls("/sendpayment")[0])
	require.Equal(t, "lnbcrt-alice",
		f.calls("/decodelninvoice")[0]["invoice"])

	// An invoice for another amount than the one confirmed is not paid.
	invoiceMsat.Store(1_000_000_000)
	_, err = c.Submit(context.Background(), &node.SubmitRequest{
		Kind:        node.SubmitLightningAddress,
		Destination: "alice@example.com",
		Amount:      2_000,
	})
	require.ErrorContains(t, err, "instead of")
	require.Len(t, f.calls("/sendpayment"), 1)
	invoiceMsat.Store(2_000_000)

	// Amounts the service does not take are refused before paying.
	_, err = c.Submit(context.Background(), &node.SubmitRequest{
		Kind:        node.SubmitLightningAddress,
		Destination: "alice@example.com",
		Amount:      20_000,
	})
	require.ErrorContains(t, err, "accepts between")
	require.Len(t, f.calls("/sendpayment"), 1)

	// Service errors keep their reason.
	f.on("/lnurl/callback", func(map[string]any) reply {
		return ok(map[string]any{
			"status": "ERROR",
			"reason": "user is on holiday",
		})
	})
	_, err = c.Submit(context.Background(), &node.SubmitRequest{
		Kind:        node.SubmitLightningAddress,
		Destination: "alice@example.com",
		Amount:      2_000,
	})
	require.EqualError(t, err, "user is on holiday")
}
