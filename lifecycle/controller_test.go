package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/kaleidoswap/desktop-app-sub002/asset"
	"github.com/kaleidoswap/desktop-app-sub002/bounds"
	"github.com/kaleidoswap/desktop-app-sub002/feequote"
	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/kaleidoswap/desktop-app-sub002/node/nodemock"
	"github.com/kaleidoswap/desktop-app-sub002/payerr"
	"github.com/kaleidoswap/desktop-app-sub002/target"
	"github.com/kaleidoswap/desktop-app-sub002/units"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testInvoice   = "lnbcrt500n1pjlifecycletest"
	testL2Address = "sprt1pgssyuuuhnrrdjswal5c3s3rafw9w3y5dd4cjy3duxlf7hjzkp0rqx6dj6mrh"
	testTimeout   = time.Minute
)

var testStart = time.Unix(1_700_000_000, 0)

// countingRecorder counts metric events.
type countingRecorder struct {
	mu       sync.Mutex
	attempts map[string]int
	polls    int
}

func (r *countingRecorder) ObserveClassification(target.Kind) {}

func (r *countingRecorder) ObserveAttempt(_ target.Rail, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts[state]++
}

func (r *countingRecorder) ObservePoll(target.Rail) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.polls++
}

func (r *countingRecorder) ObserveQuote(target.Rail, time.Duration) {}

func (r *countingRecorder) attemptCount(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.attempts[state]
}

type testHarness struct {
	t       *testing.T
	node    *nodemock.MockNode
	l2      *nodemock.MockL2Wallet
	clock   *clock.TestClock
	metrics *countingRecorder
	ctrl    *Controller

	mu      sync.Mutex
	tickers []*ticker.Force
}

// harnessOption adjusts the harness and the controller config before the
// controller is created.
type harnessOption func(*testHarness, *Config)

func newTestHarness(t *testing.T, withL2 bool,
	opts ...harnessOption) *testHarness {

	t.Helper()

	h := &testHarness{
		t:       t,
		node:    &nodemock.MockNode{},
		l2:      &nodemock.MockL2Wallet{},
		clock:   clock.NewTestClock(testStart),
		metrics: &countingRecorder{attempts: make(map[string]int)},
	}

	var l2 node.L2Wallet
	if withL2 {
		l2 = h.l2
	}

	cfg := Config{
		Node: h.node,
		L2:   l2,
		Classifier: target.NewClassifier(target.Config{
			Decoder:     h.node,
			ChainParams: &chaincfg.RegressionNetParams,
			L2Enabled:   withL2,
		}),
		Assets: asset.NewCache(h.node),
		Quotes: feequote.New(feequote.Config{
			Estimator: h.node,
			L2:        l2,
			Clock:     h.clock,
		}),
		Limits:       bounds.DefaultLimits(),
		Unit:         units.UnitSat,
		PollInterval: time.Hour,
		PollTimeout:  testTimeout,
		NewTicker:    h.newTicker,
		Clock:        h.clock,
		Metrics:      h.metrics,
	}
	for _, opt := range opts {
		opt(h, &cfg)
	}

	h.ctrl = New(cfg)
	require.NoError(t, h.ctrl.Start())

	t.Cleanup(func() {
		require.NoError(t, h.ctrl.Stop())
		h.node.AssertExpectations(t)
		h.l2.AssertExpectations(t)
	})

	return h
}

// newTicker hands out force tickers whose real interval never elapses during
// a test.
func (h *testHarness) newTicker(time.Duration) ticker.Ticker {
	h.mu.Lock()
	defer h.mu.Unlock()

	tk := ticker.NewForce(time.Hour)
	h.tickers = append(h.tickers, tk)

	return tk
}

func (h *testHarness) ticker() *ticker.Force {
	h.mu.Lock()
	defer h.mu.Unlock()

	require.NotEmpty(h.t, h.tickers)

	return h.tickers[len(h.tickers)-1]
}

// tick force-feeds one tick and waits for the loop to take it.
func (h *testHarness) tick() {
	select {
	case h.ticker().Force <- h.clock.Now():
	case <-time.After(time.Second):
		h.t.Fatalf("poll loop did not take the tick")
	}
}

func (h *testHarness) waitForState(s State) {
	h.t.Helper()

	require.Eventually(h.t, func() bool {
		return h.ctrl.State() == s
	}, time.Second, time.Millisecond, "want state %v, have %v", s,
		h.ctrl.State())
}

func (h *testHarness) expectInvoice(amountMsat uint64) {
	h.node.On("DecodeLightningInvoice", mock.Anything, testInvoice).Return(
		&node.LightningInvoiceInfo{
			AmountMsat:  fn.Some(units.MilliSatoshi(amountMsat)),
			PaymentHash: "hash",
			Expiry:      time.Hour,
			Timestamp:   testStart,
		}, nil,
	).Once()
	h.node.On("Balances", mock.Anything, asset.BTCAssetID).Return(
		&node.Balances{
			LightningOutbound: 1_000_000,
			HTLCCeiling:       1_000_000,
		}, nil,
	)
}

// toAwaitingConfirmation prepares the fixed amount test invoice.
func (h *testHarness) toAwaitingConfirmation() {
	h.expectInvoice(50_000)

	ctx := context.Background()
	require.NoError(h.t, h.ctrl.SetInput(ctx, testInvoice))
	require.Equal(h.t, StateReady, h.ctrl.State())
	require.NoError(h.t, h.ctrl.Prepare(ctx, PrepareOptions{}))
	require.Equal(h.t, StateAwaitingConfirmation, h.ctrl.State())
}

// toPolling submits the test invoice with a pending status.
func (h *testHarness) toPolling() {
	h.toAwaitingConfirmation()

	h.node.On("Submit", mock.Anything, mock.MatchedBy(
		func(r *node.SubmitRequest) bool {
			return r.Kind == node.SubmitLightning &&
				r.Destination == testInvoice &&
				r.Amount == 50
		},
	)).Return(&node.SubmitResult{
		AttemptID: "hash",
		Status:    node.StatusPending,
	}, nil).Once()

	require.NoError(h.t, h.ctrl.Confirm(context.Background()))
	require.Equal(h.t, StatePolling, h.ctrl.State())
}

func regtestAddress(t *testing.T) string {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		make([]byte, 20), &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	return addr.EncodeAddress()
}

// TestLightningPayment walks a fixed amount invoice to success.
func TestLightningPayment(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, false)
	h.toAwaitingConfirmation()

	snap := h.ctrl.Snapshot()
	require.Equal(t, "AwaitingConfirmation", snap.State)
	require.Equal(t, int64(50), snap.Amount)
	require.True(t, snap.Bound.Fixed)
	require.Equal(t, int64(50), snap.Bound.Min)
	require.Equal(t, int64(50), snap.Bound.Max)
	require.Equal(t, int64(10), *snap.FeeSats)
	require.True(t, snap.CanSubmit)

	require.Equal(t, "lightning_invoice", snap.Kind)
	require.Equal(t, uint64(50_000), *snap.Target.AmountMsat)
	require.Equal(t, "hash", snap.Target.PaymentHash)
	require.Equal(t, testStart.Add(time.Hour), *snap.Target.ExpiresAt)
	require.Len(t, snap.Quote.Rails, 1)
	require.Equal(t, "lightning", snap.Quote.Rails[0].Rail)

	h.node.On("Submit", mock.Anything, mock.Anything).Return(
		&node.SubmitResult{AttemptID: "hash"}, nil,
	).Once()
	h.node.On("PollStatus", mock.Anything, "hash").
		Return(node.StatusPending, nil).Once()
	h.node.On("PollStatus", mock.Anything, "hash").
		Return(node.StatusSucceeded, nil).Once()

	require.NoError(t, h.ctrl.Confirm(context.Background()))
	require.Equal(t, StatePolling, h.ctrl.State())

	h.tick()
	h.tick()
	h.waitForState(StateSucceeded)

	require.Equal(t, 1, h.metrics.attemptCount("Succeeded"))
	attempt := h.ctrl.Attempt().UnwrapOrFail(t)
	require.Equal(t, "hash", attempt.NodeID)
	require.Equal(t, StateSucceeded,
		attempt.Result.UnwrapOrFail(t).State)
}

// TestPollTimeoutExpiresOnce checks that the deadline ends the attempt once
// and that no poll reaches the node afterwards.
func TestPollTimeoutExpiresOnce(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, false)
	h.toPolling()

	h.node.On("PollStatus", mock.Anything, "hash").
		Return(node.StatusPending, nil).Twice()

	h.tick()
	h.tick()

	h.clock.SetTime(testStart.Add(testTimeout))
	h.waitForState(StateExpired)

	// The loop is gone, nobody takes further ticks.
	select {
	case h.ticker().Force <- h.clock.Now():
		t.Fatalf("tick consumed after expiry")
	case <-time.After(50 * time.Millisecond):
	}

	h.node.AssertNumberOfCalls(t, "PollStatus", 2)
	require.Equal(t, 1, h.metrics.attemptCount("Expired"))

	snap := h.ctrl.Snapshot()
	require.Equal(t, "Expired", snap.ErrorKind)
	require.False(t, snap.CanSubmit)
}

// TestQuoteStaleAfterAmountChange checks that changing the amount of a
// prepared payment invalidates its quote.
func TestQuoteStaleAfterAmountChange(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, false)
	ctx := context.Background()
	addr := regtestAddress(t)

	h.node.On("Balances", mock.Anything, asset.BTCAssetID).Return(
		&node.Balances{OnChain: 100_000}, nil,
	)
	h.node.On("EstimateFees", mock.Anything).Return(&node.FeeEstimates{
		Slow: 2, Medium: 5, Fast: 10, MinRelay: 1,
	}, nil).Twice()

	require.NoError(t, h.ctrl.SetInput(ctx, addr))
	require.Equal(t, StateReady, h.ctrl.State())
	require.False(t, h.ctrl.Snapshot().CanSubmit)

	require.NoError(t, h.ctrl.SetAmount(ctx, "1,000"))
	require.True(t, h.ctrl.Snapshot().CanSubmit)

	opts := PrepareOptions{Speed: node.SpeedMedium}
	require.NoError(t, h.ctrl.Prepare(ctx, opts))
	require.Equal(t, StateAwaitingConfirmation, h.ctrl.State())
	snap := h.ctrl.Snapshot()
	require.Equal(t, int64(705), *snap.FeeSats)
	tiers := snap.Quote.Rails[0].Tiers
	require.Equal(t, int64(282), tiers.SlowSats)
	require.Equal(t, int64(705), tiers.MediumSats)
	require.Equal(t, int64(1410), tiers.FastSats)
	require.Equal(t, "5", tiers.MediumRate)

	require.NoError(t, h.ctrl.SetAmount(ctx, "2000"))
	require.Equal(t, StateReady, h.ctrl.State())

	// The fee of the dropped quote is no longer shown.
	snap = h.ctrl.Snapshot()
	require.Nil(t, snap.FeeSats)
	require.Nil(t, snap.Quote)

	err := h.ctrl.Confirm(ctx)
	require.ErrorIs(t, err, payerr.ErrQuoteStale)
	h.node.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)

	// A fresh prepare can be confirmed. On-chain sends end on return.
	require.NoError(t, h.ctrl.Prepare(ctx, opts))
	h.node.On("Submit", mock.Anything, mock.MatchedBy(
		func(r *node.SubmitRequest) bool {
			return r.Kind == node.SubmitOnChain &&
				r.Amount == 2000 && r.FeeRate == 5
		},
	)).Return(&node.SubmitResult{AttemptID: "txid"}, nil).Once()

	require.NoError(t, h.ctrl.Confirm(ctx))
	require.Equal(t, StateSucceeded, h.ctrl.State())
	require.Empty(t, h.tickers)
}

// TestOutOfRangeAndInfeasible checks the form level validation.
func TestOutOfRangeAndInfeasible(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, false)
	ctx := context.Background()

	require.NoError(t, h.ctrl.SetInput(ctx, "not a payment"))
	snap := h.ctrl.Snapshot()
	require.Equal(t, "Invalid", snap.State)
	require.Equal(t, "ClassificationFailure", snap.ErrorKind)
	require.False(t, snap.CanSubmit)

	h.node.On("Balances", mock.Anything, asset.BTCAssetID).Return(
		&node.Balances{OnChain: 100}, nil,
	).Once()
	require.NoError(t, h.ctrl.SetInput(ctx, regtestAddress(t)))
	snap = h.ctrl.Snapshot()
	require.Equal(t, "Infeasible", snap.State)
	require.Equal(t, "InfeasibleBound", snap.ErrorKind)

	err := h.ctrl.Prepare(ctx, PrepareOptions{})
	require.ErrorIs(t, err, payerr.ErrInvalidTransition)
}

// TestSetAmountParseErrors checks that parse failures leave the form as is.
func TestSetAmountParseErrors(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, false)
	ctx := context.Background()

	h.node.On("Balances", mock.Anything, asset.BTCAssetID).Return(
		&node.Balances{OnChain: 100_000}, nil,
	).Once()
	require.NoError(t, h.ctrl.SetInput(ctx, regtestAddress(t)))
	require.NoError(t, h.ctrl.SetAmount(ctx, "600"))

	require.Equal(t, "600", h.ctrl.Snapshot().AmountInput)

	// Partial input is echoed back but does not change the amount.
	err := h.ctrl.SetAmount(ctx, ".")
	require.ErrorIs(t, err, payerr.ErrStillTyping)
	require.Equal(t, int64(600), h.ctrl.Snapshot().Amount)
	require.Equal(t, ".", h.ctrl.Snapshot().AmountInput)

	err = h.ctrl.SetAmount(ctx, "1.2.3")
	require.ErrorIs(t, err, payerr.ErrParseFailure)

	require.NoError(t, h.ctrl.SetAmount(ctx, "500000"))
	snap := h.ctrl.Snapshot()
	require.Equal(t, "500,000", snap.AmountInput)
	require.Equal(t, "OutOfRange", snap.ErrorKind)
	require.False(t, snap.CanSubmit)
}

// TestCancel checks that cancelling is allowed until submission only.
func TestCancel(t *testing.T) {
	t.Parallel()

	t.Run("before submit", func(t *testing.T) {
		h := newTestHarness(t, false)
		h.toAwaitingConfirmation()

		require.NoError(t, h.ctrl.Cancel())
		require.Equal(t, StateCancelled, h.ctrl.State())
		require.NoError(t, h.ctrl.Cancel())
		require.Equal(t, 1, h.metrics.attemptCount("Cancelled"))

		err := h.ctrl.Confirm(context.Background())
		require.ErrorIs(t, err, payerr.ErrInvalidTransition)
	})

	t.Run("after submit", func(t *testing.T) {
		h := newTestHarness(t, false)
		h.toPolling()

		require.ErrorIs(t, h.ctrl.Cancel(), ErrCannotCancel)

		err := h.ctrl.SetInput(context.Background(), "other")
		require.ErrorIs(t, err, payerr.ErrInvalidTransition)
		require.Equal(t, StatePolling, h.ctrl.State())
	})
}

// TestSubmitFailed checks that the raw node message and its suggestion are
// kept.
func TestSubmitFailed(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, false)
	h.toAwaitingConfirmation()

	h.node.On("Submit", mock.Anything, mock.Anything).Return(
		nil, errors.New("Failed to find route to destination"),
	).Once()

	err := h.ctrl.Confirm(context.Background())
	require.True(t, payerr.IsKind(err, payerr.SubmitFailed))

	snap := h.ctrl.Snapshot()
	require.Equal(t, "SubmitFailed", snap.State)
	require.Equal(t, "alternate_rail", snap.Suggestion)
	require.Contains(t, snap.Error, "Failed to find route to destination")

	// The attempt is over, it cannot be confirmed again.
	err = h.ctrl.Confirm(context.Background())
	require.ErrorIs(t, err, payerr.ErrInvalidTransition)
}

// TestPrepareExpiredInvoice checks the expiry check of prepare.
func TestPrepareExpiredInvoice(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, false)
	h.expectInvoice(50_000)

	ctx := context.Background()
	require.NoError(t, h.ctrl.SetInput(ctx, testInvoice))

	h.clock.SetTime(testStart.Add(2 * time.Hour))
	err := h.ctrl.Prepare(ctx, PrepareOptions{})
	require.True(t, payerr.IsKind(err, payerr.PrepareFailed))

	snap := h.ctrl.Snapshot()
	require.Equal(t, "PrepareFailed", snap.State)
	require.Equal(t, "reenter_target", snap.Suggestion)
}

// TestInvalidCustomFeeRate checks that a bad custom rate keeps the form
// ready.
func TestInvalidCustomFeeRate(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, false)
	ctx := context.Background()

	h.node.On("Balances", mock.Anything, asset.BTCAssetID).Return(
		&node.Balances{OnChain: 100_000}, nil,
	).Once()
	h.node.On("EstimateFees", mock.Anything).Return(&node.FeeEstimates{
		Slow: 2, Medium: 5, Fast: 10, MinRelay: 1,
	}, nil).Once()

	require.NoError(t, h.ctrl.SetInput(ctx, regtestAddress(t)))
	require.NoError(t, h.ctrl.SetAmount(ctx, "1000"))

	err := h.ctrl.Prepare(ctx, PrepareOptions{
		CustomFeeRate: fn.Some("0.5"),
	})
	require.ErrorIs(t, err, payerr.ErrInvalidFeeRate)
	require.Equal(t, StateReady, h.ctrl.State())
	require.True(t, h.ctrl.Attempt().IsNone())
}

// TestResume checks re-attaching to a payment of an earlier session.
func TestResume(t *testing.T) {
	t.Parallel()

	t.Run("unknown", func(t *testing.T) {
		h := newTestHarness(t, false)
		h.node.On("PollStatus", mock.Anything, "gone").
			Return(node.PaymentStatus(0), node.ErrNotFound).Once()

		require.NoError(t, h.ctrl.Resume(
			context.Background(), "gone", target.RailLightning,
		))
		require.Equal(t, StateFailed, h.ctrl.State())
	})

	t.Run("pending", func(t *testing.T) {
		h := newTestHarness(t, false)
		h.node.On("PollStatus", mock.Anything, "hash").
			Return(node.StatusPending, nil).Once()
		h.node.On("PollStatus", mock.Anything, "hash").
			Return(node.StatusFailed, nil).Once()

		require.NoError(t, h.ctrl.Resume(
			context.Background(), "hash", target.RailLightning,
		))
		require.Equal(t, StatePolling, h.ctrl.State())

		h.tick()
		h.waitForState(StateFailed)
		require.Equal(t, 1, h.metrics.attemptCount("Failed"))
	})
}

// TestL2Payment checks a synchronous Layer-2 send.
func TestL2Payment(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, true)
	ctx := context.Background()

	h.node.On("Balances", mock.Anything, asset.BTCAssetID).Return(
		&node.Balances{}, nil,
	)
	h.l2.On("Balance", mock.Anything).Return(int64(50_000), nil)

	prepared := &node.PreparedSend{
		Destination: testL2Address,
		Amount:      1_000,
		Fees:        node.L2FeeBreakdown{Spark: fn.Some(int64(0))},
		Rail:        node.L2RailSpark,
	}
	h.l2.On("PrepareSend", mock.Anything, testL2Address,
		fn.Some(int64(1_000))).Return(prepared, nil).Once()
	h.l2.On("Send", mock.Anything, prepared, mock.Anything).Return(
		&node.SendOutcome{
			PaymentID: "l2-1",
			Status:    node.StatusPending,
		}, nil,
	).Once()

	require.NoError(t, h.ctrl.SetInput(ctx, testL2Address))
	snap := h.ctrl.Snapshot()
	require.Equal(t, "Ready", snap.State)
	require.Equal(t, []string{"l2"}, snap.Rails)
	require.Equal(t, int64(50_000), snap.Bound.Max)

	require.NoError(t, h.ctrl.SetAmount(ctx, "1000"))
	require.NoError(t, h.ctrl.Prepare(ctx, PrepareOptions{}))
	require.Equal(t, int64(0), *h.ctrl.Snapshot().FeeSats)

	require.NoError(t, h.ctrl.Confirm(ctx))
	require.Equal(t, StateSucceeded, h.ctrl.State())
	require.Equal(t, "l2-1", h.ctrl.Attempt().UnwrapOrFail(t).NodeID)
}

// TestSnapshotsPublished checks that subscribers see the form progress.
func TestSnapshotsPublished(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, false)
	client, err := h.ctrl.Subscribe()
	require.NoError(t, err)
	defer client.Cancel()

	h.toAwaitingConfirmation()

	var (
		last   uint64
		states []string
	)
	for {
		select {
		case upd := <-client.Updates():
			snap := upd.(Snapshot)
			require.Greater(t, snap.Version, last)
			last = snap.Version
			states = append(states, snap.State)

			if snap.State == "AwaitingConfirmation" {
				require.Equal(t, []string{
					"Classifying", "Classified",
					"BoundChecking", "Ready", "Preparing",
					"Prepared", "AwaitingConfirmation",
				}, states)
				return
			}

		case <-time.After(time.Second):
			t.Fatalf("missing snapshots, got %v", states)
		}
	}
}

// TestAmountEditWhilePreparing checks that an amount edit racing a prepare
// call makes the prepare result stale.
func TestAmountEditWhilePreparing(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, false)
	ctx := context.Background()

	h.node.On("Balances", mock.Anything, asset.BTCAssetID).Return(
		&node.Balances{OnChain: 100_000}, nil,
	)

	started := make(chan struct{})
	release := make(chan struct{})
	h.node.On("EstimateFees", mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(&node.FeeEstimates{
		Slow: 2, Medium: 5, Fast: 10, MinRelay: 1,
	}, nil).Once()

	require.NoError(t, h.ctrl.SetInput(ctx, regtestAddress(t)))
	require.NoError(t, h.ctrl.SetAmount(ctx, "1000"))

	prepared := make(chan error, 1)
	go func() {
		prepared <- h.ctrl.Prepare(ctx, PrepareOptions{
			Speed: node.SpeedMedium,
		})
	}()

	<-started
	require.Equal(t, StatePreparing, h.ctrl.State())
	require.NoError(t, h.ctrl.SetAmount(ctx, "5000"))
	close(release)

	select {
	case err := <-prepared:
		require.ErrorIs(t, err, payerr.ErrQuoteStale)
	case <-time.After(time.Second):
		t.Fatalf("prepare did not return")
	}

	require.Equal(t, StateReady, h.ctrl.State())
	require.True(t, h.ctrl.Attempt().IsNone())

	snap := h.ctrl.Snapshot()
	require.Equal(t, int64(5000), snap.Amount)
	require.Nil(t, snap.FeeSats)
	require.True(t, snap.CanSubmit)

	err := h.ctrl.Confirm(ctx)
	require.ErrorIs(t, err, payerr.ErrInvalidTransition)
	h.node.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

// TestFixedAmountNotEditable checks that the amount of an invoice that
// fixes it cannot be changed.
func TestFixedAmountNotEditable(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, false)
	h.toAwaitingConfirmation()

	err := h.ctrl.SetAmount(context.Background(), "60")
	require.ErrorIs(t, err, payerr.ErrInvalidTransition)
	require.Equal(t, StateAwaitingConfirmation, h.ctrl.State())
	require.Equal(t, int64(50), h.ctrl.Snapshot().Amount)
	require.True(t, h.ctrl.Snapshot().CanSubmit)
}

// TestSetInputDebounced checks that inputs typed within the debounce window
// are decoded once, for the last text only.
func TestSetInputDebounced(t *testing.T) {
	t.Parallel()

	signal := make(chan time.Duration, 4)
	h := newTestHarness(t, false, func(h *testHarness, cfg *Config) {
		h.clock = clock.NewTestClockWithTickSignal(testStart, signal)
		cfg.Clock = h.clock
		cfg.Debounce = target.DefaultDebounce
	})
	h.expectInvoice(50_000)

	ctx := context.Background()
	first := make(chan error, 1)
	go func() { first <- h.ctrl.SetInput(ctx, testInvoice[:10]) }()
	<-signal

	second := make(chan error, 1)
	go func() { second <- h.ctrl.SetInput(ctx, testInvoice) }()
	<-signal

	// The first call is overtaken before its window ends.
	require.NoError(t, <-first)
	require.Equal(t, StateClassifying, h.ctrl.State())

	h.clock.SetTime(testStart.Add(target.DefaultDebounce))
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("input not classified")
	}

	require.Equal(t, StateReady, h.ctrl.State())
	require.Equal(t, testInvoice, h.ctrl.Snapshot().Input)
	h.node.AssertNumberOfCalls(t, "DecodeLightningInvoice", 1)
}

// TestWitnessAmount checks the bitcoin amount sent to witness recipients.
func TestWitnessAmount(t *testing.T) {
	t.Parallel()

	witness := &PaymentAttempt{
		Target: &target.AssetInvoice{
			Invoice:       "rgb:witness",
			RecipientID:   "wvout:abc",
			RecipientType: "Witness",
		},
		Asset:           "rgb:asset",
		RequestedAmount: 10,
		Rail:            target.RailAssetOnChain,
		Quote:           &feequote.AssetRailFee{Sats: 300},
	}

	for _, tc := range []struct {
		name string
		cfg  btcutil.Amount
		want btcutil.Amount
	}{
		{name: "default", want: DefaultWitnessAmountSat},
		{name: "configured", cfg: 2000, want: 2000},
		{name: "below minimum", cfg: 100, want: MinWitnessAmountSat},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHarness(t, false, func(_ *testHarness,
				cfg *Config) {

				cfg.WitnessAmountSat = tc.cfg
			})

			req, err := submitRequest(
				witness, h.ctrl.cfg.WitnessAmountSat,
			)
			require.NoError(t, err)
			require.Equal(t, node.SubmitAsset, req.Kind)
			require.Equal(t, tc.want, req.WitnessAmountSat)
		})
	}

	require.Equal(t, btcutil.Amount(1200), DefaultWitnessAmountSat)
}

// TestCompareRails checks that the per rail fees and the recommendation
// are published and dropped once the amount changes.
func TestCompareRails(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, true)
	ctx := context.Background()

	h.node.On("DecodeLightningInvoice", mock.Anything, testInvoice).Return(
		&node.LightningInvoiceInfo{
			Payee:       "02abc",
			PaymentHash: "hash",
			Expiry:      time.Hour,
			Timestamp:   testStart,
		}, nil,
	).Once()
	h.node.On("Balances", mock.Anything, asset.BTCAssetID).Return(
		&node.Balances{
			LightningOutbound: 1_000_000,
			HTLCCeiling:       1_000_000,
		}, nil,
	)
	h.l2.On("PrepareSend", mock.Anything, testInvoice,
		fn.Some(int64(2_000))).Return(&node.PreparedSend{
		Destination: testInvoice,
		Amount:      2_000,
		Fees: node.L2FeeBreakdown{
			Lightning: fn.Some(int64(2)),
		},
		Rail: node.L2RailLightning,
	}, nil).Once()

	require.NoError(t, h.ctrl.SetInput(ctx, testInvoice))
	require.NoError(t, h.ctrl.SetAmount(ctx, "2000"))

	snap := h.ctrl.Snapshot()
	require.Equal(t, "02abc", snap.Target.Payee)
	require.Nil(t, snap.Target.AmountMsat)
	require.Equal(t, []string{"lightning", "l2"}, snap.Rails)

	_, err := h.ctrl.CompareRails(ctx, node.SpeedMedium)
	require.NoError(t, err)

	snap = h.ctrl.Snapshot()
	require.Equal(t, "l2", snap.Recommended)
	require.Equal(t, []RailFeeView{
		{Rail: "lightning", FeeSats: 20},
		{Rail: "l2", FeeSats: 2},
	}, snap.Comparison.Rails)

	require.NoError(t, h.ctrl.SetAmount(ctx, "3000"))
	snap = h.ctrl.Snapshot()
	require.Nil(t, snap.Comparison)
	require.Empty(t, snap.Recommended)
}
