package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/kaleidoswap/desktop-app-sub002/asset"
	"github.com/kaleidoswap/desktop-app-sub002/bounds"
	"github.com/kaleidoswap/desktop-app-sub002/build"
	"github.com/kaleidoswap/desktop-app-sub002/feequote"
	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/kaleidoswap/desktop-app-sub002/paymetrics"
	"github.com/kaleidoswap/desktop-app-sub002/payerr"
	"github.com/kaleidoswap/desktop-app-sub002/subscribe"
	"github.com/kaleidoswap/desktop-app-sub002/target"
	"github.com/kaleidoswap/desktop-app-sub002/units"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/shopspring/decimal"
)

const (
	// DefaultPollInterval is the delay between two status polls.
	DefaultPollInterval = 3 * time.Second

	// DefaultPollTimeout is how long a Lightning payment is polled before
	// it is reported as expired.
	DefaultPollTimeout = 60 * time.Second

	// DefaultWitnessAmountSat is the bitcoin amount sent along an asset
	// transfer to a witness recipient.
	DefaultWitnessAmountSat btcutil.Amount = 1200

	// MinWitnessAmountSat is the smallest witness amount the node accepts.
	MinWitnessAmountSat btcutil.Amount = 512
)

// ErrCannotCancel is returned by Cancel once the payment has been handed to
// the node.
var ErrCannotCancel = errors.New("payment already submitted, it can no " +
	"longer be cancelled")

// Config holds the collaborators and policy of a Controller.
type Config struct {
	// Node is the wallet node.
	Node node.Node

	// L2 is the Layer-2 wallet, nil when none is connected.
	L2 node.L2Wallet

	// PreferSpark settles Lightning targets internally when possible.
	PreferSpark bool

	// Classifier classifies payment strings.
	Classifier *target.Classifier

	// Debounce is the quiescent window after the last SetInput before the
	// input is classified. Zero classifies at once.
	Debounce time.Duration

	// Assets resolves asset ids.
	Assets *asset.Cache

	// Quotes produces fee quotes.
	Quotes *feequote.Aggregator

	// Limits is the bound policy.
	Limits bounds.Limits

	// Unit is the bitcoin display unit.
	Unit units.BitcoinUnit

	// PollInterval and PollTimeout drive the Lightning status loop.
	PollInterval time.Duration
	PollTimeout  time.Duration

	// NewTicker creates the poll ticker.
	NewTicker func(time.Duration) ticker.Ticker

	// Clock is the time source.
	Clock clock.Clock

	// Metrics records attempts and polls.
	Metrics paymetrics.Recorder

	// WitnessAmountSat is sent along asset transfers to witness
	// recipients. Values below MinWitnessAmountSat are raised to it.
	WitnessAmountSat btcutil.Amount

	// QueueSize is the initial snapshot buffer of each subscriber.
	QueueSize int
}

// poller owns the status loop of one attempt.
type poller struct {
	attemptID string
	ticker    ticker.Ticker
	timeout   <-chan time.Time
	deadline  time.Time

	quit chan struct{}
	once sync.Once
}

func (p *poller) stop() {
	p.once.Do(func() { close(p.quit) })
}

// Controller drives one payment form through classification, bound
// checking, preparation, confirmation and status polling. It holds at most
// one live attempt.
type Controller struct {
	cfg Config

	session   *target.Session
	tracker   *feequote.Tracker
	snapshots *subscribe.Server

	started atomic.Bool
	stopped atomic.Bool

	mu sync.Mutex

	// seq changes on every edit of the form. Results computed for an
	// older seq are dropped.
	seq     uint64
	version uint64

	state       State
	input       string
	target      target.PaymentTarget
	rails       []target.Rail
	rail        fn.Option[target.Rail]
	railChosen  bool
	asset       fn.Option[asset.Asset]
	bound       fn.Option[bounds.AmountBound]
	amount      int64
	amountInput string
	attempt     *PaymentAttempt
	comparison  *comparison
	lastErr     error
	poll        *poller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller in the Draft state.
func New(cfg Config) *Controller {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = func(d time.Duration) ticker.Ticker {
			return ticker.New(d)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = paymetrics.NewNoop()
	}
	switch {
	case cfg.WitnessAmountSat == 0:
		cfg.WitnessAmountSat = DefaultWitnessAmountSat

	case cfg.WitnessAmountSat < MinWitnessAmountSat:
		log.Warnf("Witness amount %v below minimum, using %v",
			cfg.WitnessAmountSat, MinWitnessAmountSat)
		cfg.WitnessAmountSat = MinWitnessAmountSat
	}

	ctx, cancel := context.WithCancel(context.Background())

	session := target.NewSession(target.SessionConfig{
		Classifier: cfg.Classifier,
		Clock:      cfg.Clock,
		Debounce:   cfg.Debounce,
		Publish: func(r target.Result) {
			cfg.Metrics.ObserveClassification(r.Target.Kind())
		},
	})

	return &Controller{
		cfg:       cfg,
		session:   session,
		tracker:   feequote.NewTracker(),
		snapshots: subscribe.NewServer(cfg.QueueSize),
		state:     StateDraft,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the snapshot server.
func (c *Controller) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	log.Debugf("Payment controller starting")

	return c.snapshots.Start()
}

// Stop ends any status loop and the snapshot server.
func (c *Controller) Stop() error {
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}

	log.Debugf("Payment controller shutting down...")

	c.cancel()
	c.mu.Lock()
	if c.poll != nil {
		c.poll.stop()
	}
	c.mu.Unlock()
	c.wg.Wait()
	c.session.Stop()

	return c.snapshots.Stop()
}

// Subscribe returns a client receiving every published Snapshot.
func (c *Controller) Subscribe() (*subscribe.Client, error) {
	return c.snapshots.Subscribe()
}

// Snapshot returns the current view of the controller.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Attempt returns a copy of the current attempt, if any.
func (c *Controller) Attempt() fn.Option[PaymentAttempt] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt == nil {
		return fn.None[PaymentAttempt]()
	}

	return fn.Some(*c.attempt)
}

func (c *Controller) setStateLocked(s State) {
	if c.state != s {
		log.Debugf("Payment form %v -> %v", c.state, s)
	}
	c.state = s
}

func (c *Controller) guardLocked(action string) error {
	return payerr.Guard(payerr.InvalidTransition, "cannot %s while %v",
		action, c.state)
}

// publish sends the current snapshot to subscribers.
func (c *Controller) publish() {
	if !c.started.Load() || c.stopped.Load() {
		return
	}

	c.mu.Lock()
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	log.Tracef("Publishing snapshot: %v", build.SpewLogClosure(snap))

	if err := c.snapshots.SendUpdate(snap); err != nil {
		log.Debugf("Unable to publish snapshot: %v", err)
	}
}

// SetInput replaces the payment string and classifies it once the input
// has been quiet for the debounce window. A call overtaken by a newer one
// returns nil without classifying. An invalid or infeasible target is
// reported through the snapshot, not as an error.
func (c *Controller) SetInput(ctx context.Context, text string) error {
	c.mu.Lock()
	if !c.state.editable() {
		err := c.guardLocked("change input")
		c.mu.Unlock()
		return err
	}

	c.seq++
	seq := c.seq
	c.resetLocked()
	c.input = text
	c.setStateLocked(StateClassifying)

	// Session sequence numbers follow the form's seq order.
	update := c.session.Update(text)
	c.mu.Unlock()
	c.publish()

	res, err := c.session.Wait(ctx, update)
	switch {
	case errors.Is(err, target.ErrSuperseded):
		log.Debugf("Dropping classification of superseded input")
		return nil

	case err != nil:
		return err
	}
	t := res.Target

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		log.Debugf("Dropping classification of superseded input")
		return nil
	}

	c.target = t
	if inv, ok := t.(*target.Invalid); ok {
		c.lastErr = payerr.New(
			payerr.ClassificationFailure, "%s", inv.Reason,
		)
		c.setStateLocked(StateInvalid)
		c.mu.Unlock()
		c.publish()

		return nil
	}

	c.rails = c.cfg.Classifier.Rails(t)
	c.rail = target.PrimaryRail(t)
	switch {
	case len(c.rails) == 0:
		c.rail = fn.None[target.Rail]()

	case !slices.Contains(c.rails, c.rail.UnwrapOr(0)):
		c.rail = fn.Some(c.rails[0])
	}
	c.setStateLocked(StateClassified)
	implied := target.ImpliedAsset(t)
	c.mu.Unlock()
	c.publish()

	// Asset invoices without an asset wait for SetAsset.
	if implied.IsNone() {
		return nil
	}

	return c.selectAsset(ctx, seq, implied.UnwrapOr(""))
}

// resetLocked clears everything derived from the input.
func (c *Controller) resetLocked() {
	c.target = nil
	c.rails = nil
	c.rail = fn.None[target.Rail]()
	c.railChosen = false
	c.asset = fn.None[asset.Asset]()
	c.bound = fn.None[bounds.AmountBound]()
	c.amount = 0
	c.amountInput = ""
	c.attempt = nil
	c.comparison = nil
	c.lastErr = nil
	c.tracker.Invalidate()
}

// SetAsset selects the asset to pay in and recomputes the bound.
func (c *Controller) SetAsset(ctx context.Context, id string) error {
	c.mu.Lock()
	if !c.state.editable() || c.target == nil {
		err := c.guardLocked("select asset")
		c.mu.Unlock()
		return err
	}

	implied := target.ImpliedAsset(c.target)
	if implied.IsSome() && implied.UnwrapOr("") != id {
		c.mu.Unlock()
		return payerr.New(payerr.ClassificationFailure, "target "+
			"pays in %s, not %s", implied.UnwrapOr(""), id)
	}

	c.seq++
	seq := c.seq
	c.mu.Unlock()

	return c.selectAsset(ctx, seq, id)
}

func (c *Controller) selectAsset(ctx context.Context, seq uint64,
	id string) error {

	a, err := c.cfg.Assets.Get(ctx, id)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.lastErr = payerr.New(payerr.ClassificationFailure,
			"unknown asset %s: %v", id, err)
		c.mu.Unlock()
		c.publish()

		return err
	}
	c.asset = fn.Some(a)
	c.mu.Unlock()

	return c.recompute(ctx, seq)
}

// SelectRail picks one of the target's rails and recomputes the bound.
func (c *Controller) SelectRail(ctx context.Context, rail target.Rail) error {
	c.mu.Lock()
	if !c.state.editable() || c.target == nil {
		err := c.guardLocked("select rail")
		c.mu.Unlock()
		return err
	}
	if !slices.Contains(c.rails, rail) {
		c.mu.Unlock()
		return payerr.New(payerr.InfeasibleBound, "rail %v cannot "+
			"settle this target", rail)
	}

	c.rail = fn.Some(rail)
	c.railChosen = true
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	return c.recompute(ctx, seq)
}

// Refresh refetches balances and recomputes the bound.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.editable() {
		err := c.guardLocked("refresh")
		c.mu.Unlock()
		return err
	}
	if c.target == nil {
		c.mu.Unlock()
		return nil
	}

	c.seq++
	seq := c.seq
	c.mu.Unlock()

	return c.recompute(ctx, seq)
}

// recompute fetches balances and recalculates the bound for the selected
// rail. Leaving a prepared state drops the quote.
func (c *Controller) recompute(ctx context.Context, seq uint64) error {
	c.mu.Lock()
	if seq != c.seq || c.target == nil || c.asset.IsNone() {
		c.mu.Unlock()
		return nil
	}
	if _, ok := c.target.(*target.Invalid); ok {
		c.mu.Unlock()
		return nil
	}

	t := c.target
	a := c.asset.UnwrapOr(asset.Asset{})
	if c.rail.IsNone() {
		c.lastErr = payerr.New(payerr.InfeasibleBound,
			"no rail can settle this target")
		c.setStateLocked(StateInfeasible)
		c.mu.Unlock()
		c.publish()

		return nil
	}
	rail := c.rail.UnwrapOr(0)
	chosen := c.railChosen

	if c.state.quoting() {
		c.tracker.Invalidate()
	}
	c.setStateLocked(StateBoundChecking)
	c.mu.Unlock()
	c.publish()

	bal, err := c.fetchBalances(ctx, a.ID, rail)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.lastErr = err
		c.setStateLocked(StateInfeasible)
		c.mu.Unlock()
		c.publish()

		return err
	}

	// Until a rail is picked the bound is the target's own.
	var b bounds.AmountBound
	primary := target.PrimaryRail(t)
	if !chosen && primary.IsSome() && primary.UnwrapOr(0) == rail {
		b = bounds.Calculate(t, a, bal, c.cfg.Limits)
	} else {
		b = bounds.CalculateFor(rail, t, a, bal, c.cfg.Limits)
	}
	log.Debugf("Bound for %v: %v", t.Kind(), b)

	c.bound = fn.Some(b)
	if b.Fixed {
		c.amount = b.Min
	}

	switch {
	case b.Infeasible:
		c.lastErr = b.Check(c.amount)
		c.setStateLocked(StateInfeasible)

	default:
		c.lastErr = nil
		if c.amount != 0 {
			c.lastErr = b.Check(c.amount)
		}
		c.setStateLocked(StateReady)
	}
	c.mu.Unlock()
	c.publish()

	return nil
}

func (c *Controller) fetchBalances(ctx context.Context, assetID string,
	rail target.Rail) (*node.Balances, error) {

	bal, err := c.cfg.Node.Balances(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch balances: %w", err)
	}

	if rail != target.RailL2 {
		return bal, nil
	}

	if c.cfg.L2 == nil {
		return nil, errors.New("no layer-2 wallet connected")
	}

	l2, err := c.cfg.L2.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch layer-2 balance: %w",
			err)
	}

	withL2 := *bal
	withL2.L2 = l2

	return &withL2, nil
}

// SetAmount parses a display amount in the selected asset. Changing the
// amount of a prepared payment drops its quote and rechecks the bound.
func (c *Controller) SetAmount(ctx context.Context, text string) error {
	c.mu.Lock()
	if !c.state.editable() || c.asset.IsNone() {
		err := c.guardLocked("set amount")
		c.mu.Unlock()
		return err
	}

	a := c.asset.UnwrapOr(asset.Asset{})
	amount, err := a.Parse(text, c.cfg.Unit)
	if errors.Is(err, payerr.ErrStillTyping) {
		c.amountInput = units.FormatInput(
			text, a.DisplayPrecision(c.cfg.Unit),
		)
	}
	if err != nil {
		c.mu.Unlock()
		c.publish()

		return err
	}

	fixed := fn.MapOptionZ(c.bound, func(b bounds.AmountBound) bool {
		return b.Fixed && b.Min != amount
	})
	if fixed {
		c.mu.Unlock()
		return payerr.Guard(payerr.InvalidTransition, "the invoice "+
			"fixes the amount, it cannot be edited")
	}

	c.amount = amount
	c.amountInput = units.FormatInput(text, a.DisplayPrecision(c.cfg.Unit))
	c.tracker.Observe(c.keyLocked())

	// An edit racing a prepare call bumps seq so the prepare result is
	// dropped as stale.
	if c.state.quoting() {
		c.seq++
		seq := c.seq
		c.mu.Unlock()

		return c.recompute(ctx, seq)
	}

	c.bound.WhenSome(func(b bounds.AmountBound) {
		if c.state == StateReady {
			c.lastErr = b.Check(amount)
		}
	})
	c.mu.Unlock()
	c.publish()

	return nil
}

// keyLocked returns the quote key of the form as it is now.
func (c *Controller) keyLocked() feequote.Key {
	k := feequote.Key{
		Amount: c.amount,
		Rail:   c.rail.UnwrapOr(0),
	}
	if c.target != nil {
		k.Target = c.target.Input()
	}
	c.asset.WhenSome(func(a asset.Asset) {
		k.Asset = a.ID
	})

	return k
}

// comparison is the result of the last CompareRails.
type comparison struct {
	quote feequote.FeeQuote
	speed node.Speed
	key   feequote.Key
}

// sameFormLocked returns true if k was computed for the current target,
// asset and amount. The rail is not compared.
func (c *Controller) sameFormLocked(k feequote.Key) bool {
	cur := c.keyLocked()

	return k.Target == cur.Target && k.Asset == cur.Asset &&
		k.Amount == cur.Amount
}

// CompareRails quotes every rail of the target. The snapshot carries the
// per rail fees and the recommendation, if one rail is strictly cheapest,
// until the target, asset or amount changes.
func (c *Controller) CompareRails(ctx context.Context,
	speed node.Speed) (feequote.FeeQuote, error) {

	c.mu.Lock()
	if c.state != StateReady && c.state != StateAwaitingConfirmation {
		err := c.guardLocked("compare rails")
		c.mu.Unlock()
		return nil, err
	}
	seq := c.seq
	req := &feequote.Request{
		Target: c.target,
		Asset:  c.keyLocked().Asset,
		Amount: c.amount,
		Rails:  slices.Clone(c.rails),
		Speed:  speed,
	}
	c.mu.Unlock()

	q, err := c.cfg.Quotes.Quote(ctx, req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if seq == c.seq {
		c.comparison = &comparison{
			quote: q,
			speed: speed,
			key:   q.QuoteKey(),
		}
	}
	c.mu.Unlock()
	c.publish()

	return q, nil
}

// Prepare creates a new attempt for the current form and quotes it on the
// selected rail. On success the controller waits for Confirm.
func (c *Controller) Prepare(ctx context.Context, opts PrepareOptions) error {
	c.mu.Lock()
	switch c.state {
	case StateReady, StatePrepareFailed, StatePrepared,
		StateAwaitingConfirmation:

	default:
		err := c.guardLocked("prepare")
		c.mu.Unlock()
		return err
	}

	b := c.bound.UnwrapOr(bounds.AmountBound{})
	if err := b.Check(c.amount); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.amount <= 0 {
		c.mu.Unlock()
		return payerr.New(payerr.OutOfRange, "amount must be positive")
	}

	attempt := &PaymentAttempt{
		ID:              uuid.NewString(),
		Target:          c.target,
		Asset:           b.Asset,
		RequestedAmount: c.amount,
		Rail:            b.Rail,
		Speed:           opts.Speed,
		CreatedAt:       c.cfg.Clock.Now(),
	}
	c.attempt = attempt
	c.tracker.Invalidate()
	seq := c.seq
	c.lastErr = nil
	c.setStateLocked(StatePreparing)
	c.mu.Unlock()
	c.publish()

	log.Infof("Preparing payment %v: %v %v via %v", attempt.ID,
		attempt.RequestedAmount, attempt.Asset, attempt.Rail)

	q, err := c.prepareRail(ctx, attempt, opts)

	c.mu.Lock()
	if seq != c.seq || c.attempt != attempt {
		if c.attempt == attempt {
			c.attempt = nil
		}
		c.mu.Unlock()
		c.publish()

		return payerr.New(payerr.QuoteStale, "payment form changed "+
			"while preparing")
	}

	if err != nil {
		if payerr.IsKind(err, payerr.InvalidFeeRate) {
			c.attempt = nil
			c.lastErr = err
			c.setStateLocked(StateReady)
			c.mu.Unlock()
			c.publish()

			return err
		}

		if !payerr.IsKind(err, payerr.PrepareFailed) {
			err = payerr.External(
				payerr.PrepareFailed, "unable to prepare "+
					"payment", err,
			)
		}

		attempt.Result = fn.Some(Outcome{
			State: StatePrepareFailed,
			At:    c.cfg.Clock.Now(),
			Err:   err,
		})
		c.lastErr = err
		c.setStateLocked(StatePrepareFailed)
		c.mu.Unlock()
		c.publish()

		return err
	}

	attempt.Quote = q
	key := feequote.Key{
		Target: attempt.Target.Input(),
		Asset:  attempt.Asset,
		Amount: attempt.RequestedAmount,
		Rail:   attempt.Rail,
	}
	c.tracker.Track(q, key)
	c.setStateLocked(StatePrepared)
	c.mu.Unlock()
	c.publish()

	c.mu.Lock()
	if c.attempt == attempt && c.state == StatePrepared {
		c.setStateLocked(StateAwaitingConfirmation)
	}
	c.mu.Unlock()
	c.publish()

	return nil
}

// prepareRail checks the target is still payable and fetches the quote.
func (c *Controller) prepareRail(ctx context.Context, a *PaymentAttempt,
	opts PrepareOptions) (feequote.FeeQuote, error) {

	now := c.cfg.Clock.Now()
	switch t := a.Target.(type) {
	case *target.LightningInvoice:
		if t.Expired(now) {
			return nil, errors.New("invoice expired")
		}

	case *target.AssetInvoice:
		expired := fn.ElimOption(t.ExpiryTimestamp,
			func() bool { return false },
			func(exp time.Time) bool { return !now.Before(exp) },
		)
		if expired {
			return nil, errors.New("invoice expired")
		}
	}

	return c.cfg.Quotes.Quote(ctx, &feequote.Request{
		Target:     a.Target,
		Asset:      a.Asset,
		Amount:     a.RequestedAmount,
		Rails:      []target.Rail{a.Rail},
		Speed:      a.Speed,
		CustomRate: opts.CustomFeeRate,
	})
}

// Confirm submits the prepared attempt. Synchronous rails end when the
// submit call returns, Lightning payments are polled.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	a := c.attempt
	if a == nil || a.Result.IsSome() {
		err := c.guardLocked("confirm")
		c.mu.Unlock()
		return err
	}
	if err := c.tracker.Validate(a.Quote); err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.publish()

		return err
	}
	if c.state != StateAwaitingConfirmation {
		err := c.guardLocked("confirm")
		c.mu.Unlock()
		return err
	}
	c.setStateLocked(StateSubmitting)
	c.mu.Unlock()
	c.publish()

	nodeID, status, err := c.submit(ctx, a)

	c.mu.Lock()
	if err != nil {
		err = payerr.External(
			payerr.SubmitFailed, "unable to submit payment", err,
		)
		c.finishLocked(a, StateSubmitFailed, err)
		c.mu.Unlock()
		c.publish()

		return err
	}

	log.Infof("Payment %v submitted as %v, status=%v", a.ID, nodeID,
		status)

	a.NodeID = nodeID
	c.tracker.Invalidate()
	c.setStateLocked(StateSubmitted)
	c.mu.Unlock()
	c.publish()

	c.mu.Lock()
	switch {
	case a.Rail.Synchronous():
		final := StateSucceeded
		if status == node.StatusFailed || status == node.StatusExpired {
			final = stateFor(status)
		}
		c.finishLocked(a, final, nil)

	case status.Terminal():
		c.finishLocked(a, stateFor(status), nil)

	default:
		c.startPollingLocked(a)
	}
	c.mu.Unlock()
	c.publish()

	return nil
}

// submit hands the attempt to the node or the Layer-2 wallet.
func (c *Controller) submit(ctx context.Context,
	a *PaymentAttempt) (string, node.PaymentStatus, error) {

	if a.Rail == target.RailL2 {
		q, ok := a.Quote.(*feequote.L2Fee)
		if !ok || c.cfg.L2 == nil {
			return "", 0, errors.New("no layer-2 quote to send")
		}

		out, err := c.cfg.L2.Send(ctx, q.Prepared, node.SendOptions{
			PreferSpark: c.cfg.PreferSpark,
			Speed:       a.Speed,
		})
		if err != nil {
			return "", 0, err
		}

		return out.PaymentID, out.Status, nil
	}

	req, err := submitRequest(a, c.cfg.WitnessAmountSat)
	if err != nil {
		return "", 0, err
	}

	log.Debugf("Submitting payment %v: %v", a.ID,
		build.SpewLogClosure(req))

	res, err := c.cfg.Node.Submit(ctx, req)
	if err != nil {
		return "", 0, err
	}

	return res.AttemptID, res.Status, nil
}

// submitRequest maps an attempt onto the node's submit call.
func submitRequest(a *PaymentAttempt,
	witness btcutil.Amount) (*node.SubmitRequest, error) {

	req := &node.SubmitRequest{
		AssetID: a.Asset,
		Amount:  a.RequestedAmount,
	}

	switch t := a.Target.(type) {
	case *target.LightningInvoice:
		req.Kind = node.SubmitLightning
		req.Destination = t.Invoice
		req.AmountFixed = t.AmountMsat.IsSome()

	case *target.LightningAddress:
		req.Kind = node.SubmitLightningAddress
		req.Destination = t.Identifier

	case *target.OnChainAddress:
		fee, ok := a.Quote.(*feequote.OnchainFee)
		if !ok {
			return nil, fmt.Errorf("unexpected quote %T for "+
				"on-chain payment", a.Quote)
		}

		req.Kind = node.SubmitOnChain
		req.Destination = t.Address.String()
		req.FeeRate = fee.Rate(a.Speed).InexactFloat64()

	case *target.AssetInvoice:
		fee, ok := a.Quote.(*feequote.AssetRailFee)
		if !ok {
			return nil, fmt.Errorf("unexpected quote %T for "+
				"asset payment", a.Quote)
		}

		req.Kind = node.SubmitAsset
		req.Destination = t.RecipientID
		req.TransportEndpoints = t.TransportHints
		fee.Rate.WhenSome(func(r decimal.Decimal) {
			req.FeeRate = r.InexactFloat64()
		})
		if t.IsWitness() {
			req.WitnessAmountSat = witness
		}

	case *target.L2Address, *target.Invalid:
		return nil, fmt.Errorf("%v cannot be paid by the node",
			t.Kind())

	default:
		panic(fmt.Sprintf("unknown payment target %T", t))
	}

	return req, nil
}

// Cancel abandons the form before submission.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	switch {
	case c.state == StateCancelled:
		c.mu.Unlock()
		return nil

	case c.state.Committed() || c.state.Terminal():
		c.mu.Unlock()
		return ErrCannotCancel
	}

	c.seq++
	if a := c.attempt; a != nil && a.Result.IsNone() {
		c.finishLocked(a, StateCancelled, nil)
	}
	c.tracker.Invalidate()
	c.setStateLocked(StateCancelled)
	c.mu.Unlock()
	c.publish()

	return nil
}

// Resume picks up a payment submitted by an earlier session. A pending
// payment is polled again, one the node does not know is failed.
func (c *Controller) Resume(ctx context.Context, nodeID string,
	rail target.Rail) error {

	c.mu.Lock()
	if c.state.Committed() {
		err := c.guardLocked("resume")
		c.mu.Unlock()
		return err
	}

	a := &PaymentAttempt{
		ID:        uuid.NewString(),
		NodeID:    nodeID,
		Target:    c.target,
		Rail:      rail,
		CreatedAt: c.cfg.Clock.Now(),
	}
	c.seq++
	c.attempt = a
	c.tracker.Invalidate()
	c.setStateLocked(StateSubmitted)
	c.mu.Unlock()
	c.publish()

	status, err := c.cfg.Node.PollStatus(ctx, nodeID)

	c.mu.Lock()
	switch {
	case errors.Is(err, node.ErrNotFound):
		c.finishLocked(a, StateFailed, payerr.New(payerr.SubmitFailed,
			"payment %s is unknown to the node", nodeID))

	case err != nil:
		log.Warnf("Unable to query payment %v, polling: %v", nodeID,
			err)
		c.startPollingLocked(a)

	case status.Terminal():
		c.finishLocked(a, stateFor(status), nil)

	default:
		c.startPollingLocked(a)
	}
	c.mu.Unlock()
	c.publish()

	return nil
}

// finishLocked moves the attempt to a terminal state. It returns false if
// the attempt had already ended.
func (c *Controller) finishLocked(a *PaymentAttempt, s State,
	err error) bool {

	if a.Result.IsSome() {
		return false
	}

	a.Result = fn.Some(Outcome{
		State: s,
		At:    c.cfg.Clock.Now(),
		Err:   err,
	})
	if err != nil {
		c.lastErr = err
	}

	if c.poll != nil && c.poll.attemptID == a.ID {
		c.poll.stop()
		c.poll = nil
	}

	c.cfg.Metrics.ObserveAttempt(a.Rail, s.String())

	if c.attempt == a {
		c.setStateLocked(s)
	}

	log.Infof("Payment %v finished: %v", a.ID, s)

	return true
}

// finish is finishLocked for callers not holding the lock.
func (c *Controller) finish(a *PaymentAttempt, s State, err error) {
	c.mu.Lock()
	changed := c.finishLocked(a, s, err)
	c.mu.Unlock()

	if changed {
		c.publish()
	}
}

func stateFor(s node.PaymentStatus) State {
	switch s {
	case node.StatusSucceeded:
		return StateSucceeded
	case node.StatusFailed:
		return StateFailed
	case node.StatusExpired:
		return StateExpired
	default:
		return StatePolling
	}
}
