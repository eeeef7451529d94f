package lifecycle

import (
	"errors"

	"github.com/kaleidoswap/desktop-app-sub002/asset"
	"github.com/kaleidoswap/desktop-app-sub002/bounds"
	"github.com/kaleidoswap/desktop-app-sub002/payerr"
	"github.com/kaleidoswap/desktop-app-sub002/target"
)

// BoundView is the serializable form of an amount bound.
type BoundView struct {
	Min        int64  `json:"min"`
	Max        int64  `json:"max"`
	MinDisplay string `json:"min_display"`
	MaxDisplay string `json:"max_display"`
	Rail       string `json:"rail"`
	Fixed      bool   `json:"fixed"`
	Infeasible bool   `json:"infeasible"`
	Reason     string `json:"reason,omitempty"`
}

// Snapshot is a plain, serializable view of the controller.
type Snapshot struct {
	// Version increases with every published snapshot.
	Version uint64 `json:"version"`

	State  string      `json:"state"`
	Input  string      `json:"input,omitempty"`
	Kind   string      `json:"target_kind,omitempty"`
	Target *TargetView `json:"target,omitempty"`

	Asset         string `json:"asset,omitempty"`
	Ticker        string `json:"ticker,omitempty"`
	Amount        int64  `json:"amount"`
	AmountDisplay string `json:"amount_display"`

	// AmountInput is the amount text as typed, normalised for display.
	AmountInput string `json:"amount_input,omitempty"`

	Bound *BoundView `json:"bound,omitempty"`

	Rails []string `json:"rails,omitempty"`
	Rail  string   `json:"rail,omitempty"`

	// Quote is the quote of the prepared attempt, shown while it may
	// still be confirmed. FeeSats is its fee at the attempt's speed.
	Quote   *QuoteView `json:"quote,omitempty"`
	FeeSats *int64     `json:"fee_sats,omitempty"`

	// Comparison holds the per rail quotes of the last CompareRails for
	// the current target, asset and amount.
	Comparison  *QuoteView `json:"comparison,omitempty"`
	Recommended string     `json:"recommended_rail,omitempty"`

	AttemptID string `json:"attempt_id,omitempty"`
	NodeID    string `json:"node_id,omitempty"`

	CanSubmit bool `json:"can_submit"`

	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func railNames(rails []target.Rail) []string {
	if len(rails) == 0 {
		return nil
	}

	names := make([]string, 0, len(rails))
	for _, r := range rails {
		names = append(names, r.String())
	}

	return names
}

// fillError copies a user facing error into the snapshot.
func (s *Snapshot) fillError(err error) {
	if err == nil {
		return
	}

	s.Error = err.Error()

	kind, ok := payerr.KindOf(err)
	if !ok {
		return
	}
	s.ErrorKind = kind.String()

	var pe *payerr.Error
	if errors.As(err, &pe) && pe.Suggestion != payerr.SuggestNone {
		s.Suggestion = pe.Suggestion.String()
	}
}

// snapshotLocked builds the serializable view.
func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Version:     c.version,
		State:       c.state.String(),
		Input:       c.input,
		Amount:      c.amount,
		AmountInput: c.amountInput,
		Rails:       railNames(c.rails),
	}

	if c.target != nil {
		s.Kind = c.target.Kind().String()
		s.Target = NewTargetView(c.target)
	}
	c.rail.WhenSome(func(r target.Rail) {
		s.Rail = r.String()
	})
	if cmp := c.comparison; cmp != nil && c.sameFormLocked(cmp.key) {
		s.Comparison = NewQuoteView(cmp.quote, cmp.speed)
		s.Recommended = s.Comparison.Recommended
	}

	c.asset.WhenSome(func(a asset.Asset) {
		s.Asset = a.ID
		s.Ticker = a.DisplayTicker(c.cfg.Unit)
		s.AmountDisplay = a.Format(c.amount, c.cfg.Unit)

		c.bound.WhenSome(func(b bounds.AmountBound) {
			s.Bound = &BoundView{
				Min:        b.Min,
				Max:        b.Max,
				MinDisplay: a.Format(b.Min, c.cfg.Unit),
				MaxDisplay: a.Format(b.Max, c.cfg.Unit),
				Rail:       b.Rail.String(),
				Fixed:      b.Fixed,
				Infeasible: b.Infeasible,
				Reason:     b.Reason,
			}
		})
	})

	if a := c.attempt; a != nil {
		s.AttemptID = a.ID
		s.NodeID = a.NodeID
		if a.Quote != nil && c.tracker.Validate(a.Quote) == nil {
			fee := a.Quote.FeeSats(a.Speed)
			s.FeeSats = &fee
			s.Quote = NewQuoteView(a.Quote, a.Speed)
		}
	}

	s.CanSubmit = c.canSubmitLocked()
	s.fillError(c.lastErr)

	return s
}

// canSubmitLocked reports whether the primary action of the form is
// available: Prepare when Ready, Confirm when awaiting confirmation.
func (c *Controller) canSubmitLocked() bool {
	switch c.state {
	case StateAwaitingConfirmation:
		return true

	case StateReady:
		if c.amount <= 0 || c.bound.IsNone() {
			return false
		}

		b := c.bound.UnwrapOr(bounds.AmountBound{})
		return b.Check(c.amount) == nil

	default:
		return false
	}
}
