package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/kaleidoswap/desktop-app-sub002/asset"
	"github.com/kaleidoswap/desktop-app-sub002/lifecycle"
	"github.com/kaleidoswap/desktop-app-sub002/node"
	"github.com/kaleidoswap/desktop-app-sub002/target"
	"github.com/kaleidoswap/desktop-app-sub002/units"
	"github.com/lightningnetwork/lnd/fn/v2"
)

func printJSON(resp any) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "\t"); err != nil {
		return err
	}
	out.WriteString("\n")
	_, err = out.WriteTo(os.Stdout)

	return err
}

func parseRail(s string) (target.Rail, error) {
	for _, r := range target.AllRails {
		if strings.EqualFold(r.String(), s) {
			return r, nil
		}
	}

	return 0, fmt.Errorf("unknown rail %q", s)
}

func parseSpeed(s string) (node.Speed, error) {
	for _, speed := range []node.Speed{
		node.SpeedSlow, node.SpeedMedium, node.SpeedFast,
	} {
		if strings.EqualFold(speed.String(), s) {
			return speed, nil
		}
	}

	return 0, fmt.Errorf("unknown speed %q", s)
}

// resolveAsset accepts a ticker or an asset id.
func (a *app) resolveAsset(ctx context.Context, s string) (asset.Asset,
	error) {

	found, err := a.assets.ByTicker(ctx, s)
	if err == nil {
		return found, nil
	}

	return a.assets.Get(ctx, s)
}

//nolint:lll
type convertCommand struct {
	app *app

	Precision uint8  `long:"precision" description:"Number of fractional digits of the asset"`
	Asset     string `long:"asset" description:"Take the precision from this asset, ticker or id"`
	Base      bool   `long:"base" description:"The value is in base units and is converted for display"`
}

func newConvertCommand(a *app) *convertCommand {
	return &convertCommand{app: a}
}

func (x *convertCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"convert",
		"Convert between display amounts and base units",
		"Parse a display amount such as 1,234.5 into base units, or "+
			"with --base format base units for display; the "+
			"precision is given directly or taken from --asset",
		x,
	)
	return err
}

func (x *convertCommand) Execute(args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one value is required")
	}

	precision := x.Precision
	if x.Asset != "" {
		a, err := x.app.resolveAsset(x.app.ctx, x.Asset)
		if err != nil {
			return err
		}
		precision = a.DisplayPrecision(x.app.unit())
	}

	var (
		base int64
		err  error
	)
	if x.Base {
		base, err = strconv.ParseInt(args[0], 10, 64)
	} else {
		base, err = units.FromDisplay(args[0], precision)
	}
	if err != nil {
		return err
	}

	return printJSON(struct {
		Base    int64  `json:"base_units"`
		Display string `json:"display"`
		Plain   string `json:"plain"`
	}{
		Base:    base,
		Display: units.ToDisplay(base, precision),
		Plain:   units.ToPlain(base, precision),
	})
}

type classifyCommand struct {
	app *app
}

func newClassifyCommand(a *app) *classifyCommand {
	return &classifyCommand{app: a}
}

func (x *classifyCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"classify",
		"Classify a payment string",
		"Report the kind of the payment string, the rails that can "+
			"settle it and the asset it pays in",
		x,
	)
	return err
}

func (x *classifyCommand) Execute(args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one payment string is required")
	}

	t := x.app.classifier.Classify(x.app.ctx, args[0])
	x.app.metrics.ObserveClassification(t.Kind())

	resp := struct {
		*lifecycle.TargetView

		Input string   `json:"input"`
		Rails []string `json:"rails,omitempty"`
		Asset string   `json:"asset,omitempty"`
	}{
		TargetView: lifecycle.NewTargetView(t),
		Input:      t.Input(),
		Asset:      target.ImpliedAsset(t).UnwrapOr(""),
	}
	for _, r := range x.app.classifier.Rails(t) {
		resp.Rails = append(resp.Rails, r.String())
	}

	return printJSON(resp)
}

// formOptions fill a payment form.
//
//nolint:lll
type formOptions struct {
	Asset string `long:"asset" description:"Asset to pay in, ticker or id, for targets that do not name one"`
	Rail  string `long:"rail" description:"Rail to settle on" choice:"onchain" choice:"lightning" choice:"asset_lightning" choice:"asset_onchain" choice:"l2"`
}

// fill sets the input, asset and rail of the controller's form.
func (f *formOptions) fill(ctx context.Context, a *app,
	ctrl *lifecycle.Controller, input string) error {

	if err := ctrl.SetInput(ctx, input); err != nil {
		return err
	}
	if ctrl.State() == lifecycle.StateInvalid {
		return nil
	}

	if f.Asset != "" {
		as, err := a.resolveAsset(ctx, f.Asset)
		if err != nil {
			return err
		}
		if err := ctrl.SetAsset(ctx, as.ID); err != nil {
			return err
		}
	}

	if f.Rail != "" {
		rail, err := parseRail(f.Rail)
		if err != nil {
			return err
		}
		if err := ctrl.SelectRail(ctx, rail); err != nil {
			return err
		}
	}

	return nil
}

type boundsCommand struct {
	app *app

	formOptions
}

func newBoundsCommand(a *app) *boundsCommand {
	return &boundsCommand{app: a}
}

func (x *boundsCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"bounds",
		"Show the amount range a payment string allows",
		"Classify the payment string, fetch the node balances and "+
			"print the minimum and maximum amount of the selected "+
			"rail",
		x,
	)
	return err
}

func (x *boundsCommand) Execute(args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one payment string is required")
	}

	ctrl, err := x.app.newController()
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Stop() }()

	if err := x.fill(x.app.ctx, x.app, ctrl, args[0]); err != nil {
		return err
	}

	return printJSON(ctrl.Snapshot())
}

//nolint:lll
type quoteCommand struct {
	app *app

	formOptions

	Amount  string `long:"amount" description:"Amount in display units of the asset"`
	Speed   string `long:"speed" description:"On-chain confirmation speed" choice:"slow" choice:"medium" choice:"fast"`
	FeeRate string `long:"feerate" description:"Custom on-chain fee rate in sat/vB"`
	Compare bool   `long:"compare" description:"Quote every rail and recommend the cheapest"`
}

func newQuoteCommand(a *app) *quoteCommand {
	return &quoteCommand{app: a, Speed: node.SpeedMedium.String()}
}

func (x *quoteCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"quote",
		"Estimate the fee of a payment",
		"Fill the payment form and prepare it without submitting; "+
			"with --compare every rail of the target is quoted",
		x,
	)
	return err
}

// prepare fills the form, sets the amount and prepares the attempt.
func (x *quoteCommand) prepare(ctrl *lifecycle.Controller,
	input string) error {

	ctx := x.app.ctx
	if err := x.fill(ctx, x.app, ctrl, input); err != nil {
		return err
	}

	switch ctrl.State() {
	case lifecycle.StateInvalid, lifecycle.StateInfeasible:
		return snapshotError(ctrl.Snapshot())
	}

	if x.Amount != "" {
		if err := ctrl.SetAmount(ctx, x.Amount); err != nil {
			return err
		}
	}

	speed, err := parseSpeed(x.Speed)
	if err != nil {
		return err
	}
	opts := lifecycle.PrepareOptions{
		Speed:         speed,
		CustomFeeRate: fn.None[string](),
	}
	if x.FeeRate != "" {
		opts.CustomFeeRate = fn.Some(x.FeeRate)
	}

	return ctrl.Prepare(ctx, opts)
}

func (x *quoteCommand) Execute(args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one payment string is required")
	}

	ctrl, err := x.app.newController()
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Stop() }()

	if !x.Compare {
		if err := x.prepare(ctrl, args[0]); err != nil {
			return err
		}

		return printJSON(ctrl.Snapshot())
	}

	ctx := x.app.ctx
	if err := x.fill(ctx, x.app, ctrl, args[0]); err != nil {
		return err
	}
	if x.Amount != "" {
		if err := ctrl.SetAmount(ctx, x.Amount); err != nil {
			return err
		}
	}
	speed, err := parseSpeed(x.Speed)
	if err != nil {
		return err
	}

	if _, err := ctrl.CompareRails(ctx, speed); err != nil {
		return err
	}

	return printJSON(ctrl.Snapshot().Comparison)
}

type payCommand struct {
	quoteCommand

	Yes bool `long:"yes" description:"Do not ask for confirmation"`
}

func newPayCommand(a *app) *payCommand {
	return &payCommand{quoteCommand: *newQuoteCommand(a)}
}

func (x *payCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"pay",
		"Pay a payment string",
		"Fill the payment form, prepare it, ask for confirmation and "+
			"submit it; Lightning payments are followed until they "+
			"settle, fail or expire",
		x,
	)
	return err
}

func (x *payCommand) Execute(args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one payment string is required")
	}
	if x.Compare {
		return errors.New("--compare only applies to quote")
	}

	ctrl, err := x.app.newController()
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Stop() }()

	if err := x.prepare(ctrl, args[0]); err != nil {
		return err
	}

	snap := ctrl.Snapshot()
	if !x.Yes && !confirm(snap) {
		if err := ctrl.Cancel(); err != nil {
			return err
		}

		return printJSON(ctrl.Snapshot())
	}

	return follow(x.app.ctx, ctrl, func() error {
		return ctrl.Confirm(x.app.ctx)
	})
}

//nolint:lll
type resumeCommand struct {
	app *app

	Rail string `long:"rail" description:"Rail the payment was sent on" choice:"lightning" choice:"asset_lightning"`
}

func newResumeCommand(a *app) *resumeCommand {
	return &resumeCommand{
		app:  a,
		Rail: target.RailLightning.String(),
	}
}

func (x *resumeCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"resume",
		"Follow a payment submitted earlier",
		"Poll the status of a payment by its node id, the payment "+
			"hash for Lightning payments, until it ends",
		x,
	)
	return err
}

func (x *resumeCommand) Execute(args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one payment id is required")
	}

	rail, err := parseRail(x.Rail)
	if err != nil {
		return err
	}

	ctrl, err := x.app.newController()
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Stop() }()

	return follow(x.app.ctx, ctrl, func() error {
		return ctrl.Resume(x.app.ctx, args[0], rail)
	})
}

type paymentsCommand struct {
	app *app
}

func newPaymentsCommand(a *app) *paymentsCommand {
	return &paymentsCommand{app: a}
}

func (x *paymentsCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"payments", "List the payments known to the node", "", x,
	)
	return err
}

func (x *paymentsCommand) Execute(_ []string) error {
	payments, err := x.app.node.ListPayments(x.app.ctx)
	if err != nil {
		return err
	}

	return printJSON(payments)
}

type assetsCommand struct {
	app *app
}

func newAssetsCommand(a *app) *assetsCommand {
	return &assetsCommand{app: a}
}

func (x *assetsCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"assets", "List the assets the wallet can pay in", "", x,
	)
	return err
}

func (x *assetsCommand) Execute(_ []string) error {
	all, err := x.app.assets.All(x.app.ctx)
	if err != nil {
		return err
	}

	return printJSON(all)
}

// follow runs start and prints every snapshot until the payment ends.
func follow(ctx context.Context, ctrl *lifecycle.Controller,
	start func() error) error {

	sub, err := ctrl.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Cancel()

	if err := start(); err != nil {
		return err
	}

	var last uint64
	for {
		snap := ctrl.Snapshot()
		if snap.Version != last {
			last = snap.Version
			log.Infof("Payment state %v", snap.State)
		}
		if ctrl.State().Terminal() {
			return printJSON(snap)
		}

		select {
		case <-sub.Updates():
		case <-sub.Quit():
			return errors.New("payment controller shut down")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// confirm asks on stdin whether the prepared payment should be sent.
func confirm(snap lifecycle.Snapshot) bool {
	fee := "unknown"
	if snap.FeeSats != nil {
		fee = fmt.Sprintf("%d sat", *snap.FeeSats)
	}

	fmt.Printf("Send %s %s via %s, fee %s? (yes/no): ",
		snap.AmountDisplay, snap.Ticker, snap.Rail, fee)

	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))

	return slices.Contains([]string{"y", "yes"}, answer)
}

// snapshotError turns the error shown on a snapshot into an error value.
func snapshotError(snap lifecycle.Snapshot) error {
	if snap.Error == "" {
		return fmt.Errorf("payment form is %s", snap.State)
	}

	return fmt.Errorf("%s: %s", snap.State, snap.Error)
}
