package rln

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kaleidoswap/desktop-app-sub002/units"
)

// tagPayRequest is the tag of an LNURL-pay response.
const tagPayRequest = "payRequest"

// payResponse is the first LNURL-pay step, returned by the well-known
// endpoint of a Lightning address.
type payResponse struct {
	// Callback accepts the amount and returns the invoice.
	Callback string `json:"callback"`

	// MaxSendable and MinSendable bound the amount in msat.
	MaxSendable uint64 `json:"maxSendable"`
	MinSendable uint64 `json:"minSendable"`

	// Metadata is kept as sent.
	Metadata string `json:"metadata"`

	// Tag must be payRequest.
	Tag string `json:"tag"`
}

// invoiceResponse is the callback's answer.
type invoiceResponse struct {
	// PR is the bech32 Lightning invoice.
	PR string `json:"pr"`

	Routes []json.RawMessage `json:"routes"`
}

// lnurlStatus is the error object of an LNURL service.
type lnurlStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func wellKnownLNURL(user, domain string) string {
	return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", domain,
		url.PathEscape(user))
}

// resolveLightningAddress fetches an invoice for amt from the LNURL-pay
// service behind a Lightning address.
func (c *Client) resolveLightningAddress(ctx context.Context, address string,
	amt units.MilliSatoshi) (string, error) {

	user, domain, ok := strings.Cut(strings.ToLower(address), "@")
	if !ok || user == "" || domain == "" {
		return "", fmt.Errorf("malformed lightning address %q", address)
	}

	var pay payResponse
	err := c.getLNURL(ctx, c.cfg.LightningAddressURL(user, domain), &pay)
	if err != nil {
		return "", err
	}
	if pay.Tag != tagPayRequest {
		return "", fmt.Errorf("%s does not accept payments: tag %q",
			address, pay.Tag)
	}
	if uint64(amt) < pay.MinSendable || uint64(amt) > pay.MaxSendable {
		return "", fmt.Errorf("%s accepts between %v and %v, not %v",
			address, units.MilliSatoshi(pay.MinSendable),
			units.MilliSatoshi(pay.MaxSendable), amt)
	}

	callback, err := url.Parse(pay.Callback)
	if err != nil {
		return "", fmt.Errorf("invalid callback of %s: %w", address, err)
	}
	query := callback.Query()
	query.Set("amount", strconv.FormatUint(uint64(amt), 10))
	callback.RawQuery = query.Encode()

	var inv invoiceResponse
	if err := c.getLNURL(ctx, callback.String(), &inv); err != nil {
		return "", err
	}
	if inv.PR == "" {
		return "", fmt.Errorf("%s returned no invoice", address)
	}

	log.Debugf("Resolved %s to invoice for %v", address, amt)

	return inv.PR, nil
}

// checkResolvedInvoice decodes the invoice an LNURL-pay service returned and
// makes sure it requests exactly amt in bitcoin.
func (c *Client) checkResolvedInvoice(ctx context.Context, address,
	invoice string, amt units.MilliSatoshi) error {

	info, err := c.DecodeLightningInvoice(ctx, invoice)
	if err != nil {
		return fmt.Errorf("unable to decode invoice of %s: %w", address,
			err)
	}
	if info.AssetID.IsSome() {
		return fmt.Errorf("%s returned an asset invoice", address)
	}

	got, err := info.AmountMsat.UnwrapOrErr(
		fmt.Errorf("%s returned an invoice without amount", address),
	)
	if err != nil {
		return err
	}
	if got != amt {
		return fmt.Errorf("%s returned an invoice for %v instead of %v",
			address, got, amt)
	}

	return nil
}

// getLNURL fetches an LNURL document. Services report errors in a status
// object, possibly with a 200 status code.
func (c *Client) getLNURL(ctx context.Context, target string,
	out any) error {

	resp, err := c.doRequest(ctx, http.MethodGet, target, nil, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read lnurl response: %w", err)
	}

	var status lnurlStatus
	if err := json.Unmarshal(raw, &status); err == nil &&
		strings.EqualFold(status.Status, "ERROR") {

		return &Error{
			StatusCode: resp.StatusCode,
			Message:    status.Reason,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unable to decode lnurl response: %w", err)
	}

	return nil
}
