package payerr

import "strings"

// Suggestion is an actionable hint derived from an external failure message.
// The engine never acts on a suggestion itself.
type Suggestion uint8

const (
	// SuggestNone means the failure matched no known pattern.
	SuggestNone Suggestion = iota

	// SuggestAlternateRail recommends settling through another rail, for
	// example the Layer-2 wallet when the Lightning peer is unreachable.
	SuggestAlternateRail

	// SuggestForceClose recommends a unilateral channel close because the
	// peer cannot cooperate.
	SuggestForceClose

	// SuggestCreateUTXOs recommends creating uncolored UTXOs before
	// retrying an asset operation.
	SuggestCreateUTXOs

	// SuggestRefreshFees recommends re-fetching fee estimates and
	// preparing again.
	SuggestRefreshFees

	// SuggestReenterTarget recommends asking the recipient for a new
	// invoice.
	SuggestReenterTarget
)

// String returns a short identifier for the suggestion.
func (s Suggestion) String() string {
	switch s {
	case SuggestNone:
		return "none"
	case SuggestAlternateRail:
		return "alternate_rail"
	case SuggestForceClose:
		return "force_close"
	case SuggestCreateUTXOs:
		return "create_utxos"
	case SuggestRefreshFees:
		return "refresh_fees"
	case SuggestReenterTarget:
		return "reenter_target"
	default:
		return "unknown"
	}
}

// failurePattern maps a lower-cased substring to a suggestion.
type failurePattern struct {
	substr     string
	suggestion Suggestion
}

// failurePatterns is checked in order; the first match wins. Force-close
// patterns come first since "peer is disconnected" during a close is more
// specific than the generic offline peer case.
var failurePatterns = []failurePattern{
	{"force-close instead", SuggestForceClose},
	{"waiting on a monitor update", SuggestForceClose},
	{"cannot begin shutdown", SuggestForceClose},

	{"not enough uncolored", SuggestCreateUTXOs},
	{"insufficient utxos", SuggestCreateUTXOs},
	{"no uncolored utxos", SuggestCreateUTXOs},
	{"insufficient allocations", SuggestCreateUTXOs},

	{"peer is disconnected", SuggestAlternateRail},
	{"peer offline", SuggestAlternateRail},
	{"peer is offline", SuggestAlternateRail},
	{"no route", SuggestAlternateRail},
	{"failed to find route", SuggestAlternateRail},
	{"insufficient capacity", SuggestAlternateRail},
	{"channel unavailable", SuggestAlternateRail},
	{"channel is stuck", SuggestAlternateRail},
	{"no usable channels", SuggestAlternateRail},

	{"min relay fee not met", SuggestRefreshFees},
	{"fee rate too low", SuggestRefreshFees},
	{"insufficient fee", SuggestRefreshFees},
	{"mempool min fee not met", SuggestRefreshFees},

	{"invoice expired", SuggestReenterTarget},
	{"invoice is expired", SuggestReenterTarget},
	{"already paid", SuggestReenterTarget},
	{"duplicate payment", SuggestReenterTarget},
}

// ClassifyFailure maps a raw external failure message onto a suggestion.
// Matching is case-insensitive and substring based.
func ClassifyFailure(msg string) Suggestion {
	if msg == "" {
		return SuggestNone
	}

	lower := strings.ToLower(msg)
	for _, p := range failurePatterns {
		if strings.Contains(lower, p.substr) {
			return p.suggestion
		}
	}

	return SuggestNone
}
