package payerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestClassifyFailure covers every suggestion the classifier can produce.
func TestClassifyFailure(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		msg      string
		expected Suggestion
	}{
		{"", SuggestNone},
		{"something odd happened", SuggestNone},
		{"Peer is disconnected, maybe force-close instead", SuggestForceClose},
		{"Cannot begin shutdown while peer is disconnected", SuggestForceClose},
		{"Channel waiting on a monitor update", SuggestForceClose},
		{"Not enough uncolored UTXOs are available", SuggestCreateUTXOs},
		{"Insufficient UTXOs", SuggestCreateUTXOs},
		{"Peer is disconnected", SuggestAlternateRail},
		{"Failed to find route to destination", SuggestAlternateRail},
		{"Payment failed: no route", SuggestAlternateRail},
		{"Insufficient capacity in channel", SuggestAlternateRail},
		{"min relay fee not met, 110 < 141", SuggestRefreshFees},
		{"Invoice expired", SuggestReenterTarget},
		{"invoice already paid", SuggestReenterTarget},
	}

	for _, tc := range testCases {
		require.Equal(
			t, tc.expected, ClassifyFailure(tc.msg),
			"message: %q", tc.msg,
		)
	}
}

// TestErrorMatching checks kind based matching through wrapping.
func TestErrorMatching(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("amount: %w", New(OutOfRange, "above max %d", 10))
	require.ErrorIs(t, err, ErrOutOfRange)
	require.NotErrorIs(t, err, ErrInfeasibleBound)
	require.True(t, IsKind(err, InfeasibleBound, OutOfRange))
	require.False(t, IsKind(errors.New("plain"), OutOfRange))

	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, OutOfRange, kind)

	typing := NewStillTyping(".")
	require.ErrorIs(t, typing, ErrStillTyping)
	require.ErrorIs(t, typing, ErrParseFailure)
	require.True(t, typing.StillTyping())

	final := New(ParseFailure, "not a number")
	require.ErrorIs(t, final, ErrParseFailure)
	require.NotErrorIs(t, final, ErrStillTyping)
}

// TestExternalPreservesRaw makes sure the node message survives verbatim.
func TestExternalPreservesRaw(t *testing.T) {
	t.Parallel()

	raw := errors.New("Peer is disconnected")
	err := External(SubmitFailed, "lightning payment failed", raw)

	require.Equal(t, "Peer is disconnected", err.Raw)
	require.Equal(t, SuggestAlternateRail, err.Suggestion)
	require.Contains(t, err.Error(), "Peer is disconnected")
	require.True(t, err.Kind.UserFacing())
}

// TestGuardCapturesStack ensures programming guards carry a stack trace.
func TestGuardCapturesStack(t *testing.T) {
	t.Parallel()

	err := Guard(QuoteStale, "quote %d invalidated", 7)
	require.ErrorIs(t, err, ErrQuoteStale)
	require.NotEmpty(t, err.Stack())
	require.False(t, err.Kind.UserFacing())
}
