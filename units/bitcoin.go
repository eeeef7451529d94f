package units

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/kaleidoswap/desktop-app-sub002/payerr"
)

// BitcoinUnit is the unit the user chose to display bitcoin amounts in.
type BitcoinUnit string

const (
	// UnitSat displays whole satoshis.
	UnitSat BitcoinUnit = "SAT"

	// UnitMSat displays satoshis with three fractional digits, one per
	// milli-satoshi.
	UnitMSat BitcoinUnit = "MSAT"

	// UnitBTC displays bitcoin with eight fractional digits.
	UnitBTC BitcoinUnit = "BTC"
)

// ParseBitcoinUnit parses a unit name case-insensitively.
func ParseBitcoinUnit(s string) (BitcoinUnit, error) {
	switch BitcoinUnit(strings.ToUpper(strings.TrimSpace(s))) {
	case UnitSat:
		return UnitSat, nil
	case UnitMSat:
		return UnitMSat, nil
	case UnitBTC:
		return UnitBTC, nil
	default:
		return "", fmt.Errorf("unknown bitcoin unit %q", s)
	}
}

// BitcoinPrecision returns the number of fractional display digits for a
// bitcoin unit. Unknown units fall back to BTC precision.
func BitcoinPrecision(unit BitcoinUnit) uint8 {
	switch BitcoinUnit(strings.ToUpper(string(unit))) {
	case UnitSat:
		return 0
	case UnitMSat:
		return 3
	case UnitBTC:
		return 8
	default:
		return 8
	}
}

// baseUnitsPerSat is the number of display base units that make up a
// satoshi. Only the MSAT unit counts in something smaller than a satoshi.
func baseUnitsPerSat(unit BitcoinUnit) int64 {
	if BitcoinPrecision(unit) == 3 {
		return int64(mSatScale)
	}

	return 1
}

// SatsToDisplay formats a satoshi amount in the given bitcoin unit.
func SatsToDisplay(sats btcutil.Amount, unit BitcoinUnit) string {
	base := int64(sats) * baseUnitsPerSat(unit)
	return ToDisplay(base, BitcoinPrecision(unit))
}

// DisplayToSats parses a display string in the given bitcoin unit into
// satoshis. Amounts that are not a whole number of satoshis or above the
// bitcoin supply are rejected.
func DisplayToSats(text string, unit BitcoinUnit) (btcutil.Amount, error) {
	perSat := baseUnitsPerSat(unit)
	base, err := FromDisplayMax(
		text, BitcoinPrecision(unit), int64(btcutil.MaxSatoshi)*perSat,
	)
	if err != nil {
		return 0, err
	}

	if base%perSat != 0 {
		return 0, payerr.New(
			payerr.ParseFailure, "%q is not a whole number of "+
				"satoshis", text,
		)
	}

	return btcutil.Amount(base / perSat), nil
}
