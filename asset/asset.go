package asset

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/kaleidoswap/desktop-app-sub002/units"
)

// Kind is the semantic kind of an asset.
type Kind uint8

const (
	// KindBitcoin is native bitcoin, counted in satoshis.
	KindBitcoin Kind = iota

	// KindFungible is a fungible RGB asset counted in raw integer units.
	KindFungible
)

// String returns a human readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindBitcoin:
		return "bitcoin"
	case KindFungible:
		return "fungible"
	default:
		return "unknown"
	}
}

// BTCAssetID is the identifier used for native bitcoin throughout the
// engine.
const BTCAssetID = "BTC"

// Asset describes a payable asset. Values are immutable once fetched from the
// registry.
type Asset struct {
	// ID is the opaque asset identifier.
	ID string `json:"asset_id"`

	// Ticker is the short display name.
	Ticker string `json:"ticker"`

	// Name is the optional long name.
	Name string `json:"name,omitempty"`

	// Precision is the number of decimal digits of one display unit,
	// 0 to 18.
	Precision uint8 `json:"precision"`

	// Kind is the semantic kind of the asset.
	Kind Kind `json:"kind"`
}

// BTC is the pseudo-asset for native bitcoin. Its Precision is the base
// precision of a satoshi count; the display precision depends on the
// user's bitcoin unit.
var BTC = Asset{
	ID:        BTCAssetID,
	Ticker:    "BTC",
	Name:      "Bitcoin",
	Precision: 8,
	Kind:      KindBitcoin,
}

// IsBitcoin returns true for native bitcoin.
func (a Asset) IsBitcoin() bool {
	return a.Kind == KindBitcoin
}

// Validate checks the invariants of an asset record.
func (a Asset) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("asset id must be set")
	}
	if a.Precision > units.MaxPrecision {
		return fmt.Errorf("asset %v precision %d exceeds %d", a.ID,
			a.Precision, units.MaxPrecision)
	}
	if a.Kind != KindBitcoin && a.Kind != KindFungible {
		return fmt.Errorf("asset %v has unknown kind %d", a.ID, a.Kind)
	}

	return nil
}

// DisplayPrecision returns the number of fractional display digits for the
// asset. Bitcoin follows the user's chosen unit, other assets their declared
// precision.
func (a Asset) DisplayPrecision(unit units.BitcoinUnit) uint8 {
	if a.IsBitcoin() {
		return units.BitcoinPrecision(unit)
	}

	return a.Precision
}

// Format renders base units of the asset for display.
func (a Asset) Format(base int64, unit units.BitcoinUnit) string {
	if a.IsBitcoin() {
		return units.SatsToDisplay(btcutil.Amount(base), unit)
	}

	return units.ToDisplay(base, a.DisplayPrecision(unit))
}

// Parse converts a display string into base units of the asset. For bitcoin
// the result is always in satoshis.
func (a Asset) Parse(text string, unit units.BitcoinUnit) (int64, error) {
	if a.IsBitcoin() {
		sats, err := units.DisplayToSats(text, unit)
		return int64(sats), err
	}

	return units.FromDisplay(text, a.Precision)
}

// DisplayTicker is the label shown next to amounts of the asset.
func (a Asset) DisplayTicker(unit units.BitcoinUnit) string {
	if a.IsBitcoin() && unit != units.UnitBTC {
		return string(unit)
	}

	return a.Ticker
}
