package units

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
)

// mSatScale is the number of millisatoshis in a satoshi.
const mSatScale uint64 = 1000

// MilliSatoshi is the unit Lightning invoices, HTLC limits and LNURL-pay
// ranges are expressed in. Amounts inside the engine are whole satoshis,
// millisatoshis only appear at the node and LNURL boundary.
type MilliSatoshi uint64

// NewMSatFromSatoshis converts whole satoshis.
func NewMSatFromSatoshis(sat btcutil.Amount) MilliSatoshi {
	return MilliSatoshi(uint64(sat) * mSatScale)
}

// Sats returns the whole satoshis in m. The sub-satoshi part is dropped.
func (m MilliSatoshi) Sats() int64 {
	return int64(uint64(m) / mSatScale)
}

// String renders m in satoshis with three fractional digits, as the MSAT
// display unit does.
func (m MilliSatoshi) String() string {
	if uint64(m) > math.MaxInt64 {
		return fmt.Sprintf("%d msat", uint64(m))
	}

	return ToDisplay(int64(m), BitcoinPrecision(UnitMSat)) + " sat"
}
