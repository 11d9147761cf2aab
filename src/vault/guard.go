// Package vault enforces the venue's vault ownership floor: the leading
// depositor must keep at least 5% of total vault shares after any withdrawal.
package vault

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FloorPercent is the minimum ownership the venue requires, in percent.
const FloorPercent = 5

var (
	hundred = decimal.NewFromInt(100)
	floor   = decimal.NewFromInt(FloorPercent)
	divisor = decimal.NewFromInt(100 - FloorPercent)
)

// MaxWithdrawableShares returns the largest number of the owner's own shares
// that can be withdrawn while (ownerShares-x)/(totalShares-x) >= 5% still
// holds. A withdrawal burns shares, so it reduces numerator and denominator
// by the same amount; solving the boundary gives (100*owner - 5*total)/95.
func MaxWithdrawableShares(ownerShares, totalShares decimal.Decimal) decimal.Decimal {
	if totalShares.Sign() <= 0 {
		return decimal.Zero
	}
	raw := ownerShares.Mul(hundred).Sub(totalShares.Mul(floor)).Div(divisor)
	if raw.Sign() < 0 {
		return decimal.Zero
	}
	if raw.GreaterThan(ownerShares) {
		return ownerShares
	}
	return raw
}

// CheckWithdrawal rejects a withdrawal that would take the owner below the
// floor. It must be called before the request is submitted to the ledger,
// never after.
func CheckWithdrawal(ownerShares, totalShares, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("vault: withdrawal amount must be positive")
	}
	max := MaxWithdrawableShares(ownerShares, totalShares)
	if amount.GreaterThan(max) {
		return fmt.Errorf("vault: withdrawing %s of %s shares would drop owner below the %d%% floor (max %s)",
			amount, totalShares, FloorPercent, max)
	}
	return nil
}
