package payments

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/money"
)

// Share is one line's weight in a proportional split. Key breaks residue ties.
type Share struct {
	Key    uuid.UUID
	Weight decimal.Decimal
}

// Split distributes amount across shares proportionally to their weights. Every part is
// rounded half away from zero to the currency's minor unit, then the rounding residue is
// settled on the largest part (lowest key on ties), spilling to the next largest when a
// part would go below zero. The parts always sum to amount. The result is index-aligned
// with shares.
func Split(amount decimal.Decimal, shares []Share, currency enums.Currency) ([]decimal.Decimal, error) {
	if !currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", currency)
	}
	if amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if !money.IsWholeMinorUnits(amount, currency) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount has more precision than the currency allows")
	}
	if len(shares) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one share required")
	}

	total := decimal.Zero
	for _, share := range shares {
		if share.Weight.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "share weight must not be negative").
				WithDetails(map[string]any{"key": share.Key})
		}
		total = total.Add(share.Weight)
	}
	if total.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total of share weights is zero")
	}

	parts := make([]decimal.Decimal, len(shares))
	allocated := decimal.Zero
	for i, share := range shares {
		parts[i] = money.Round(share.Weight.Mul(amount).DivRound(total, 16), currency)
		allocated = allocated.Add(parts[i])
	}

	settleResidue(parts, shares, amount.Sub(allocated))
	return parts, nil
}

// settleResidue adds a positive residue to the largest part (lowest key on ties). A
// negative residue is drained from parts in that same order, never taking a part below zero.
func settleResidue(parts []decimal.Decimal, shares []Share, residue decimal.Decimal) {
	if residue.IsZero() {
		return
	}
	order := make([]int, len(parts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if c := parts[i].Cmp(parts[j]); c != 0 {
			return c > 0
		}
		return shares[i].Key.String() < shares[j].Key.String()
	})

	if residue.IsPositive() {
		parts[order[0]] = parts[order[0]].Add(residue)
		return
	}
	owed := residue.Neg()
	for _, i := range order {
		if owed.IsZero() {
			return
		}
		take := decimal.Min(parts[i], owed)
		parts[i] = parts[i].Sub(take)
		owed = owed.Sub(take)
	}
}
