// Package pricing computes cart totals with the tiered discount rule.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places totals are expressed with
// (a 3-decimal currency minor unit such as the millime).
const Scale = 3

var (
	DefaultThreshold = decimal.NewFromInt(100)
	DefaultRate      = decimal.RequireFromString("0.25")
)

// Line is the pricing view of a cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Quote is the result of pricing a cart.
type Quote struct {
	// Subtotal is the sum of unit price × quantity, before discount.
	Subtotal decimal.Decimal

	// Total is what the customer pays.
	Total decimal.Decimal

	// DiscountApplied is true when Subtotal exceeded the threshold.
	DiscountApplied bool
}

// Policy is the discount rule: when the subtotal is strictly greater than
// Threshold, the total is reduced by Rate.
type Policy struct {
	Threshold decimal.Decimal
	Rate      decimal.Decimal
}

// DefaultPolicy returns 25% off above 100.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, Rate: DefaultRate}
}

// NewPolicy validates and builds a policy.
func NewPolicy(threshold, rate decimal.Decimal) (Policy, error) {
	if threshold.IsNegative() {
		return Policy{}, fmt.Errorf("discount threshold must not be negative, got %s", threshold)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Policy{}, fmt.Errorf("discount rate must be in [0, 1), got %s", rate)
	}
	return Policy{Threshold: threshold, Rate: rate}, nil
}

// Multiplier is the factor applied to discounted subtotals (0.75 for 25%).
func (p Policy) Multiplier() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(p.Rate)
}

// Price computes the quote for the given lines. An empty slice prices to
// zero with no discount.
func (p Policy) Price(lines []Line) Quote {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	subtotal = subtotal.Round(Scale)

	q := Quote{Subtotal: subtotal, Total: subtotal}
	if subtotal.GreaterThan(p.Threshold) {
		q.Total = subtotal.Mul(p.Multiplier()).Round(Scale)
		q.DiscountApplied = true
	}
	return q
}

// Label is the customer-facing description of the rule. It is derived from
// the policy so the text always matches what Price computes.
func (p Policy) Label() string {
	percent := p.Rate.Mul(decimal.NewFromInt(100))
	return fmt.Sprintf("%s%% off when the total exceeds %s", percent.String(), p.Threshold.StringFixed(Scale))
}

// Fixed renders an amount with exactly Scale decimals.
func Fixed(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
