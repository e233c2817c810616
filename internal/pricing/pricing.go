/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package pricing resolves quantity tiers to unit prices.
package pricing

import (
	"fmt"
	"strings"

	"bagstudio/internal/domain"

	"github.com/shopspring/decimal"
)

// ResolvePrice returns the price of the matching tier with the greatest
// MinQuantity, or basePrice when none matches. ContactForQuote tiers are
// matched like any other; use Resolve to tell them apart.
func ResolvePrice(quantity int, tiers []domain.PricingTier, basePrice decimal.Decimal) decimal.Decimal {
	if t, ok := matchTier(quantity, tiers); ok {
		return t.Price
	}
	return basePrice
}

func matchTier(quantity int, tiers []domain.PricingTier) (domain.PricingTier, bool) {
	var best domain.PricingTier
	found := false
	for _, t := range tiers {
		if !t.Matches(quantity) {
			continue
		}
		if !found || t.MinQuantity > best.MinQuantity {
			best, found = t, true
		}
	}
	return best, found
}

// Quote is the outcome of pricing a quantity.
type Quote struct {
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
	Currency  string
	// Tier is nil when the base price applied.
	Tier *domain.PricingTier
	// ContactForQuote means the quantity falls into a bucket that must be
	// priced by sales; UnitPrice and Total are zero.
	ContactForQuote bool
}

// String formats the quote for display.
func (q Quote) String() string {
	if q.ContactForQuote {
		return fmt.Sprintf("%d units: contact us for a quote", q.Quantity)
	}
	return fmt.Sprintf("%d x %s = %s", q.Quantity, Format(q.UnitPrice, q.Currency), Format(q.Total, q.Currency))
}

// Resolve prices quantity for product.
func Resolve(quantity int, p domain.Product) Quote {
	q := Quote{Quantity: quantity, Currency: p.Currency}
	t, ok := matchTier(quantity, p.PricingTiers)
	if ok && t.ContactForQuote {
		q.Tier = &t
		q.ContactForQuote = true
		return q
	}
	q.UnitPrice = p.BasePrice
	if ok {
		q.Tier = &t
		q.UnitPrice = t.Price
	}
	q.Total = q.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return q
}

// ValidateQuantity rejects quantities below the minimum order and any
// change while the product is out of stock.
func ValidateQuantity(quantity, minimumOrder int, inStock bool) error {
	if !inStock {
		return &domain.ValidationError{Field: "quantity", Reason: "this product is out of stock"}
	}
	if quantity < 1 {
		return &domain.ValidationError{Field: "quantity", Reason: "quantity must be at least 1"}
	}
	if quantity < minimumOrder {
		return &domain.ValidationError{Field: "quantity", Reason: fmt.Sprintf("minimum order is %d units", minimumOrder)}
	}
	return nil
}

// Format renders amount with two decimals and a currency prefix.
func Format(amount decimal.Decimal, currency string) string {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	switch cur {
	case "", "USD":
		return "$" + amount.StringFixed(2)
	case "EUR":
		return "€" + amount.StringFixed(2)
	default:
		return amount.StringFixed(2) + " " + cur
	}
}
