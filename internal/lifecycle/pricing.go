package lifecycle

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// money rounds to the two decimal places every stored amount carries.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func newLineItem(description string, qty int, unit decimal.Decimal) LineItem {
	unit = money(unit)
	return LineItem{
		Description: description,
		Quantity:    qty,
		UnitPrice:   unit,
		Total:       money(unit.Mul(decimal.NewFromInt(int64(qty)))),
	}
}

// InvoiceAmount is sum(line totals) - discount + tax, never below zero.
func InvoiceAmount(items []LineItem, discount, tax decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Total)
	}
	amount := money(sum.Sub(discount).Add(tax))
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// QuoteLineItems builds the invoice lines for an accepted quote. Only the
// base line carries a price; the rest describe optional charges that are
// billed separately when used.
func QuoteLineItems(q *Quote) []LineItem {
	price := decimal.Zero
	if q.QuotedPrice.Valid {
		price = q.QuotedPrice.Decimal
	}

	switch q.ServiceType {
	case ServiceJunkRemoval:
		items := []LineItem{newLineItem(fmt.Sprintf("Junk Removal (Quote #%d)", q.ID), 1, price)}
		if q.Details.Junk != nil {
			for _, it := range q.Details.Junk.Items {
				qty := it.Quantity
				if qty < 1 {
					qty = 1
				}
				items = append(items, newLineItem("Item: "+it.Name, qty, decimal.Zero))
			}
		}
		return items

	default:
		items := []LineItem{newLineItem(fmt.Sprintf("Equipment Rental (Quote #%d)", q.ID), 1, price)}
		if q.DailyRate.IsPositive() {
			items = append(items, newLineItem(
				fmt.Sprintf("Daily rate for additional days: %s/day", money(q.DailyRate).StringFixed(2)), 1, decimal.Zero))
		}
		if q.RelocationCharge.IsPositive() {
			items = append(items, newLineItem(
				fmt.Sprintf("Relocation charge if requested: %s", money(q.RelocationCharge).StringFixed(2)), 1, decimal.Zero))
		}
		if q.SwapCharge.IsPositive() {
			items = append(items, newLineItem(
				fmt.Sprintf("Swap charge if requested: %s", money(q.SwapCharge).StringFixed(2)), 1, decimal.Zero))
		}
		return items
	}
}

// editLineItems validates and prices admin-supplied lines.
func editLineItems(edit InvoiceEdit) ([]LineItem, error) {
	if len(edit.Items) == 0 || edit.Discount.IsNegative() || edit.Tax.IsNegative() {
		return nil, ErrInvalidInvoiceEdit
	}
	items := make([]LineItem, 0, len(edit.Items))
	for _, in := range edit.Items {
		if in.Description == "" || in.Quantity <= 0 || in.UnitPrice.IsNegative() {
			return nil, ErrInvalidInvoiceEdit
		}
		items = append(items, newLineItem(in.Description, in.Quantity, in.UnitPrice))
	}
	return items, nil
}
