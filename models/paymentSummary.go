package models

import "github.com/shopspring/decimal"

// SummaryOptions controls what the backend includes in a vendor summary.
// IncludeUnverified only affects what is shown and bulk-selectable; the
// backend always excludes unverified items from payable aggregates.
type SummaryOptions struct {
	IncludeUnverified bool
}

// PaymentSummary is the aggregate over a (payee, period). TotalAmount is
// server-guaranteed to equal the sum of AmountDue over Items; the client
// recomputes sums only for display subtotaling of filtered subsets.
type PaymentSummary struct {
	Period      SettlementPeriod `json:"period"`
	TotalItems  int              `json:"total_items"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	Items       []LineItem       `json:"items"`
}

// UnsettledItemIds returns the ids of items still awaiting settlement,
// optionally restricted to verified items. This is the target set for bulk
// prepare and bulk mark-settled.
func (s *PaymentSummary) UnsettledItemIds(includeUnverified bool) []int {
	var ids []int
	for _, item := range s.Items {
		if item.IsSettled {
			continue
		}
		if !includeUnverified && !item.IsVerified {
			continue
		}
		ids = append(ids, item.ID)
	}
	return ids
}

// UnsettledAmount is the display subtotal over the same filtered subset.
func (s *PaymentSummary) UnsettledAmount(includeUnverified bool) decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		if item.IsSettled {
			continue
		}
		if !includeUnverified && !item.IsVerified {
			continue
		}
		total = total.Add(item.AmountDue)
	}
	return total
}

// ItemById returns the line item with the given id, or nil.
func (s *PaymentSummary) ItemById(id int) *LineItem {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return &s.Items[i]
		}
	}
	return nil
}
