package enums

import "fmt"

// ItemStatus is the procurement status of an item. The declaration order of
// itemStatusOrder is the rank order; statuses only ever move up it.
type ItemStatus string

const (
	ItemStatusNotRequested   ItemStatus = "NOT_REQUESTED"
	ItemStatusRFQSent        ItemStatus = "RFQ_SENT"
	ItemStatusQuoteReceived  ItemStatus = "QUOTE_RECEIVED"
	ItemStatusQuoteApproved  ItemStatus = "QUOTE_APPROVED"
	ItemStatusBudgetSent     ItemStatus = "BUDGET_SENT"
	ItemStatusBudgetApproved ItemStatus = "BUDGET_APPROVED"
	ItemStatusInvoiced       ItemStatus = "INVOICED"
	ItemStatusPartiallyPaid  ItemStatus = "PARTIALLY_PAID"
	ItemStatusFullyPaid      ItemStatus = "FULLY_PAID"
	ItemStatusOrdered        ItemStatus = "ORDERED"
	ItemStatusShipped        ItemStatus = "SHIPPED"
	ItemStatusReceived       ItemStatus = "RECEIVED"
	ItemStatusInstalled      ItemStatus = "INSTALLED"
	ItemStatusClosed         ItemStatus = "CLOSED"
)

var itemStatusOrder = []ItemStatus{
	ItemStatusNotRequested,
	ItemStatusRFQSent,
	ItemStatusQuoteReceived,
	ItemStatusQuoteApproved,
	ItemStatusBudgetSent,
	ItemStatusBudgetApproved,
	ItemStatusInvoiced,
	ItemStatusPartiallyPaid,
	ItemStatusFullyPaid,
	ItemStatusOrdered,
	ItemStatusShipped,
	ItemStatusReceived,
	ItemStatusInstalled,
	ItemStatusClosed,
}

var itemStatusRanks = func() map[ItemStatus]int {
	ranks := make(map[ItemStatus]int, len(itemStatusOrder))
	for i, status := range itemStatusOrder {
		ranks[status] = i
	}
	return ranks
}()

// ItemStatuses returns the statuses in rank order.
func ItemStatuses() []ItemStatus {
	out := make([]ItemStatus, len(itemStatusOrder))
	copy(out, itemStatusOrder)
	return out
}

// String implements fmt.Stringer.
func (s ItemStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ItemStatus.
func (s ItemStatus) IsValid() bool {
	_, ok := itemStatusRanks[s]
	return ok
}

// Rank returns the position of the status in the procurement order, or -1 when unknown.
func (s ItemStatus) Rank() int {
	if rank, ok := itemStatusRanks[s]; ok {
		return rank
	}
	return -1
}

// Before reports whether s ranks strictly lower than other.
func (s ItemStatus) Before(other ItemStatus) bool {
	return s.Rank() < other.Rank()
}

// ParseItemStatus converts raw input into an ItemStatus.
func ParseItemStatus(value string) (ItemStatus, error) {
	status := ItemStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid item status %q", value)
	}
	return status, nil
}
