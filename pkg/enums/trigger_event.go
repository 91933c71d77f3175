package enums

import "slices"

// TriggerEvent names a workflow event that may move an item forward.
type TriggerEvent string

const (
	TriggerRFQSent          TriggerEvent = "rfq_sent"
	TriggerQuoteReceived    TriggerEvent = "quote_received"
	TriggerQuoteAccepted    TriggerEvent = "quote_accepted"
	TriggerBudgetSent       TriggerEvent = "budget_sent"
	TriggerBudgetApproved   TriggerEvent = "budget_approved"
	TriggerInvoiceSent      TriggerEvent = "invoice_sent"
	TriggerPaymentReceived  TriggerEvent = "payment_received"
	TriggerPaymentCompleted TriggerEvent = "payment_completed"
	TriggerOrderPlaced      TriggerEvent = "order_placed"
	TriggerOrderShipped     TriggerEvent = "order_shipped"
	TriggerOrderReceived    TriggerEvent = "order_received"
	TriggerItemInstalled    TriggerEvent = "item_installed"
	TriggerItemClosed       TriggerEvent = "item_closed"
)

var triggerEvents = set[TriggerEvent]{
	TriggerRFQSent,
	TriggerQuoteReceived,
	TriggerQuoteAccepted,
	TriggerBudgetSent,
	TriggerBudgetApproved,
	TriggerInvoiceSent,
	TriggerPaymentReceived,
	TriggerPaymentCompleted,
	TriggerOrderPlaced,
	TriggerOrderShipped,
	TriggerOrderReceived,
	TriggerItemInstalled,
	TriggerItemClosed,
}

// TriggerEvents returns every known trigger.
func TriggerEvents() []TriggerEvent {
	return slices.Clone(triggerEvents)
}

func (t TriggerEvent) String() string { return string(t) }

func (t TriggerEvent) IsValid() bool { return triggerEvents.has(t) }

func ParseTriggerEvent(value string) (TriggerEvent, error) {
	return triggerEvents.parse("trigger event", value)
}
