package enums

// ActivityEntityType identifies the record an activity entry describes.
type ActivityEntityType string

const (
	ActivityEntityItem        ActivityEntityType = "item"
	ActivityEntityComponent   ActivityEntityType = "component"
	ActivityEntityQuote       ActivityEntityType = "quote_line_item"
	ActivityEntityClientQuote ActivityEntityType = "client_quote"
	ActivityEntityPayment     ActivityEntityType = "payment"
	ActivityEntityOrder       ActivityEntityType = "order"
)

// ActivityAction names what happened.
type ActivityAction string

const (
	ActivityItemRegistered      ActivityAction = "item_registered"
	ActivityStatusAdvanced      ActivityAction = "status_advanced"
	ActivityQuoteIngested       ActivityAction = "quote_ingested"
	ActivityQuoteSuperseded     ActivityAction = "quote_superseded"
	ActivityQuoteAccepted       ActivityAction = "quote_accepted"
	ActivityClientQuoteCreated  ActivityAction = "client_quote_created"
	ActivityClientQuoteAdvanced ActivityAction = "client_quote_advanced"
	ActivityPaymentRecorded     ActivityAction = "payment_recorded"
	ActivityPaymentAllocated    ActivityAction = "payment_allocated"
	ActivityOrderCreated        ActivityAction = "order_created"
	ActivityOrderStatusChanged  ActivityAction = "order_status_changed"
)
