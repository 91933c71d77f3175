package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateItem        OutboxAggregateType = "item"
	AggregateComponent   OutboxAggregateType = "component"
	AggregateClientQuote OutboxAggregateType = "client_quote"
	AggregateOrder       OutboxAggregateType = "order"
)

var aggregateTypes = set[OutboxAggregateType]{
	AggregateItem,
	AggregateComponent,
	AggregateClientQuote,
	AggregateOrder,
}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType maps to the event_type column of outbox_events and the event_type
// attribute of published messages.
type OutboxEventType string

const (
	EventQuoteAccepted      OutboxEventType = "quote_accepted"
	EventPaymentReceived    OutboxEventType = "payment_received"
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
)

var outboxEventTypes = set[OutboxEventType]{
	EventQuoteAccepted,
	EventPaymentReceived,
	EventOrderCreated,
	EventOrderStatusChanged,
}

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse("event type", value)
}

// OutboxDLQErrorReason records why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
