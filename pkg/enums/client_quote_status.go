package enums

// ClientQuoteStatus is the budget/invoice stage of a client quote.
type ClientQuoteStatus string

const (
	ClientQuoteStatusDraft    ClientQuoteStatus = "DRAFT"
	ClientQuoteStatusSent     ClientQuoteStatus = "SENT"
	ClientQuoteStatusApproved ClientQuoteStatus = "APPROVED"
	ClientQuoteStatusInvoiced ClientQuoteStatus = "INVOICED"
)

var clientQuoteStatusOrder = set[ClientQuoteStatus]{
	ClientQuoteStatusDraft,
	ClientQuoteStatusSent,
	ClientQuoteStatusApproved,
	ClientQuoteStatusInvoiced,
}

func (c ClientQuoteStatus) String() string { return string(c) }

// Rank returns the stage position, or -1 when unknown.
func (c ClientQuoteStatus) Rank() int { return clientQuoteStatusOrder.index(c) }

func (c ClientQuoteStatus) IsValid() bool { return clientQuoteStatusOrder.has(c) }

func ParseClientQuoteStatus(value string) (ClientQuoteStatus, error) {
	return clientQuoteStatusOrder.parse("client quote status", value)
}
