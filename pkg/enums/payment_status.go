package enums

// PaymentStatus summarises how much of an item's client price has been collected.
type PaymentStatus string

const (
	PaymentStatusNotInvoiced PaymentStatus = "NOT_INVOICED"
	PaymentStatusInvoiced    PaymentStatus = "INVOICED"
	PaymentStatusDepositPaid PaymentStatus = "DEPOSIT_PAID"
	PaymentStatusFullyPaid   PaymentStatus = "FULLY_PAID"
)

var paymentStatuses = set[PaymentStatus]{
	PaymentStatusNotInvoiced,
	PaymentStatusInvoiced,
	PaymentStatusDepositPaid,
	PaymentStatusFullyPaid,
}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }

// HasPayment reports whether any money has been applied.
func (p PaymentStatus) HasPayment() bool {
	return p == PaymentStatusDepositPaid || p == PaymentStatusFullyPaid
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return paymentStatuses.parse("payment status", value)
}
