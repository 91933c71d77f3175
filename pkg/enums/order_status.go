package enums

// OrderStatus tracks a supplier order through fulfillment. Like ItemStatus it is ranked.
type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "PLACED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusReceived  OrderStatus = "RECEIVED"
	OrderStatusInstalled OrderStatus = "INSTALLED"
	OrderStatusClosed    OrderStatus = "CLOSED"
)

var orderStatusOrder = set[OrderStatus]{
	OrderStatusPlaced,
	OrderStatusShipped,
	OrderStatusReceived,
	OrderStatusInstalled,
	OrderStatusClosed,
}

func (o OrderStatus) String() string { return string(o) }

func (o OrderStatus) IsValid() bool { return orderStatusOrder.has(o) }

// Rank returns the fulfillment position of the status, or -1 when unknown.
func (o OrderStatus) Rank() int { return orderStatusOrder.index(o) }

func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatusOrder.parse("order status", value)
}
