package orders

import (
	"github.com/angelmondragon/ffe-procurement/internal/status"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
)

// OrderResult reports an order and the item transitions it caused. Changed is false for
// stale status updates.
type OrderResult struct {
	Order   models.Order
	Changed bool
	Items   []status.AdvanceResult
}
