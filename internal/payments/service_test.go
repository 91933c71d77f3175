package payments

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/internal/activity"
	"github.com/angelmondragon/ffe-procurement/internal/items"
	"github.com/angelmondragon/ffe-procurement/internal/status"
	dbpkg "github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/db/dbtest"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newTestService(t *testing.T, tolerance string) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	itemsRepo := items.NewRepository(conn)
	tx := dbpkg.Wrap(conn)
	log, err := activity.NewService(activity.NewRepository(conn))
	require.NoError(t, err)
	engine, err := status.NewEngine(itemsRepo, tx, log, logger.Nop(), nil)
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	svc, err := NewService(NewRepository(conn), itemsRepo, tx, log, emitter, engine, logger.Nop(), nil, dec(tolerance))
	require.NoError(t, err)
	return svc, conn
}

type invoicedItem struct {
	clientPrice string
	paid        string
}

// seedInvoice creates an INVOICED client quote with one line per entry. Items come back in
// ascending id order.
func seedInvoice(t *testing.T, conn *gorm.DB, entries ...invoicedItem) (models.ClientQuote, []models.Item) {
	t.Helper()
	projectID := uuid.New()
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(dec(e.clientPrice))
	}
	cq := models.ClientQuote{
		ProjectID: projectID,
		Status:    enums.ClientQuoteStatusInvoiced,
		Currency:  enums.CurrencyUSD,
		Total:     total,
	}
	require.NoError(t, conn.Create(&cq).Error)

	var seeded []models.Item
	for _, e := range entries {
		paid := decimal.Zero
		paymentStatus := enums.PaymentStatusInvoiced
		itemStatus := enums.ItemStatusInvoiced
		if e.paid != "" {
			paid = dec(e.paid)
			paymentStatus = enums.PaymentStatusDepositPaid
			itemStatus = enums.ItemStatusPartiallyPaid
		}
		supplierID := uuid.New()
		item := models.Item{
			ProjectID:     projectID,
			Name:          "Lounge Chair",
			Quantity:      1,
			CurrentStatus: itemStatus,
			PaymentStatus: paymentStatus,
			SupplierID:    &supplierID,
			TradePrice:    dec(e.clientPrice),
			Currency:      enums.CurrencyUSD,
			ClientPrice:   dec(e.clientPrice),
			PaidAmount:    paid,
		}
		require.NoError(t, conn.Create(&item).Error)
		quote := models.QuoteLineItem{
			ItemID:          item.ID,
			SupplierID:      supplierID,
			UnitPrice:       dec(e.clientPrice),
			TotalPrice:      dec(e.clientPrice),
			Currency:        enums.CurrencyUSD,
			Version:         1,
			IsLatestVersion: true,
			IsAccepted:      true,
		}
		require.NoError(t, conn.Create(&quote).Error)
		line := models.ClientQuoteLineItem{
			ClientQuoteID:   cq.ID,
			ItemID:          item.ID,
			QuoteLineItemID: quote.ID,
			Quantity:        1,
			UnitPrice:       dec(e.clientPrice),
			ClientPrice:     dec(e.clientPrice),
		}
		require.NoError(t, conn.Create(&line).Error)
		seeded = append(seeded, item)
	}
	sort.Slice(seeded, func(i, j int) bool { return seeded[i].ID.String() < seeded[j].ID.String() })
	return cq, seeded
}

func loadItems(t *testing.T, conn *gorm.DB, ids ...uuid.UUID) map[uuid.UUID]models.Item {
	t.Helper()
	var rows []models.Item
	require.NoError(t, conn.Where("id IN ?", ids).Find(&rows).Error)
	out := make(map[uuid.UUID]models.Item, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out
}

func ids(items []models.Item) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestAllocateSplitsProportionally(t *testing.T) {
	svc, conn := newTestService(t, "0.00")
	cq, _ := seedInvoice(t, conn, invoicedItem{clientPrice: "500.00"}, invoicedItem{clientPrice: "300.00"}, invoicedItem{clientPrice: "200.00"})
	var lines []models.ClientQuoteLineItem
	require.NoError(t, conn.Where("client_quote_id = ?", cq.ID).Find(&lines).Error)
	priceByItem := make(map[uuid.UUID]string, len(lines))
	for _, line := range lines {
		priceByItem[line.ItemID] = line.ClientPrice.StringFixed(2)
	}

	res, err := svc.RecordAndAllocate(context.Background(), RecordInput{ClientQuoteID: cq.ID, Amount: dec("330.00"), Currency: enums.CurrencyUSD})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	require.Len(t, res.Allocations, 3)
	require.NotNil(t, res.Payment.AllocatedAt)

	want := map[string]string{"500.00": "165.00", "300.00": "99.00", "200.00": "66.00"}
	sum := decimal.Zero
	for _, allocation := range res.Allocations {
		assert.Equal(t, want[priceByItem[allocation.ItemID]], allocation.Amount.StringFixed(2))
		sum = sum.Add(allocation.Amount)
	}
	assert.True(t, dec("330.00").Equal(sum))

	stored := loadItems(t, conn, ids(res.UpdatedItems)...)
	require.Len(t, stored, 3)
	for _, item := range stored {
		assert.Equal(t, enums.PaymentStatusDepositPaid, item.PaymentStatus)
		assert.Equal(t, enums.ItemStatusPartiallyPaid, item.CurrentStatus)
	}

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPaymentReceived).Count(&events).Error)
	assert.Equal(t, int64(3), events)
}

func TestAllocateFullPaymentLeavesSiblingPartial(t *testing.T) {
	svc, conn := newTestService(t, "0.00")
	cq, _ := seedInvoice(t, conn, invoicedItem{clientPrice: "500.00", paid: "400.00"}, invoicedItem{clientPrice: "500.00"})

	res, err := svc.RecordAndAllocate(context.Background(), RecordInput{ClientQuoteID: cq.ID, Amount: dec("200.00"), Currency: enums.CurrencyUSD})
	require.NoError(t, err)
	require.Len(t, res.UpdatedItems, 2)

	var full, partial int
	for _, item := range loadItems(t, conn, ids(res.UpdatedItems)...) {
		switch item.PaymentStatus {
		case enums.PaymentStatusFullyPaid:
			full++
			assert.Equal(t, enums.ItemStatusFullyPaid, item.CurrentStatus)
			assert.True(t, dec("500.00").Equal(item.PaidAmount))
		case enums.PaymentStatusDepositPaid:
			partial++
			assert.Equal(t, enums.ItemStatusPartiallyPaid, item.CurrentStatus)
			assert.True(t, dec("100.00").Equal(item.PaidAmount))
		default:
			t.Fatalf("unexpected payment status %s", item.PaymentStatus)
		}
	}
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, partial)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPaymentReceived).Count(&events).Error)
	assert.Equal(t, int64(2), events)
}

func TestAllocateOverpaymentChangesNothing(t *testing.T) {
	svc, conn := newTestService(t, "0.00")
	cq, seeded := seedInvoice(t, conn, invoicedItem{clientPrice: "100.00", paid: "90.00"}, invoicedItem{clientPrice: "100.00"})
	before := loadItems(t, conn, ids(seeded)...)

	_, err := svc.RecordAndAllocate(context.Background(), RecordInput{ClientQuoteID: cq.ID, Amount: dec("40.00"), Currency: enums.CurrencyUSD})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOverpayment))
	assert.False(t, pkgerrors.IsRetryable(err))

	after := loadItems(t, conn, ids(seeded)...)
	for id, item := range before {
		assert.True(t, item.PaidAmount.Equal(after[id].PaidAmount))
		assert.Equal(t, item.Version, after[id].Version)
		assert.Equal(t, item.CurrentStatus, after[id].CurrentStatus)
	}
	var payments, allocations int64
	require.NoError(t, conn.Model(&models.Payment{}).Count(&payments).Error)
	require.NoError(t, conn.Model(&models.PaymentAllocation{}).Count(&allocations).Error)
	assert.Zero(t, payments)
	assert.Zero(t, allocations)
}

func TestAllocateWithinToleranceCountsAsFullyPaid(t *testing.T) {
	svc, conn := newTestService(t, "0.50")
	cq, seeded := seedInvoice(t, conn, invoicedItem{clientPrice: "100.00"})

	_, err := svc.RecordAndAllocate(context.Background(), RecordInput{ClientQuoteID: cq.ID, Amount: dec("99.60"), Currency: enums.CurrencyUSD})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFullyPaid, loadItems(t, conn, seeded[0].ID)[seeded[0].ID].PaymentStatus)

	_, err = svc.RecordAndAllocate(context.Background(), RecordInput{ClientQuoteID: cq.ID, Amount: dec("0.80"), Currency: enums.CurrencyUSD})
	require.NoError(t, err)

	_, err = svc.RecordAndAllocate(context.Background(), RecordInput{ClientQuoteID: cq.ID, Amount: dec("0.20"), Currency: enums.CurrencyUSD})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOverpayment))
}

func TestAllocateTwiceReturnsStoredAllocations(t *testing.T) {
	svc, conn := newTestService(t, "0.00")
	cq, seeded := seedInvoice(t, conn, invoicedItem{clientPrice: "500.00"}, invoicedItem{clientPrice: "500.00"})
	ctx := context.Background()

	payment, err := svc.Record(ctx, RecordInput{ClientQuoteID: cq.ID, Amount: dec("100.00"), Currency: enums.CurrencyUSD})
	require.NoError(t, err)
	assert.Nil(t, payment.AllocatedAt)

	first, err := svc.Allocate(ctx, payment.ID, nil)
	require.NoError(t, err)
	require.True(t, first.Changed)
	afterFirst := loadItems(t, conn, ids(seeded)...)

	second, err := svc.Allocate(ctx, payment.ID, nil)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Len(t, second.Allocations, len(first.Allocations))

	afterSecond := loadItems(t, conn, ids(seeded)...)
	for id, item := range afterFirst {
		assert.True(t, item.PaidAmount.Equal(afterSecond[id].PaidAmount))
		assert.Equal(t, item.Version, afterSecond[id].Version)
	}
}

func TestRecordValidation(t *testing.T) {
	svc, conn := newTestService(t, "0.00")
	cq, _ := seedInvoice(t, conn, invoicedItem{clientPrice: "100.00"})
	draft := models.ClientQuote{ProjectID: uuid.New(), Status: enums.ClientQuoteStatusDraft, Currency: enums.CurrencyUSD, Total: dec("10.00")}
	require.NoError(t, conn.Create(&draft).Error)
	ctx := context.Background()

	cases := []struct {
		name  string
		input RecordInput
		code  pkgerrors.Code
	}{
		{"zero amount", RecordInput{ClientQuoteID: cq.ID, Amount: decimal.Zero, Currency: enums.CurrencyUSD}, pkgerrors.CodeValidation},
		{"currency mismatch", RecordInput{ClientQuoteID: cq.ID, Amount: dec("1.00"), Currency: enums.CurrencyEUR}, pkgerrors.CodeValidation},
		{"not invoiced", RecordInput{ClientQuoteID: draft.ID, Amount: dec("1.00"), Currency: enums.CurrencyUSD}, pkgerrors.CodeInvalidTransition},
		{"unknown quote", RecordInput{ClientQuoteID: uuid.New(), Amount: dec("1.00"), Currency: enums.CurrencyUSD}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(ctx, tc.input)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}

func TestAllocateUnknownPayment(t *testing.T) {
	svc, _ := newTestService(t, "0.00")
	_, err := svc.Allocate(context.Background(), uuid.New(), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
