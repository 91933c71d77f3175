// Package procurement assembles the procurement services over one database handle so
// every binary runs the same graph.
package procurement

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/internal/acceptance"
	"github.com/angelmondragon/ffe-procurement/internal/activity"
	"github.com/angelmondragon/ffe-procurement/internal/clientquotes"
	"github.com/angelmondragon/ffe-procurement/internal/items"
	"github.com/angelmondragon/ffe-procurement/internal/orders"
	"github.com/angelmondragon/ffe-procurement/internal/payments"
	"github.com/angelmondragon/ffe-procurement/internal/quotes"
	"github.com/angelmondragon/ffe-procurement/internal/status"
	"github.com/angelmondragon/ffe-procurement/pkg/config"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/metrics"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox"
)

type database interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      database
	Metrics *metrics.OperationMetrics
}

// Services is the wired service graph plus the repositories background jobs read.
type Services struct {
	Outbox       *outbox.Service
	OutboxRepo   *outbox.Repository
	Activity     activity.Service
	Items        items.Service
	Engine       status.Engine
	Quotes       quotes.Registry
	Acceptance   acceptance.Service
	ClientQuotes clientquotes.Service
	Payments     payments.Service
	PaymentsRepo payments.Repository
	Orders       orders.Service
}

func New(params Params) (*Services, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database is required")
	}
	cfg, logg, ops := params.Config, params.Logger, params.Metrics
	conn := params.DB.DB()

	currency, err := enums.ParseCurrency(cfg.Procurement.DefaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("default currency: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)
	itemsRepo := items.NewRepository(conn)
	quotesRepo := quotes.NewRepository(conn)
	paymentsRepo := payments.NewRepository(conn)

	activitySvc, err := activity.NewService(activity.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("activity: %w", err)
	}
	itemsSvc, err := items.NewService(itemsRepo, params.DB, activitySvc, currency)
	if err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}
	engine, err := status.NewEngine(itemsRepo, params.DB, activitySvc, logg, ops)
	if err != nil {
		return nil, fmt.Errorf("status engine: %w", err)
	}
	registry, err := quotes.NewRegistry(quotesRepo, itemsRepo, params.DB, activitySvc, engine, logg, ops)
	if err != nil {
		return nil, fmt.Errorf("quote registry: %w", err)
	}
	acceptanceSvc, err := acceptance.NewService(quotesRepo, itemsRepo, params.DB, activitySvc, emitter, engine, logg, ops)
	if err != nil {
		return nil, fmt.Errorf("acceptance: %w", err)
	}
	clientQuotesSvc, err := clientquotes.NewService(clientquotes.NewRepository(conn), itemsRepo, quotesRepo, params.DB, activitySvc, engine, logg, ops)
	if err != nil {
		return nil, fmt.Errorf("client quotes: %w", err)
	}
	paymentsSvc, err := payments.NewService(paymentsRepo, itemsRepo, params.DB, activitySvc, emitter, engine, logg, ops, cfg.Procurement.Tolerance())
	if err != nil {
		return nil, fmt.Errorf("payments: %w", err)
	}
	ordersSvc, err := orders.NewService(orders.NewRepository(conn), itemsRepo, params.DB, activitySvc, emitter, engine, logg, ops)
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}

	return &Services{
		Outbox:       emitter,
		OutboxRepo:   outboxRepo,
		Activity:     activitySvc,
		Items:        itemsSvc,
		Engine:       engine,
		Quotes:       registry,
		Acceptance:   acceptanceSvc,
		ClientQuotes: clientQuotesSvc,
		Payments:     paymentsSvc,
		PaymentsRepo: paymentsRepo,
		Orders:       ordersSvc,
	}, nil
}
