// Package dbtest opens in-memory sqlite databases carrying the procurement schema for
// repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Schema mirrors the goose migrations with sqlite types. Partial unique indexes are kept so
// acceptance and versioning constraints behave the same as on postgres.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  name TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1 CHECK (quantity > 0),
  current_status TEXT NOT NULL DEFAULT 'NOT_REQUESTED',
  payment_status TEXT NOT NULL DEFAULT 'NOT_INVOICED',
  accepted_quote_id TEXT,
  supplier_id TEXT,
  trade_price TEXT NOT NULL DEFAULT '0',
  currency TEXT NOT NULL DEFAULT 'USD',
  client_price TEXT NOT NULL DEFAULT '0',
  paid_amount TEXT NOT NULL DEFAULT '0',
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS components (
  id TEXT PRIMARY KEY,
  item_id TEXT NOT NULL REFERENCES items (id),
  name TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1 CHECK (quantity > 0),
  accepted_quote_id TEXT,
  supplier_id TEXT,
  trade_price TEXT NOT NULL DEFAULT '0',
  currency TEXT NOT NULL DEFAULT 'USD',
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS quote_line_items (
  id TEXT PRIMARY KEY,
  item_id TEXT NOT NULL REFERENCES items (id),
  component_id TEXT REFERENCES components (id),
  supplier_id TEXT NOT NULL,
  unit_price TEXT NOT NULL,
  total_price TEXT NOT NULL,
  currency TEXT NOT NULL,
  lead_time_days INTEGER NOT NULL DEFAULT 0,
  document_ref TEXT,
  valid_until DATETIME,
  notes TEXT,
  version INTEGER NOT NULL DEFAULT 1,
  is_latest_version BOOLEAN NOT NULL DEFAULT 1,
  previous_version_id TEXT REFERENCES quote_line_items (id),
  is_accepted BOOLEAN NOT NULL DEFAULT 0,
  accepted_at DATETIME,
  accepted_by_id TEXT,
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_qli_item_supplier_latest ON quote_line_items (item_id, supplier_id)
  WHERE is_latest_version = 1 AND component_id IS NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_qli_component_supplier_latest ON quote_line_items (component_id, supplier_id)
  WHERE is_latest_version = 1 AND component_id IS NOT NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_qli_item_accepted ON quote_line_items (item_id)
  WHERE is_accepted = 1 AND component_id IS NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_qli_component_accepted ON quote_line_items (component_id)
  WHERE is_accepted = 1 AND component_id IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS client_quotes (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'DRAFT',
  currency TEXT NOT NULL,
  markup_percent TEXT NOT NULL DEFAULT '0',
  total TEXT NOT NULL,
  sent_at DATETIME,
  approved_at DATETIME,
  invoiced_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS client_quote_line_items (
  id TEXT PRIMARY KEY,
  client_quote_id TEXT NOT NULL REFERENCES client_quotes (id),
  item_id TEXT NOT NULL REFERENCES items (id),
  quote_line_item_id TEXT NOT NULL REFERENCES quote_line_items (id),
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  client_price TEXT NOT NULL,
  created_at DATETIME,
  UNIQUE (client_quote_id, item_id)
);`,
	`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  client_quote_id TEXT NOT NULL REFERENCES client_quotes (id),
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  paid_at DATETIME NOT NULL,
  reference TEXT,
  recorded_by_id TEXT,
  allocated_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS payment_allocations (
  id TEXT PRIMARY KEY,
  payment_id TEXT NOT NULL REFERENCES payments (id),
  item_id TEXT NOT NULL REFERENCES items (id),
  client_quote_line_item_id TEXT NOT NULL REFERENCES client_quote_line_items (id),
  amount TEXT NOT NULL,
  created_at DATETIME,
  UNIQUE (payment_id, client_quote_line_item_id)
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  client_quote_id TEXT NOT NULL REFERENCES client_quotes (id),
  project_id TEXT NOT NULL,
  supplier_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PLACED',
  currency TEXT NOT NULL,
  total TEXT NOT NULL,
  placed_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders (id),
  item_id TEXT NOT NULL REFERENCES items (id),
  component_id TEXT REFERENCES components (id),
  quote_line_item_id TEXT NOT NULL REFERENCES quote_line_items (id),
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_order_items_quote ON order_items (quote_line_item_id);`,
	`CREATE TABLE IF NOT EXISTS activity_entries (
  id TEXT PRIMARY KEY,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  item_id TEXT,
  action TEXT NOT NULL,
  trigger_event TEXT,
  actor_id TEXT,
  from_status TEXT,
  to_status TEXT,
  details TEXT,
  created_at DATETIME
);`,
	`CREATE TRIGGER IF NOT EXISTS trg_activity_entries_no_update BEFORE UPDATE ON activity_entries
BEGIN SELECT RAISE(ABORT, 'activity_entries is append-only'); END;`,
	`CREATE TRIGGER IF NOT EXISTS trg_activity_entries_no_delete BEFORE DELETE ON activity_entries
BEGIN SELECT RAISE(ABORT, 'activity_entries is append-only'); END;`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a gorm handle on a private in-memory database named after the test.
// A single connection is used so transactions observe each other's writes serially.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
