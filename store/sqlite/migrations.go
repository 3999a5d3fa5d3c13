package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the orderflow store (SQLite).
var Migrations = migrate.NewGroup("orderflow")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_orderflow_orders",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS orderflow_orders (
    id                  TEXT PRIMARY KEY,
    customer_id         TEXT NOT NULL,
    courier_id          TEXT NOT NULL DEFAULT '',
    address             TEXT NOT NULL DEFAULT '',
    address_details     TEXT NOT NULL DEFAULT '',
    description         TEXT NOT NULL DEFAULT '',
    notes               TEXT NOT NULL DEFAULT '',
    price_amount        INTEGER NOT NULL DEFAULT 0,
    price_currency      TEXT NOT NULL DEFAULT 'rub',
    payment_method      TEXT NOT NULL DEFAULT 'online',
    status              TEXT NOT NULL DEFAULT 'new',
    scheduled_at        TEXT,
    assigned_at         TEXT,
    started_at          TEXT,
    completed_at        TEXT,
    overdue_minutes     INTEGER,
    overdue_notified_at TEXT,
    schedule_id         TEXT NOT NULL DEFAULT '',
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_orderflow_orders_customer ON orderflow_orders (customer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orderflow_orders_courier ON orderflow_orders (courier_id);
CREATE INDEX IF NOT EXISTS idx_orderflow_orders_overdue ON orderflow_orders (status, scheduled_at) WHERE overdue_notified_at IS NULL;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS orderflow_orders`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_orderflow_payments",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS orderflow_payments (
    id               TEXT PRIMARY KEY,
    kind             TEXT NOT NULL,
    order_id         TEXT NOT NULL DEFAULT '',
    subscription_id  TEXT NOT NULL DEFAULT '',
    amount           INTEGER NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT 'rub',
    status           TEXT NOT NULL DEFAULT 'pending',
    method           TEXT NOT NULL DEFAULT '',
    provider_id      TEXT NOT NULL DEFAULT '',
    confirmation_url TEXT NOT NULL DEFAULT '',
    paid_at          TEXT,
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now')),
    CHECK ((order_id = '') <> (subscription_id = ''))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_orderflow_payments_provider ON orderflow_payments (provider_id) WHERE provider_id != '';
CREATE INDEX IF NOT EXISTS idx_orderflow_payments_order ON orderflow_payments (order_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orderflow_payments_subscription ON orderflow_payments (subscription_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS orderflow_payments`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_orderflow_subscriptions",
			Version: "20250301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS orderflow_subscriptions (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    type           TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    orders_limit   INTEGER NOT NULL,
    used_orders    INTEGER NOT NULL DEFAULT 0,
    price_amount   INTEGER NOT NULL DEFAULT 0,
    price_currency TEXT NOT NULL DEFAULT 'rub',
    start_date     TEXT,
    end_date       TEXT,
    canceled_at    TEXT,
    expiry_reason  TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now')),
    CHECK (used_orders >= 0),
    CHECK (orders_limit = -1 OR used_orders <= orders_limit)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_orderflow_subs_one_active ON orderflow_subscriptions (user_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_orderflow_subs_user ON orderflow_subscriptions (user_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS orderflow_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_orderflow_schedules",
			Version: "20250301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS orderflow_schedules (
    id                  TEXT PRIMARY KEY,
    customer_id         TEXT NOT NULL,
    address             TEXT NOT NULL DEFAULT '',
    description         TEXT NOT NULL DEFAULT '',
    notes               TEXT NOT NULL DEFAULT '',
    price_amount        INTEGER NOT NULL DEFAULT 0,
    price_currency      TEXT NOT NULL DEFAULT 'rub',
    frequency           TEXT NOT NULL,
    preferred_time      TEXT NOT NULL DEFAULT '',
    days_of_week        TEXT NOT NULL DEFAULT '[]',
    start_date          TEXT NOT NULL,
    end_date            TEXT,
    is_active           INTEGER NOT NULL DEFAULT 1,
    last_created_at     TEXT,
    deactivation_reason TEXT NOT NULL DEFAULT '',
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_orderflow_schedules_active ON orderflow_schedules (is_active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS orderflow_schedules`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_orderflow_webhook_events",
			Version: "20250301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS orderflow_webhook_events (
    id          TEXT PRIMARY KEY,
    event_type  TEXT NOT NULL,
    subject     TEXT NOT NULL DEFAULT '',
    provider_id TEXT NOT NULL DEFAULT '',
    payment_id  TEXT NOT NULL DEFAULT '',
    outcome     TEXT NOT NULL,
    message     TEXT NOT NULL DEFAULT '',
    received_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_orderflow_webhooks_payment ON orderflow_webhook_events (payment_id, received_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS orderflow_webhook_events`)
				return err
			},
		},
	)
}
