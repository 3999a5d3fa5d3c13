package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the orderflow store.
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
    address_details     JSONB,
    description         TEXT NOT NULL DEFAULT '',
    notes               TEXT NOT NULL DEFAULT '',
    price_amount        BIGINT NOT NULL DEFAULT 0,
    price_currency      TEXT NOT NULL DEFAULT 'rub',
    payment_method      TEXT NOT NULL DEFAULT 'online',
    status              TEXT NOT NULL DEFAULT 'new',
    scheduled_at        TIMESTAMPTZ,
    assigned_at         TIMESTAMPTZ,
    started_at          TIMESTAMPTZ,
    completed_at        TIMESTAMPTZ,
    overdue_minutes     INT,
    overdue_notified_at TIMESTAMPTZ,
    schedule_id         TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_orderflow_orders_customer ON orderflow_orders (customer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orderflow_orders_courier ON orderflow_orders (courier_id) WHERE courier_id != '';
CREATE INDEX IF NOT EXISTS idx_orderflow_orders_schedule ON orderflow_orders (schedule_id) WHERE schedule_id != '';
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
    amount           BIGINT NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT 'rub',
    status           TEXT NOT NULL DEFAULT 'pending',
    method           TEXT NOT NULL DEFAULT '',
    provider_id      TEXT NOT NULL DEFAULT '',
    confirmation_url TEXT NOT NULL DEFAULT '',
    paid_at          TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK ((order_id = '') <> (subscription_id = ''))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_orderflow_payments_provider ON orderflow_payments (provider_id) WHERE provider_id != '';
CREATE INDEX IF NOT EXISTS idx_orderflow_payments_order ON orderflow_payments (order_id, created_at DESC) WHERE order_id != '';
CREATE INDEX IF NOT EXISTS idx_orderflow_payments_subscription ON orderflow_payments (subscription_id, created_at DESC) WHERE subscription_id != '';
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
    orders_limit   INT NOT NULL,
    used_orders    INT NOT NULL DEFAULT 0,
    price_amount   BIGINT NOT NULL DEFAULT 0,
    price_currency TEXT NOT NULL DEFAULT 'rub',
    start_date     TIMESTAMPTZ,
    end_date       TIMESTAMPTZ,
    canceled_at    TIMESTAMPTZ,
    expiry_reason  TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (used_orders >= 0),
    CHECK (orders_limit = -1 OR used_orders <= orders_limit)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_orderflow_subs_one_active ON orderflow_subscriptions (user_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_orderflow_subs_user ON orderflow_subscriptions (user_id, status);
CREATE INDEX IF NOT EXISTS idx_orderflow_subs_end ON orderflow_subscriptions (end_date) WHERE status = 'active';
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
    price_amount        BIGINT NOT NULL DEFAULT 0,
    price_currency      TEXT NOT NULL DEFAULT 'rub',
    frequency           TEXT NOT NULL,
    preferred_time      TEXT NOT NULL DEFAULT '',
    days_of_week        JSONB NOT NULL DEFAULT '[]',
    start_date          TIMESTAMPTZ NOT NULL,
    end_date            TIMESTAMPTZ,
    is_active           BOOLEAN NOT NULL DEFAULT TRUE,
    last_created_at     TIMESTAMPTZ,
    deactivation_reason TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_orderflow_schedules_active ON orderflow_schedules (id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_orderflow_schedules_customer ON orderflow_schedules (customer_id);
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
    received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_orderflow_webhooks_payment ON orderflow_webhook_events (payment_id, received_at DESC);
CREATE INDEX IF NOT EXISTS idx_orderflow_webhooks_received ON orderflow_webhook_events (received_at DESC);
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
