package sqlstore

import (
	"fmt"

	"github.com/pocketbase/dbx"
)

const (
	queuesTable   = "qt_queues"
	ticketsTable  = "qt_tickets"
	countersTable = "qt_counters"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS qt_queues (
		id         TEXT PRIMARY KEY NOT NULL,
		name       TEXT NOT NULL,
		is_active  INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS qt_tickets (
		id            TEXT PRIMARY KEY NOT NULL,
		user_id       TEXT NOT NULL,
		queue_id      TEXT NOT NULL,
		ticket_number INTEGER NOT NULL UNIQUE,
		status        TEXT NOT NULL CHECK (status IN ('waiting', 'serving', 'served', 'cancelled')),
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	)`,
	// One active ticket per (user, queue); terminal tickets stay as history.
	`CREATE UNIQUE INDEX IF NOT EXISTS qt_tickets_one_active
		ON qt_tickets (user_id, queue_id) WHERE status IN ('waiting', 'serving')`,
	`CREATE INDEX IF NOT EXISTS qt_tickets_queue_status_number ON qt_tickets (queue_id, status, ticket_number)`,
	`CREATE INDEX IF NOT EXISTS qt_tickets_status_number ON qt_tickets (status, ticket_number)`,
	`CREATE INDEX IF NOT EXISTS qt_tickets_user_number ON qt_tickets (user_id, ticket_number)`,
	`CREATE TABLE IF NOT EXISTS qt_counters (
		name  TEXT PRIMARY KEY NOT NULL,
		value INTEGER NOT NULL
	)`,
}

// Migrate creates the queue tables if they do not exist yet.
func Migrate(db dbx.Builder) error {
	for _, stmt := range schema {
		if _, err := db.NewQuery(stmt).Execute(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Drop removes the queue tables. Used by the down migration only.
func Drop(db dbx.Builder) error {
	for _, table := range []string{ticketsTable, queuesTable, countersTable} {
		if _, err := db.NewQuery("DROP TABLE IF EXISTS " + table).Execute(); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}
