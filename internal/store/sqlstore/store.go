// Package sqlstore keeps queues, tickets and the ticket number counter in
// SQLite through dbx, normally inside the PocketBase data database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"queue-ticket/internal/status"
	"queue-ticket/internal/store"
	"queue-ticket/models"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  dbx.Builder
	now func() time.Time
}

var _ store.Backend = (*Store)(nil)

// New wraps an already migrated dbx builder, e.g. app.NonconcurrentDB().
func New(db dbx.Builder) *Store {
	return &Store{db: db, now: time.Now}
}

// Open opens a standalone SQLite file, applies pragmas and the schema.
func Open(path string) (*Store, *dbx.DB, error) {
	dsn := path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := dbx.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps writers queued
	// instead of failing with SQLITE_BUSY.
	db.DB().SetMaxOpenConns(1)
	db.DB().SetMaxIdleConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return New(db), db, nil
}

func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.NewQuery("SELECT 1").WithContext(ctx).Row(&one)
}

type ticketRow struct {
	ID           string `db:"id"`
	UserID       string `db:"user_id"`
	QueueID      string `db:"queue_id"`
	TicketNumber int64  `db:"ticket_number"`
	Status       string `db:"status"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r ticketRow) toModel() *models.Ticket {
	return &models.Ticket{
		ID:           r.ID,
		UserID:       r.UserID,
		QueueID:      r.QueueID,
		TicketNumber: r.TicketNumber,
		Status:       models.TicketStatus(r.Status),
		CreatedAt:    time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:    time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

type queueRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	IsActive  int    `db:"is_active"`
	CreatedAt int64  `db:"created_at"`
}

func (r queueRow) toModel() *models.Queue {
	return &models.Queue{
		ID:        r.ID,
		Name:      r.Name,
		IsActive:  r.IsActive != 0,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func statusValues(statuses []models.TicketStatus) []interface{} {
	values := make([]interface{}, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return values
}

// where translates a filter into a dbx expression.
func where(f store.TicketFilter) dbx.Expression {
	exps := []dbx.Expression{}
	hash := dbx.HashExp{}
	if f.ID != "" {
		hash["id"] = f.ID
	}
	if f.UserID != "" {
		hash["user_id"] = f.UserID
	}
	if f.QueueID != "" {
		hash["queue_id"] = f.QueueID
	}
	if len(hash) > 0 {
		exps = append(exps, hash)
	}
	if len(f.Statuses) > 0 {
		exps = append(exps, dbx.In("status", statusValues(f.Statuses)...))
	}
	if f.NumberBelow > 0 {
		exps = append(exps, dbx.NewExp("ticket_number < {:below}", dbx.Params{"below": f.NumberBelow}))
	}
	return dbx.And(exps...)
}

func isUniqueActiveViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "qt_tickets.user_id")
}

func (s *Store) Insert(ctx context.Context, t *models.Ticket) error {
	_, err := s.db.Insert(ticketsTable, dbx.Params{
		"id":            t.ID,
		"user_id":       t.UserID,
		"queue_id":      t.QueueID,
		"ticket_number": t.TicketNumber,
		"status":        string(t.Status),
		"created_at":    t.CreatedAt.UnixMilli(),
		"updated_at":    t.UpdatedAt.UnixMilli(),
	}).WithContext(ctx).Execute()
	if err != nil {
		if isUniqueActiveViolation(err) {
			return status.ErrDuplicateActiveTicket
		}
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, f store.TicketFilter) (*models.Ticket, error) {
	var row ticketRow
	err := s.db.Select("*").From(ticketsTable).
		Where(where(f)).
		OrderBy("ticket_number ASC").
		Limit(1).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	return row.toModel(), nil
}

func (s *Store) FindMany(ctx context.Context, f store.TicketFilter, sort store.Sort, limit int) ([]*models.Ticket, error) {
	order := "ticket_number ASC"
	if sort == store.SortDescending {
		order = "ticket_number DESC"
	}
	q := s.db.Select("*").From(ticketsTable).Where(where(f)).OrderBy(order)
	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	var rows []ticketRow
	if err := q.WithContext(ctx).All(&rows); err != nil {
		return nil, fmt.Errorf("find tickets: %w", err)
	}

	tickets := make([]*models.Ticket, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, row.toModel())
	}
	return tickets, nil
}

func (s *Store) ConditionalUpdate(ctx context.Context, id string, expected, next models.TicketStatus) (bool, error) {
	res, err := s.db.Update(ticketsTable,
		dbx.Params{"status": string(next), "updated_at": s.now().UnixMilli()},
		dbx.HashExp{"id": id, "status": string(expected)},
	).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("update ticket %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update ticket %s: %w", id, err)
	}
	return affected == 1, nil
}

func (s *Store) Count(ctx context.Context, f store.TicketFilter) (int64, error) {
	var n int64
	err := s.db.Select("COUNT(*)").From(ticketsTable).Where(where(f)).WithContext(ctx).Row(&n)
	if err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return n, nil
}

func (s *Store) BulkUpdate(ctx context.Context, f store.TicketFilter, next models.TicketStatus) (int64, error) {
	if f.QueueID == "" || len(f.Statuses) == 0 {
		return 0, fmt.Errorf("bulk update needs a queue and statuses: %w", status.ErrValidation)
	}
	res, err := s.db.Update(ticketsTable,
		dbx.Params{"status": string(next), "updated_at": s.now().UnixMilli()},
		where(f),
	).WithContext(ctx).Execute()
	if err != nil {
		return 0, fmt.Errorf("bulk update queue %s: %w", f.QueueID, err)
	}
	return res.RowsAffected()
}

func (s *Store) Increment(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.NewQuery(
		"INSERT INTO qt_counters (name, value) VALUES ({:name}, 1) " +
			"ON CONFLICT(name) DO UPDATE SET value = value + 1 RETURNING value",
	).Bind(dbx.Params{"name": name}).WithContext(ctx).Row(&value)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return value, nil
}

func (s *Store) InsertQueue(ctx context.Context, q *models.Queue) error {
	_, err := s.db.Insert(queuesTable, dbx.Params{
		"id":         q.ID,
		"name":       q.Name,
		"is_active":  boolToInt(q.IsActive),
		"created_at": q.CreatedAt.UnixMilli(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("insert queue: %w", err)
	}
	return nil
}

func (s *Store) GetQueue(ctx context.Context, id string) (*models.Queue, error) {
	var row queueRow
	err := s.db.Select("*").From(queuesTable).
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrQueueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue %s: %w", id, err)
	}
	return row.toModel(), nil
}

func (s *Store) ListQueues(ctx context.Context, activeOnly bool) ([]*models.Queue, error) {
	q := s.db.Select("*").From(queuesTable).OrderBy("created_at ASC", "id ASC")
	if activeOnly {
		q = q.Where(dbx.HashExp{"is_active": 1})
	}

	var rows []queueRow
	if err := q.WithContext(ctx).All(&rows); err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}

	queues := make([]*models.Queue, 0, len(rows))
	for _, row := range rows {
		queues = append(queues, row.toModel())
	}
	return queues, nil
}

func (s *Store) SetQueueActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.Update(queuesTable,
		dbx.Params{"is_active": boolToInt(active)},
		dbx.HashExp{"id": id},
	).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("update queue %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.ErrQueueNotFound
	}
	return nil
}

func (s *Store) DeleteQueue(ctx context.Context, id string) error {
	res, err := s.db.Delete(queuesTable, dbx.HashExp{"id": id}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("delete queue %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.ErrQueueNotFound
	}
	return nil
}
