// Package redisstore keeps queues and tickets in Redis. Every status change
// runs as a Lua script so the compare-and-set and its index maintenance are
// one atomic step on the server. Reads of indexed tickets are scripts too, so
// an index entry and its ticket hash are never observed out of step.
//
// The scripts build some keys from the prefix and the ticket hash instead of
// receiving them as KEYS. That is safe on a single node. On Redis Cluster set
// a hash-tagged prefix such as "{qt}" so every key lands in one slot.
package redisstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"queue-ticket/internal/status"
	"queue-ticket/internal/store"
	"queue-ticket/models"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "qt"

type Store struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

var _ store.Backend = (*Store)(nil)

func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Increment(ctx context.Context, name string) (int64, error) {
	v, err := s.rdb.Incr(ctx, s.counterKey(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return v, nil
}

func (s *Store) Insert(ctx context.Context, t *models.Ticket) error {
	keys := []string{
		s.ticketKey(t.ID),
		s.activeGuardKey(t.QueueID, t.UserID),
		s.statusIndexKey(t.Status),
		s.queueStatusIndexKey(t.QueueID, t.Status),
		s.userIndexKey(t.UserID),
		s.userActiveIndexKey(t.UserID),
	}
	res, err := s.rdb.Eval(ctx, insertTicketScript, keys,
		t.ID, t.UserID, t.QueueID, t.TicketNumber, string(t.Status),
		t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	if res == 0 {
		return status.ErrDuplicateActiveTicket
	}
	return nil
}

func (s *Store) ConditionalUpdate(ctx context.Context, id string, expected, next models.TicketStatus) (bool, error) {
	res, err := s.rdb.Eval(ctx, casStatusScript, []string{s.ticketKey(id)},
		string(expected), string(next), s.now().UnixMilli(), s.prefix,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("update ticket %s: %w", id, err)
	}
	return res == 1, nil
}

func (s *Store) BulkUpdate(ctx context.Context, f store.TicketFilter, next models.TicketStatus) (int64, error) {
	if f.QueueID == "" || len(f.Statuses) == 0 {
		return 0, fmt.Errorf("bulk update needs a queue and statuses: %w", status.ErrValidation)
	}
	args := []interface{}{s.prefix, f.QueueID, string(next), s.now().UnixMilli()}
	for _, st := range f.Statuses {
		args = append(args, string(st))
	}
	n, err := s.rdb.Eval(ctx, bulkStatusScript, []string{}, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("bulk update queue %s: %w", f.QueueID, err)
	}
	return n, nil
}

func (s *Store) FindOne(ctx context.Context, f store.TicketFilter) (*models.Ticket, error) {
	tickets, err := s.FindMany(ctx, f, store.SortAscending, 1)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, status.ErrTicketNotFound
	}
	return tickets[0], nil
}

func (s *Store) FindMany(ctx context.Context, f store.TicketFilter, order store.Sort, limit int) ([]*models.Ticket, error) {
	var (
		tickets []*models.Ticket
		err     error
	)
	switch {
	case f.ID != "":
		tickets, err = s.load(ctx, []string{f.ID})
	case f.UserID != "":
		tickets, err = s.findByUser(ctx, f, order, limit)
	default:
		// Status indexes are scored by ticket number, so ordering and the
		// limit are applied before any ticket hash is read.
		tickets, err = s.findIndexed(ctx, s.indexKeys(f), maxScore(f), order, limit)
	}
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if f.Match(t) {
			matched = append(matched, t)
		}
	}
	sortTickets(matched, order)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// findByUser reads the user's active index when the filter only asks for
// waiting or serving tickets, and the full history otherwise. The limit is
// pushed into Redis only when the index alone decides the result.
func (s *Store) findByUser(ctx context.Context, f store.TicketFilter, order store.Sort, limit int) ([]*models.Ticket, error) {
	key := s.userIndexKey(f.UserID)
	exact := len(f.Statuses) == 0
	if onlyActive(f.Statuses) {
		key = s.userActiveIndexKey(f.UserID)
		exact = len(distinct(f.Statuses)) == len(models.ActiveStatuses)
	}
	if f.QueueID != "" || !exact {
		limit = 0
	}
	tickets, err := s.findIndexed(ctx, []string{key}, maxScore(f), order, limit)
	if err != nil {
		return nil, fmt.Errorf("find tickets for user %s: %w", f.UserID, err)
	}
	return tickets, nil
}

func (s *Store) findIndexed(ctx context.Context, keys []string, upper string, order store.Sort, limit int) ([]*models.Ticket, error) {
	desc := "0"
	if order == store.SortDescending {
		desc = "1"
	}
	rows, err := s.rdb.Eval(ctx, findTicketsScript, keys, upper, limit, desc, s.ticketKeyPrefix()).Slice()
	if err != nil {
		return nil, fmt.Errorf("find tickets: %w", err)
	}

	tickets := make([]*models.Ticket, 0, len(rows))
	for _, row := range rows {
		pairs, ok := row.([]interface{})
		if !ok {
			return nil, fmt.Errorf("find tickets: unexpected reply %T", row)
		}
		fields := make(map[string]string, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			fields[fmt.Sprint(pairs[i])] = fmt.Sprint(pairs[i+1])
		}
		t, err := parseTicket(fields)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func onlyActive(statuses []models.TicketStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, st := range statuses {
		if !st.IsActive() {
			return false
		}
	}
	return true
}

func distinct(statuses []models.TicketStatus) map[models.TicketStatus]struct{} {
	set := make(map[models.TicketStatus]struct{}, len(statuses))
	for _, st := range statuses {
		set[st] = struct{}{}
	}
	return set
}

func (s *Store) Count(ctx context.Context, f store.TicketFilter) (int64, error) {
	if f.ID != "" || f.UserID != "" {
		tickets, err := s.FindMany(ctx, f, store.SortAscending, 0)
		if err != nil {
			return 0, err
		}
		return int64(len(tickets)), nil
	}

	var total int64
	for _, key := range s.indexKeys(f) {
		n, err := s.rdb.ZCount(ctx, key, "-inf", maxScore(f)).Result()
		if err != nil {
			return 0, fmt.Errorf("count tickets: %w", err)
		}
		total += n
	}
	return total, nil
}

func (s *Store) indexKeys(f store.TicketFilter) []string {
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = models.AllStatuses
	}
	keys := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if f.QueueID != "" {
			keys = append(keys, s.queueStatusIndexKey(f.QueueID, st))
		} else {
			keys = append(keys, s.statusIndexKey(st))
		}
	}
	return keys
}

func maxScore(f store.TicketFilter) string {
	if f.NumberBelow > 0 {
		return "(" + strconv.FormatInt(f.NumberBelow, 10)
	}
	return "+inf"
}

func (s *Store) load(ctx context.Context, ids []string) ([]*models.Ticket, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.ticketKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load tickets: %w", err)
	}

	tickets := make([]*models.Ticket, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		t, err := parseTicket(fields)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func parseTicket(fields map[string]string) (*models.Ticket, error) {
	number, err := strconv.ParseInt(fields["ticket_number"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: bad ticket_number: %w", fields["id"], err)
	}
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	updated, _ := strconv.ParseInt(fields["updated_at"], 10, 64)
	return &models.Ticket{
		ID:           fields["id"],
		UserID:       fields["user_id"],
		QueueID:      fields["queue_id"],
		TicketNumber: number,
		Status:       models.TicketStatus(fields["status"]),
		CreatedAt:    time.UnixMilli(created).UTC(),
		UpdatedAt:    time.UnixMilli(updated).UTC(),
	}, nil
}

func sortTickets(tickets []*models.Ticket, order store.Sort) {
	sort.Slice(tickets, func(i, j int) bool {
		if order == store.SortDescending {
			return tickets[i].TicketNumber > tickets[j].TicketNumber
		}
		return tickets[i].TicketNumber < tickets[j].TicketNumber
	})
}
