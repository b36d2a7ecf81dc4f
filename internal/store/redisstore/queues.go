package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"queue-ticket/internal/status"
	"queue-ticket/models"

	"github.com/redis/go-redis/v9"
)

func (s *Store) InsertQueue(ctx context.Context, q *models.Queue) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.queueKey(q.ID), map[string]interface{}{
			"id":         q.ID,
			"name":       q.Name,
			"is_active":  strconv.FormatBool(q.IsActive),
			"created_at": q.CreatedAt.UnixMilli(),
		})
		pipe.ZAdd(ctx, s.queuesIndexKey(), redis.Z{
			Score:  float64(q.CreatedAt.UnixMilli()),
			Member: q.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert queue: %w", err)
	}
	return nil
}

func (s *Store) GetQueue(ctx context.Context, id string) (*models.Queue, error) {
	fields, err := s.rdb.HGetAll(ctx, s.queueKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get queue %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, status.ErrQueueNotFound
	}
	return parseQueue(fields), nil
}

func (s *Store) ListQueues(ctx context.Context, activeOnly bool) ([]*models.Queue, error) {
	ids, err := s.rdb.ZRange(ctx, s.queuesIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Queue{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.queueKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}

	queues := make([]*models.Queue, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		q := parseQueue(fields)
		if activeOnly && !q.IsActive {
			continue
		}
		queues = append(queues, q)
	}
	return queues, nil
}

func (s *Store) SetQueueActive(ctx context.Context, id string, active bool) error {
	ok, err := s.rdb.Eval(ctx, setQueueActiveScript, []string{s.queueKey(id)}, strconv.FormatBool(active)).Int64()
	if err != nil {
		return fmt.Errorf("update queue %s: %w", id, err)
	}
	if ok == 0 {
		return status.ErrQueueNotFound
	}
	return nil
}

func (s *Store) DeleteQueue(ctx context.Context, id string) error {
	ok, err := s.rdb.Eval(ctx, deleteQueueScript, []string{s.queueKey(id), s.queuesIndexKey()}, id).Int64()
	if err != nil {
		return fmt.Errorf("delete queue %s: %w", id, err)
	}
	if ok == 0 {
		return status.ErrQueueNotFound
	}
	return nil
}

func parseQueue(fields map[string]string) *models.Queue {
	active, _ := strconv.ParseBool(fields["is_active"])
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return &models.Queue{
		ID:        fields["id"],
		Name:      fields["name"],
		IsActive:  active,
		CreatedAt: time.UnixMilli(created).UTC(),
	}
}
