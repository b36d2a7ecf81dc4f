package redisstore

import (
	"fmt"

	"queue-ticket/models"
)

func (s *Store) counterKey(name string) string {
	return fmt.Sprintf("%s:counter:%s", s.prefix, name)
}

func (s *Store) ticketKey(id string) string {
	return fmt.Sprintf("%s:ticket:%s", s.prefix, id)
}

func (s *Store) statusIndexKey(st models.TicketStatus) string {
	return fmt.Sprintf("%s:tickets:%s", s.prefix, st)
}

func (s *Store) queueStatusIndexKey(queueID string, st models.TicketStatus) string {
	return fmt.Sprintf("%s:queue:%s:tickets:%s", s.prefix, queueID, st)
}

func (s *Store) userIndexKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:tickets", s.prefix, userID)
}

// userActiveIndexKey holds the user's waiting and serving tickets only.
func (s *Store) userActiveIndexKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:active", s.prefix, userID)
}

func (s *Store) ticketKeyPrefix() string {
	return s.prefix + ":ticket:"
}

func (s *Store) activeGuardKey(queueID, userID string) string {
	return fmt.Sprintf("%s:active:%s:%s", s.prefix, queueID, userID)
}

func (s *Store) queueKey(id string) string {
	return fmt.Sprintf("%s:queue:%s", s.prefix, id)
}

func (s *Store) queuesIndexKey() string {
	return fmt.Sprintf("%s:queues", s.prefix)
}
