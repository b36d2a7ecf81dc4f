package status

import "errors"

var (
	ErrValidation = errors.New("request: invalid input")

	ErrQueueNotFound  = errors.New("queue: queue not found")
	ErrQueueInactive  = errors.New("queue: queue is not accepting tickets")
	ErrTicketNotFound = errors.New("ticket: ticket not found")
	ErrNoActiveTicket = errors.New("ticket: no active ticket")

	ErrDuplicateActiveTicket = errors.New("ticket: user already has an active ticket in this queue")
	ErrServeConflict         = errors.New("ticket: lost the race for the next ticket")
	ErrInvalidTransition     = errors.New("ticket: invalid status transition")
	ErrEmptyQueue            = errors.New("queue: no waiting tickets")

	ErrStorageUnavailable = errors.New("storage: unavailable")
	ErrStorageTimeout     = errors.New("storage: timed out")
)

// Kind groups errors the way callers react to them.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInvalidTransition  Kind = "invalid_transition"
	KindEmptyQueue         Kind = "empty_queue"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindStorageTimeout     Kind = "storage_timeout"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrQueueNotFound, KindNotFound},
	{ErrQueueInactive, KindNotFound},
	{ErrTicketNotFound, KindNotFound},
	{ErrNoActiveTicket, KindNotFound},
	{ErrDuplicateActiveTicket, KindConflict},
	{ErrServeConflict, KindConflict},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrEmptyQueue, KindEmptyQueue},
	{ErrStorageTimeout, KindStorageTimeout},
	{ErrStorageUnavailable, KindStorageUnavailable},
}

// KindOf returns the taxonomy kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Retryable reports whether the caller may safely retry the whole operation
// after backing off.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindStorageUnavailable, KindStorageTimeout:
		return true
	}
	return errors.Is(err, ErrServeConflict)
}
