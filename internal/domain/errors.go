package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCategoryMissing     = errors.New("ticket category missing")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrNotATicketChannel   = errors.New("not a ticket channel")
	ErrTicketOwnerNotFound = errors.New("ticket owner not found")
	ErrDeliveryForbidden   = errors.New("direct message delivery forbidden")
	ErrOperationFailed     = errors.New("operation failed")
)

// TicketError pairs a taxonomy sentinel with the text shown to whoever
// triggered the handler.
type TicketError struct {
	Kind        error
	UserMessage string
	Err         error
}

func (e *TicketError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *TicketError) Is(target error) bool {
	return target == e.Kind
}

func (e *TicketError) Unwrap() error {
	return e.Err
}

func NewTicketError(kind error, userMessage string, err error) *TicketError {
	return &TicketError{Kind: kind, UserMessage: userMessage, Err: err}
}

// UserMessage extracts the user-visible text from err, or fallback when err
// carries none.
func UserMessage(err error, fallback string) string {
	var ticketErr *TicketError
	if errors.As(err, &ticketErr) && ticketErr.UserMessage != "" {
		return ticketErr.UserMessage
	}
	return fallback
}
