// Package domain holds the typed identifiers shared across the service.
// Distinct types keep an ActionID from ever being passed where an EventID is
// expected; the compiler enforces what code review would otherwise have to.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "civreg/pkg/domain-errors"
)

// EventID is the canonical, server-assigned identifier of an event. It is
// assigned exactly once, on acceptance of the first CREATE action.
type EventID uuid.UUID

// ActionID identifies one immutable entry in an event's history.
type ActionID uuid.UUID

// UserID identifies an authenticated user. Authentication happens upstream;
// the core only ever sees already-verified ids.
type UserID uuid.UUID

// TransactionID is the client-supplied identifier that deduplicates a
// logical submission across retries. Opaque to the server beyond equality.
type TransactionID string

// NewEventID returns a fresh canonical event id.
func NewEventID() EventID { return EventID(uuid.New()) }

// NewActionID returns a fresh action id.
func NewActionID() ActionID { return ActionID(uuid.New()) }

func (id EventID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func (id EventID) String() string  { return uuid.UUID(id).String() }
func (id ActionID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string   { return uuid.UUID(id).String() }

// The id types marshal as canonical UUID strings, not raw byte arrays.

func (id EventID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id ActionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }

// Unmarshaling tolerates the zero UUID: optional references (assignment,
// correction request) round-trip as the zero value.

func (id *EventID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "event id")
	*id = EventID(u)
	return err
}

func (id *ActionID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "action id")
	*id = ActionID(u)
	return err
}

func (id *UserID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b, "user id")
	*id = UserID(u)
	return err
}

func unmarshalUUID(b []byte, what string) (uuid.UUID, error) {
	if len(b) == 0 {
		return uuid.Nil, nil
	}
	u, err := uuid.Parse(string(b))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is not a valid UUID")
	}
	return u, nil
}

// ParseEventID parses a canonical event id. IDs must be valid, non-nil UUIDs.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event id")
	return EventID(u), err
}

// ParseActionID parses an action id.
func ParseActionID(s string) (ActionID, error) {
	u, err := parseUUID(s, "action id")
	return ActionID(u), err
}

// ParseUserID parses a user id.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseTransactionID validates a client transaction id. Anything non-empty
// and reasonably sized is accepted; clients own this namespace.
func ParseTransactionID(s string) (TransactionID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "transaction id must not be empty")
	}
	if len(s) > 128 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "transaction id exceeds 128 characters")
	}
	return TransactionID(s), nil
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must not be the nil UUID")
	}
	return u, nil
}
