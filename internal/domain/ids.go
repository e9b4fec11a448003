package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// EntityID is a globally-unique opaque 128-bit identifier. Every entity in
// the core (accounts, holds, transactions, workflows, audit entries) is
// addressed by one of these rather than by a database-assigned sequence,
// so identifiers survive a change of storage backend unchanged.
type EntityID uuid.UUID

// NilEntityID is the zero value, used for "no id assigned yet" and for
// optional foreign-key fields that are absent.
var NilEntityID = EntityID(uuid.Nil)

// NewEntityID allocates a fresh random identifier.
func NewEntityID() EntityID {
	return EntityID(uuid.New())
}

// ParseEntityID parses a canonical UUID string into an EntityID.
func ParseEntityID(s string) (EntityID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilEntityID, fmt.Errorf("parse entity id: %w", err)
	}
	return EntityID(id), nil
}

func (id EntityID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the id is the zero value.
func (id EntityID) IsNil() bool {
	return id == NilEntityID
}

func (id EntityID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *EntityID) UnmarshalText(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(data); err != nil {
		return err
	}
	*id = EntityID(u)
	return nil
}

// Value implements driver.Valuer so EntityID can be bound directly to pgx
// query parameters.
func (id EntityID) Value() (driver.Value, error) {
	return uuid.UUID(id).String(), nil
}

// Scan implements sql.Scanner.
func (id *EntityID) Scan(src interface{}) error {
	var u uuid.UUID
	if err := u.Scan(src); err != nil {
		return err
	}
	*id = EntityID(u)
	return nil
}

// PersonID identifies a row in the external person/identity registry.
// The core never resolves it to a name or profile; it is stored and
// compared only.
type PersonID = EntityID
