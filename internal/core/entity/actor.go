package entity

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"backoffice/internal/core/id"
)

// ActorKind tells who performed a mutation.
type ActorKind string

const (
	ActorStaff    ActorKind = "staff"
	ActorSupplier ActorKind = "supplier"
	ActorSystem   ActorKind = "system"
)

// Actor identifies the performer of a stock or order mutation.
// Every core operation receives it explicitly; nothing reads the current user from ambient state.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id"`
}

// StaffActor is an authenticated back-office user.
func StaffActor(userID string) Actor {
	return Actor{Kind: ActorStaff, ID: userID}
}

// SupplierActor is an external counterparty acting through a capability token.
func SupplierActor(supplierID id.ID) Actor {
	return Actor{Kind: ActorSupplier, ID: supplierID.String()}
}

// SystemActor is an automated caller such as the payment webhook.
func SystemActor(name string) Actor {
	return Actor{Kind: ActorSystem, ID: name}
}

func (a Actor) IsZero() bool {
	return a.Kind == "" || a.ID == ""
}

// String renders the actor as "kind:id", the persisted form.
func (a Actor) String() string {
	if a.IsZero() {
		return ""
	}
	return string(a.Kind) + ":" + a.ID
}

// ParseActor is the inverse of Actor.String.
func ParseActor(s string) (Actor, error) {
	kind, ref, ok := strings.Cut(s, ":")
	if !ok || ref == "" {
		return Actor{}, fmt.Errorf("malformed actor %q", s)
	}
	switch ActorKind(kind) {
	case ActorStaff, ActorSupplier, ActorSystem:
		return Actor{Kind: ActorKind(kind), ID: ref}, nil
	}
	return Actor{}, fmt.Errorf("unknown actor kind %q", kind)
}

// Value implements driver.Valuer.
func (a Actor) Value() (driver.Value, error) {
	if a.IsZero() {
		return nil, nil
	}
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Actor) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Actor{}
		return nil
	case string:
		parsed, err := ParseActor(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []byte:
		return a.Scan(string(v))
	}
	return fmt.Errorf("cannot scan %T into Actor", src)
}
