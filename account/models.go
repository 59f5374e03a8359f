// Package account holds passenger accounts, their transit cards, and the
// balance rules. It is the only place balance arithmetic lives; store
// implementations apply Debit/Credit inside the same atomic unit as the
// transaction that justifies the change.
package account

import (
	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/types"
)

// Role classifies a passenger account.
type Role string

const (
	RolePassenger Role = "passenger"
	RoleAdmin     Role = "admin"
)

// User is a passenger account with a prepaid balance.
// Balance is never mutated outside Debit/Credit.
type User struct {
	types.Entity
	ID      id.UserID   `json:"id"`
	Email   string      `json:"email"`
	Name    string      `json:"name,omitempty"`
	Role    Role        `json:"role"`
	Balance types.Money `json:"balance"`
}

// NewUser creates a passenger account with a zero ZAR balance.
func NewUser(email, name string) *User {
	return &User{
		Entity:  types.NewEntity(),
		ID:      id.NewUserID(),
		Email:   email,
		Name:    name,
		Role:    RolePassenger,
		Balance: types.Zero("zar"),
	}
}

// Card is an opaque transit token bound to exactly one user.
// Unlinking revokes it without deleting the record.
type Card struct {
	types.Entity
	ID     id.CardID `json:"id"`
	Token  string    `json:"token"`
	UserID id.UserID `json:"user_id"`
	Label  string    `json:"label,omitempty"`
	Linked bool      `json:"linked"`
}

// Usable reports whether the card belongs to userID and has not been
// revoked.
func (c *Card) Usable(userID id.UserID) bool {
	return c.Linked && c.UserID.String() == userID.String()
}
