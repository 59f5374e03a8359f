package account

import (
	"context"

	"github.com/mzansipass/transit/id"
)

// Store is the account slice of the unified storage interface.
// Balance mutations are deliberately absent: they happen only inside the
// guarded atomic units declared on the unified store.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, userID id.UserID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	CreateCard(ctx context.Context, c *Card) error
	GetCardByToken(ctx context.Context, token string) (*Card, error)
	SetCardLinked(ctx context.Context, cardID id.CardID, linked bool) error
}
