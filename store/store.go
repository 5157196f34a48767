// Package store describes persistent storage of channel command templates
// and the points ledger.
package store

import (
	"context"
	"errors"
)

// ErrNotFound indicates that a requested template or points row does not
// exist. It must be checked using [errors.Is].
var ErrNotFound = errors.New("not found")

// Interface is the set of operations the bot requires from its backing
// store. All operations are scoped to a channel. Implementations must
// serialize conflicting writes to the same row; last-write-wins is
// sufficient.
type Interface interface {
	// GetTemplate returns the template body for a command name.
	// The error wraps ErrNotFound if no such template exists.
	GetTemplate(ctx context.Context, channel, name string) (string, error)
	// UpsertTemplate creates or replaces the template for a command name.
	UpsertTemplate(ctx context.Context, channel, name, body string) error
	// DeleteTemplate removes the template for a command name.
	// The error wraps ErrNotFound if no such template exists.
	DeleteTemplate(ctx context.Context, channel, name string) error
	// ListTemplates returns the names of all templates defined for a
	// channel, in name order.
	ListTemplates(ctx context.Context, channel string) ([]string, error)

	// GetPoints returns the points balance for a user.
	// The error wraps ErrNotFound if the user has no balance row.
	GetPoints(ctx context.Context, channel string, userID int64) (int64, error)
	// CreditPoints adds delta to a user's balance, creating the row if it
	// does not exist. Delta may be negative.
	CreditPoints(ctx context.Context, channel string, userID, delta int64) error
}
