// Package kvstore implements template and points storage in a Badger
// key-value database.
package kvstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/kappatan/kappatan/store"
)

/*
Key structure:
- Templates: 't' × \xff × channel × \xff × name. The value is the
  template body.
- Points: 'p' × \xff × channel × \xff × 8-byte big-endian user ID. The
  value is the balance as a big-endian int64.

Channel and name never contain \xff, so keys are unambiguous, and Badger's
lexicographic iteration over a channel's template prefix yields names in
order.
*/

// Store is a template store backed by a Badger database.
type Store struct {
	db *badger.DB
}

// New returns a store within the given database. The db must remain open
// for the lifetime of the store.
func New(db *badger.DB) *Store {
	return &Store{db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func templateKey(channel, name string) []byte {
	k := make([]byte, 0, 2+len(channel)+1+len(name))
	k = append(k, 't', 0xff)
	k = append(k, channel...)
	k = append(k, 0xff)
	k = append(k, name...)
	return k
}

func pointsKey(channel string, userID int64) []byte {
	k := make([]byte, 0, 2+len(channel)+1+8)
	k = append(k, 'p', 0xff)
	k = append(k, channel...)
	k = append(k, 0xff)
	return binary.BigEndian.AppendUint64(k, uint64(userID))
}

// GetTemplate returns the template body for a command name.
func (s *Store) GetTemplate(ctx context.Context, channel, name string) (string, error) {
	var body string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(templateKey(channel, name))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			body = string(v)
			return nil
		})
	})
	switch err {
	case nil:
		return body, nil
	case badger.ErrKeyNotFound:
		return "", fmt.Errorf("no template %s in %s: %w", name, channel, store.ErrNotFound)
	default:
		return "", fmt.Errorf("couldn't fetch template %s in %s: %w", name, channel, err)
	}
}

// UpsertTemplate creates or replaces the template for a command name.
func (s *Store) UpsertTemplate(ctx context.Context, channel, name, body string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(templateKey(channel, name), []byte(body))
	})
	if err != nil {
		return fmt.Errorf("couldn't save template %s in %s: %w", name, channel, err)
	}
	return nil
}

// DeleteTemplate removes the template for a command name.
func (s *Store) DeleteTemplate(ctx context.Context, channel, name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		k := templateKey(channel, name)
		if _, err := txn.Get(k); err != nil {
			return err
		}
		return txn.Delete(k)
	})
	switch err {
	case nil:
		return nil
	case badger.ErrKeyNotFound:
		return fmt.Errorf("no template %s in %s: %w", name, channel, store.ErrNotFound)
	default:
		return fmt.Errorf("couldn't delete template %s in %s: %w", name, channel, err)
	}
}

// ListTemplates returns the names of all templates defined for a channel.
func (s *Store) ListTemplates(ctx context.Context, channel string) ([]string, error) {
	prefix := templateKey(channel, "")
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			names = append(names, string(bytes.TrimPrefix(k, prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't list templates in %s: %w", channel, err)
	}
	return names, nil
}

// GetPoints returns the points balance for a user.
func (s *Store) GetPoints(ctx context.Context, channel string, userID int64) (int64, error) {
	var points int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pointsKey(channel, userID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("malformed balance of %d bytes", len(v))
			}
			points = int64(binary.BigEndian.Uint64(v))
			return nil
		})
	})
	switch err {
	case nil:
		return points, nil
	case badger.ErrKeyNotFound:
		return 0, fmt.Errorf("no points for %d in %s: %w", userID, channel, store.ErrNotFound)
	default:
		return 0, fmt.Errorf("couldn't fetch points for %d in %s: %w", userID, channel, err)
	}
}

// CreditPoints adds delta to a user's balance, creating the row if needed.
// The read and write happen in one transaction, so concurrent credits to
// the same user serialize rather than losing updates.
func (s *Store) CreditPoints(ctx context.Context, channel string, userID, delta int64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		k := pointsKey(channel, userID)
		var cur int64
		item, err := txn.Get(k)
		switch err {
		case nil:
			err := item.Value(func(v []byte) error {
				if len(v) != 8 {
					return fmt.Errorf("malformed balance of %d bytes", len(v))
				}
				cur = int64(binary.BigEndian.Uint64(v))
				return nil
			})
			if err != nil {
				return err
			}
		case badger.ErrKeyNotFound: // do nothing
		default:
			return err
		}
		return txn.Set(k, binary.BigEndian.AppendUint64(nil, uint64(cur+delta)))
	})
	if err != nil {
		return fmt.Errorf("couldn't credit %d points to %d in %s: %w", delta, userID, channel, err)
	}
	return nil
}

var _ store.Interface = (*Store)(nil)
