// Package storage provides a bbolt-backed session store for the Telegram
// client.  The MTProto session (auth key, DC, salt) must survive restarts or
// the account has to log in again; nothing else is persisted here.
package storage

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/session"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketSession = []byte("session")
	keySession    = []byte("data")
)

// BoltSession implements [session.Storage] on top of a bbolt database.
type BoltSession struct {
	db *bolt.DB
}

var _ session.Storage = (*BoltSession)(nil)

// OpenBoltSession opens (creating if necessary) the session database at path.
func OpenBoltSession(path string) (*BoltSession, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open session database")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create session bucket")
	}
	return &BoltSession{db: db}, nil
}

// LoadSession returns the stored session data, or [session.ErrNotFound] if no
// session has been stored yet.
func (s *BoltSession) LoadSession(_ context.Context) ([]byte, error) {
	var data []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSession).Get(keySession)
		if v == nil {
			return session.ErrNotFound
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	}); err != nil {
		return nil, err
	}
	return data, nil
}

// StoreSession overwrites the stored session data.
func (s *BoltSession) StoreSession(_ context.Context, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keySession, data)
	})
}

// Close closes the underlying database.
func (s *BoltSession) Close() error {
	return s.db.Close()
}
