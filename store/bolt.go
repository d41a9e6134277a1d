package store

import (
	"context"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/nathoo/rivecore/engine/save"
	"github.com/nathoo/rivecore/types"
)

var sessionsBucket = []byte("sessions")

// Bolt is a bbolt-backed store. Each session is one JSON snapshot keyed
// by user id.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (or creates) a bolt database at path.
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

// Load retrieves a session by user id.
func (b *Bolt) Load(ctx context.Context, userID string) (*types.Session, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(sessionsBucket).Get([]byte(userID)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNotFound
	}
	return save.Decode(data)
}

// Save stores a session.
func (b *Bolt) Save(ctx context.Context, s *types.Session) error {
	data, err := save.Save(s)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(s.UserID), data)
	})
}

// Delete removes a session.
func (b *Bolt) Delete(ctx context.Context, userID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(userID))
	})
}

// Users lists the stored user ids in key order.
func (b *Bolt) Users(ctx context.Context) ([]string, error) {
	var users []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, _ []byte) error {
			users = append(users, string(k))
			return nil
		})
	})
	return users, err
}

// Close closes the database.
func (b *Bolt) Close() error {
	return b.db.Close()
}
