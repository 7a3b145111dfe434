package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var (
	sessionBucket  = []byte("session")
	credentialsKey = []byte("credentials")
)

// Bolt is a Store backed by a BBolt file readable only by the current user.
type Bolt struct {
	db *bbolt.DB
}

var _ Store = (*Bolt)(nil)

// OpenBolt opens (creating if needed) the credential file at path.
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating credentials directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening credentials db: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close closes the underlying BBolt database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Load implements Store
func (b *Bolt) Load(ctx context.Context) (*Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var creds Credentials
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(sessionBucket)
		if bucket == nil {
			return ErrNotFound
		}
		data := bucket.Get(credentialsKey)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &creds)
	})
	if err != nil {
		return nil, err
	}
	if creds.RefreshToken == "" {
		return nil, ErrNotFound
	}
	return &creds, nil
}

// Save implements Store
func (b *Bolt) Save(ctx context.Context, creds *Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(sessionBucket)
		if err != nil {
			return err
		}
		return bucket.Put(credentialsKey, data)
	})
}

// Clear implements Store. Clearing an empty store is not an error.
func (b *Bolt) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(sessionBucket)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(credentialsKey)
	})
}
