package upload

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const sessionBucket = "upload_sessions"

// Store persists upload sessions
type Store interface {
	// Save writes a session, replacing any previous version
	Save(session *Session) error

	// Get retrieves a session by ID
	Get(id string) (*Session, error)

	// Update applies fn to a session atomically. When fn returns an error
	// nothing is written.
	Update(id string, fn func(*Session) error) (*Session, error)

	// Delete removes a session
	Delete(id string) error

	// Close closes the database connection
	Close() error
}

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the session database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Save writes a session
func (b *BoltStore) Save(session *Session) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket([]byte(sessionBucket)), session)
	})
}

// Get retrieves a session by ID
func (b *BoltStore) Get(id string) (*Session, error) {
	var session *Session
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		session, err = get(tx.Bucket([]byte(sessionBucket)), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Update reads, modifies and writes a session in one transaction
func (b *BoltStore) Update(id string, fn func(*Session) error) (*Session, error) {
	var session *Session
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		var err error
		session, err = get(bucket, id)
		if err != nil {
			return err
		}
		if err := fn(session); err != nil {
			return err
		}
		return put(bucket, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes a session
func (b *BoltStore) Delete(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func get(bucket *bbolt.Bucket, id string) (*Session, error) {
	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &session, nil
}

func put(bucket *bbolt.Bucket, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	return bucket.Put([]byte(session.ID), data)
}
