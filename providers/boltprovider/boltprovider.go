// Package boltprovider gives the agent binary a local on-disk cache of the
// last Save() blob it produced for each document, so a restarted agent
// resumes from its last known state instead of starting empty.
package boltprovider

import (
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("documents")

// Cache is a bbolt-backed key-value store mapping document ID to its last
// saved bytes.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bolt file at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Put stores docID's saved state, overwriting any previous value.
func (c *Cache) Put(docID string, state []byte) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(docID), state)
	})
}

// Get returns docID's cached state, or ok=false if nothing has been cached
// for it yet.
func (c *Cache) Get(docID string) (state []byte, ok bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(docID))
		if v != nil {
			state = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return state, state != nil, nil
}

// Close closes the underlying bolt file.
func (c *Cache) Close() error {
	return c.db.Close()
}
