package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"go.etcd.io/bbolt"

	"github.com/mfekit/bff/internal/util"
)

const (
	boltBucket        = "sessions"
	boltAADPrefix     = "session:"
	boltSweepInterval = 5 * time.Minute
)

// BoltStore persists sessions in a local BBolt database, sealed at rest with
// AES-256-GCM. The handle is bound into each envelope as AAD, so a record
// copied under a different key fails to open. The sealing key is supplied by
// the operator and held in a memguard enclave between uses.
//
// Lazy expiry on Get is authoritative; a background sweep additionally trims
// records nobody asks for anymore.
type BoltStore struct {
	db       *bbolt.DB
	key      *memguard.Enclave
	stopOnce sync.Once
	stopCh   chan struct{}
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the database at path. sealKey must be
// exactly 32 bytes; the caller's copy is not retained.
func NewBoltStore(path string, sealKey []byte) (*BoltStore, error) {
	if len(sealKey) != util.AESKeySize {
		return nil, fmt.Errorf("seal key must be exactly %d bytes, got %d", util.AESKeySize, len(sealKey))
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session bucket: %w", err)
	}

	key := make([]byte, util.AESKeySize)
	copy(key, sealKey)
	s := &BoltStore{
		db:     db,
		key:    memguard.NewEnclave(key), // NewEnclave wipes the copy
		stopCh: make(chan struct{}),
	}
	go s.sweepLoop()
	return s, nil
}

// Close stops the sweep goroutine and closes the database.
func (s *BoltStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return s.db.Close()
}

func (s *BoltStore) Create(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sealed, err := s.seal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b.Get([]byte(rec.Handle)) != nil {
			return ErrHandleExists
		}
		return b.Put([]byte(rec.Handle), sealed)
	})
}

func (s *BoltStore) Get(ctx context.Context, handle string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	var sealed []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(boltBucket)).Get([]byte(handle)); v != nil {
			sealed = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return Record{}, fmt.Errorf("reading session: %w", err)
	}
	if sealed == nil {
		return Record{}, ErrNotFound
	}

	rec, err := s.open(handle, sealed)
	if err != nil {
		// Unreadable record: wrong key or corruption. Remove it.
		_ = s.Delete(ctx, handle)
		return Record{}, ErrNotFound
	}
	if rec.Expired(time.Now()) {
		_ = s.Delete(ctx, handle)
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *BoltStore) Touch(ctx context.Context, handle string, expiresAt time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	var rec Record
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		sealed := b.Get([]byte(handle))
		if sealed == nil {
			return ErrNotFound
		}
		var err error
		rec, err = s.open(handle, sealed)
		if err != nil || rec.Expired(time.Now()) {
			_ = b.Delete([]byte(handle))
			return ErrNotFound
		}
		rec.ExpiresAt = expiresAt
		resealed, err := s.seal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(handle), resealed)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *BoltStore) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Delete([]byte(handle))
	})
}

func (s *BoltStore) seal(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	defer util.WipeBytes(data)

	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening seal key: %w", err)
	}
	defer buf.Destroy()

	sealed, err := util.EncryptAESWithAAD(data, buf.Bytes(), []byte(boltAADPrefix+rec.Handle))
	if err != nil {
		return nil, fmt.Errorf("sealing session: %w", err)
	}
	return sealed, nil
}

func (s *BoltStore) open(handle string, sealed []byte) (Record, error) {
	buf, err := s.key.Open()
	if err != nil {
		return Record{}, fmt.Errorf("opening seal key: %w", err)
	}
	defer buf.Destroy()

	data, err := util.DecryptAESWithAAD(sealed, buf.Bytes(), []byte(boltAADPrefix+handle))
	if err != nil {
		return Record{}, err
	}
	defer util.WipeBytes(data)

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding session: %w", err)
	}
	return rec, nil
}

func (s *BoltStore) sweepLoop() {
	ticker := time.NewTicker(boltSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *BoltStore) sweepExpired() {
	now := time.Now()
	_ = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		c := b.Cursor()
		var stale [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rec, err := s.open(string(k), v)
			if err != nil || rec.Expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			_ = b.Delete(k)
		}
		return nil
	})
}
