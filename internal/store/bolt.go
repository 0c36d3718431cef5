package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var conversationsBucket = []byte("conversations")

type record struct {
	Turns     History   `json:"turns"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BoltStore keeps histories in a bbolt file so they survive restarts.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating conversations bucket: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) GetOrInit(sender string) (History, error) {
	var turns History
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		rec, err := getRecord(b, sender)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &record{Turns: newHistory()}
		}
		rec.UpdatedAt = s.now()
		turns = rec.Turns
		return putRecord(b, sender, rec)
	})
	return turns, err
}

func (s *BoltStore) Append(sender string, role Role, content string) error {
	return s.update(sender, func(rec *record) {
		rec.Turns = append(rec.Turns, Turn{Role: role, Content: content})
	})
}

func (s *BoltStore) Truncate(sender string, maxLen int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		rec, err := getRecord(b, sender)
		if err != nil || rec == nil {
			return err
		}
		rec.Turns = tail(rec.Turns, maxLen)
		return putRecord(b, sender, rec)
	})
}

func (s *BoltStore) Evict(maxIdle time.Duration) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		now := s.now()

		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding history %q: %w", k, err)
			}
			if now.Sub(rec.UpdatedAt) > maxIdle {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// bbolt forbids deleting while iterating with ForEach
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) update(sender string, fn func(rec *record)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		rec, err := getRecord(b, sender)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &record{}
		}
		fn(rec)
		rec.UpdatedAt = s.now()
		return putRecord(b, sender, rec)
	})
}

func getRecord(b *bolt.Bucket, sender string) (*record, error) {
	v := b.Get([]byte(sender))
	if v == nil {
		return nil, nil
	}
	var rec record
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("decoding history for %s: %w", sender, err)
	}
	return &rec, nil
}

func putRecord(b *bolt.Bucket, sender string, rec *record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(sender), data)
}
