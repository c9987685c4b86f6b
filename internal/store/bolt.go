package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"docvat/internal/logger"
)

// BoltStore keeps one bucket per database id, keyed by page id, with
// JSON-encoded pages as values.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
	log zerolog.Logger
}

// OpenBolt opens or creates the database file at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}

	return &BoltStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
		log: logger.WithComponent("store").With().Str("path", path).Logger(),
	}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SavePage stores props as a new page and returns its id.
func (s *BoltStore) SavePage(ctx context.Context, databaseID string, props Properties) (string, error) {
	if err := checkRequest(ctx, databaseID); err != nil {
		return "", err
	}

	now := s.now()
	page := Page{
		ID:         uuid.NewString(),
		DatabaseID: databaseID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Properties: props,
	}

	data, err := json.Marshal(page)
	if err != nil {
		return "", fmt.Errorf("encoding page: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(databaseID))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(page.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("saving page in %s: %w", databaseID, err)
	}

	s.log.Debug().
		Str("database", databaseID).
		Str("page_id", page.ID).
		Msg("Page saved")

	return page.ID, nil
}

// GetPage loads one page.
func (s *BoltStore) GetPage(ctx context.Context, databaseID, id string) (*Page, error) {
	if err := checkRequest(ctx, databaseID); err != nil {
		return nil, err
	}

	var page Page
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(databaseID))
		if bucket == nil {
			return ErrNotFound
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &page)
	})
	if err != nil {
		return nil, fmt.Errorf("loading page %s from %s: %w", id, databaseID, err)
	}
	return &page, nil
}

// QueryPages scans a database, filters, then sorts.
func (s *BoltStore) QueryPages(ctx context.Context, databaseID string, filter Filter, order Sort) ([]Page, error) {
	if err := checkRequest(ctx, databaseID); err != nil {
		return nil, err
	}

	pages := []Page{}
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(databaseID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, data []byte) error {
			var page Page
			if err := json.Unmarshal(data, &page); err != nil {
				return err
			}
			if filter.Matches(page) {
				pages = append(pages, page)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", databaseID, err)
	}

	order.Apply(pages)
	return pages, nil
}

// UpdatePage merges props into an existing page.
func (s *BoltStore) UpdatePage(ctx context.Context, databaseID, id string, props Properties) error {
	if err := checkRequest(ctx, databaseID); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(databaseID))
		if bucket == nil {
			return ErrNotFound
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var page Page
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		if page.Properties == nil {
			page.Properties = Properties{}
		}
		for k, v := range props {
			page.Properties[k] = v
		}
		page.UpdatedAt = s.now()

		updated, err := json.Marshal(page)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), updated)
	})
	if err != nil {
		return fmt.Errorf("updating page %s in %s: %w", id, databaseID, err)
	}
	return nil
}

func checkRequest(ctx context.Context, databaseID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if databaseID == "" {
		return ErrInvalidDatabase
	}
	return nil
}
