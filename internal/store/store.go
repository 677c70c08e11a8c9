package store

import (
	"context"

	"gorm.io/gorm"
)

// Store is the root handle for every table-level accessor. Accessors built
// from a transactional Store run inside that transaction, which is what the
// session cap enforcement relies on.
type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{DB: db} }

// WithTx runs fn inside a single database transaction. The callback gets a
// Store bound to the transaction; any error rolls the whole unit back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx})
	})
}
