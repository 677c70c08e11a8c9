package sqlbuilder

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"secgate/internal/domain"
)

type statement interface {
	ToSQL() (string, []Binding, error)
}

// Executor runs built statements through gorm. Driver errors are logged and
// surfaced as the generic domain.ErrDatabase so callers never see driver
// internals.
type Executor struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewExecutor(db *gorm.DB, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{db: db, log: log}
}

// Query runs a SELECT and scans rows into dest.
func (e *Executor) Query(ctx context.Context, stmt statement, dest any) error {
	sql, args, err := stmt.ToSQL()
	if err != nil {
		return err
	}
	if err := e.db.WithContext(ctx).Raw(sql, bindingValues(args)...).Scan(dest).Error; err != nil {
		e.log.Error("query failed", "error", err)
		return domain.ErrDatabase
	}
	return nil
}

// Exec runs a mutating statement and reports rows affected.
func (e *Executor) Exec(ctx context.Context, stmt statement) (int64, error) {
	sql, args, err := stmt.ToSQL()
	if err != nil {
		return 0, err
	}
	tx := e.db.WithContext(ctx).Exec(sql, bindingValues(args)...)
	if tx.Error != nil {
		e.log.Error("exec failed", "error", tx.Error)
		return 0, domain.ErrDatabase
	}
	return tx.RowsAffected, nil
}
