package store

import (
	"context"

	"secgate/internal/sqlbuilder"
)

// FieldLookup backs the validation engine's uniqueness/existence rules. The
// query is assembled through the whitelist-checked builder, so a hostile
// table or column name coming out of a ruleset fails the build instead of
// reaching the database.
type FieldLookup struct {
	exec *sqlbuilder.Executor
	wl   sqlbuilder.TableWhitelist
}

func (s *Store) FieldLookup(exec *sqlbuilder.Executor, wl sqlbuilder.TableWhitelist) *FieldLookup {
	return &FieldLookup{exec: exec, wl: wl}
}

func (l *FieldLookup) Exists(ctx context.Context, table, column, value, excludeID string) (bool, error) {
	q := sqlbuilder.NewSelect(ctx, l.wl).
		Columns("id").
		From(table).
		Where(column, "=", sqlbuilder.String(value)).
		Limit(1)
	if excludeID != "" {
		q = q.Where("id", "!=", sqlbuilder.String(excludeID))
	}

	var ids []string
	if err := l.exec.Query(ctx, q, &ids); err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}
