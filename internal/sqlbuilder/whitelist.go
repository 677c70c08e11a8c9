package sqlbuilder

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

var columnPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

var allowedOperators = map[string]struct{}{
	"=": {}, "!=": {}, "<>": {}, "<": {}, ">": {}, "<=": {}, ">=": {},
	"LIKE": {}, "NOT LIKE": {}, "IN": {}, "NOT IN": {}, "BETWEEN": {},
	"IS NULL": {}, "IS NOT NULL": {},
}

func validColumn(name string) bool { return columnPattern.MatchString(name) }

func normalizeOperator(op string) (string, bool) {
	up := strings.ToUpper(strings.Join(strings.Fields(op), " "))
	_, ok := allowedOperators[up]
	return up, ok
}

// TableWhitelist answers whether a table may appear in a built statement.
type TableWhitelist interface {
	Allowed(ctx context.Context, table string) bool
}

// StaticWhitelist is a fixed known-good set, used in tests and for callers
// that do not want schema introspection.
type StaticWhitelist map[string]struct{}

func NewStaticWhitelist(tables ...string) StaticWhitelist {
	w := make(StaticWhitelist, len(tables))
	for _, t := range tables {
		w[t] = struct{}{}
	}
	return w
}

func (w StaticWhitelist) Allowed(_ context.Context, table string) bool {
	_, ok := w[table]
	return ok
}

const whitelistTTL = time.Hour

// Introspector loads the table set from information_schema once and caches
// it for about an hour; a second lookup race refreshing concurrently is
// harmless (both read the same schema).
type Introspector struct {
	db *gorm.DB

	mu        sync.Mutex
	tables    map[string]struct{}
	fetchedAt time.Time
	now       func() time.Time
}

func NewIntrospector(db *gorm.DB) *Introspector {
	return &Introspector{db: db, now: time.Now}
}

func (in *Introspector) Allowed(ctx context.Context, table string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.tables == nil || in.now().Sub(in.fetchedAt) > whitelistTTL {
		if err := in.refresh(ctx); err != nil {
			// Fail closed: without a whitelist nothing is allowed.
			return false
		}
	}
	_, ok := in.tables[table]
	return ok
}

func (in *Introspector) refresh(ctx context.Context) error {
	var names []string
	err := in.db.WithContext(ctx).
		Raw("SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema()").
		Scan(&names).Error
	if err != nil {
		return err
	}
	tables := make(map[string]struct{}, len(names))
	for _, n := range names {
		tables[n] = struct{}{}
	}
	in.tables = tables
	in.fetchedAt = in.now()
	return nil
}
