// Package sqlbuilder assembles parameter-bound SQL from whitelist-validated
// identifiers. Identifiers and operators are checked on every call; values
// are never concatenated into the template, only bound.
package sqlbuilder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrBadTable    = errors.New("table not in whitelist")
	ErrBadColumn   = errors.New("invalid column identifier")
	ErrBadOperator = errors.New("operator not allowed")
	ErrEmptyQuery  = errors.New("nothing to build")
)

type whereClause struct {
	expr string // placeholders already embedded, identifiers validated
	args []Binding
}

type conditions struct {
	ctx    context.Context
	wl     TableWhitelist
	wheres []whereClause
	err    error
}

func (c *conditions) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *conditions) checkTable(table string) bool {
	if !validColumn(table) || (c.wl != nil && !c.wl.Allowed(c.ctx, table)) {
		c.fail(fmt.Errorf("%w: %q", ErrBadTable, table))
		return false
	}
	return true
}

func (c *conditions) checkColumn(col string) bool {
	if !validColumn(col) {
		c.fail(fmt.Errorf("%w: %q", ErrBadColumn, col))
		return false
	}
	return true
}

func (c *conditions) where(column, operator string, values ...Binding) {
	if !c.checkColumn(column) {
		return
	}
	op, ok := normalizeOperator(operator)
	if !ok {
		c.fail(fmt.Errorf("%w: %q", ErrBadOperator, operator))
		return
	}
	switch op {
	case "IS NULL", "IS NOT NULL":
		c.wheres = append(c.wheres, whereClause{expr: column + " " + op})
	case "IN", "NOT IN":
		if len(values) == 0 {
			c.fail(fmt.Errorf("%w: %s needs values", ErrBadOperator, op))
			return
		}
		ph := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		c.wheres = append(c.wheres, whereClause{
			expr: column + " " + op + " (" + ph + ")",
			args: values,
		})
	case "BETWEEN":
		if len(values) != 2 {
			c.fail(fmt.Errorf("%w: BETWEEN needs two values", ErrBadOperator))
			return
		}
		c.wheres = append(c.wheres, whereClause{
			expr: column + " BETWEEN ? AND ?",
			args: values,
		})
	default:
		if len(values) != 1 {
			c.fail(fmt.Errorf("%w: %s needs one value", ErrBadOperator, op))
			return
		}
		c.wheres = append(c.wheres, whereClause{
			expr: column + " " + op + " ?",
			args: values,
		})
	}
}

func (c *conditions) whereSQL() (string, []Binding) {
	if len(c.wheres) == 0 {
		return "", nil
	}
	exprs := make([]string, len(c.wheres))
	var args []Binding
	for i, w := range c.wheres {
		exprs[i] = w.expr
		args = append(args, w.args...)
	}
	return " WHERE " + strings.Join(exprs, " AND "), args
}

// ---- SELECT ----

type Select struct {
	conditions
	table   string
	columns []string
	joins   []string
	groupBy []string
	having  []whereClause
	orderBy []string
	limit   int
	offset  int
}

func NewSelect(ctx context.Context, wl TableWhitelist) *Select {
	return &Select{conditions: conditions{ctx: ctx, wl: wl}, limit: -1, offset: -1}
}

func (s *Select) Columns(cols ...string) *Select {
	for _, col := range cols {
		if col == "*" {
			s.columns = append(s.columns, col)
			continue
		}
		if s.checkColumn(col) {
			s.columns = append(s.columns, col)
		}
	}
	return s
}

func (s *Select) From(table string) *Select {
	if s.checkTable(table) {
		s.table = table
	}
	return s
}

func (s *Select) Join(table, leftColumn, rightColumn string) *Select {
	return s.join("JOIN", table, leftColumn, rightColumn)
}

func (s *Select) LeftJoin(table, leftColumn, rightColumn string) *Select {
	return s.join("LEFT JOIN", table, leftColumn, rightColumn)
}

func (s *Select) join(kind, table, left, right string) *Select {
	if s.checkTable(table) && s.checkColumn(left) && s.checkColumn(right) {
		s.joins = append(s.joins, fmt.Sprintf("%s %s ON %s = %s", kind, table, left, right))
	}
	return s
}

func (s *Select) Where(column, operator string, value Binding) *Select {
	s.where(column, operator, value)
	return s
}

func (s *Select) WhereIn(column string, values ...Binding) *Select {
	s.where(column, "IN", values...)
	return s
}

func (s *Select) WhereBetween(column string, lo, hi Binding) *Select {
	s.where(column, "BETWEEN", lo, hi)
	return s
}

func (s *Select) WhereNull(column string) *Select {
	s.where(column, "IS NULL")
	return s
}

func (s *Select) WhereNotNull(column string) *Select {
	s.where(column, "IS NOT NULL")
	return s
}

func (s *Select) GroupBy(cols ...string) *Select {
	for _, col := range cols {
		if s.checkColumn(col) {
			s.groupBy = append(s.groupBy, col)
		}
	}
	return s
}

func (s *Select) Having(column, operator string, value Binding) *Select {
	if !s.checkColumn(column) {
		return s
	}
	op, ok := normalizeOperator(operator)
	if !ok {
		s.fail(fmt.Errorf("%w: %q", ErrBadOperator, operator))
		return s
	}
	s.having = append(s.having, whereClause{expr: column + " " + op + " ?", args: []Binding{value}})
	return s
}

func (s *Select) OrderBy(column string, desc bool) *Select {
	if s.checkColumn(column) {
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		s.orderBy = append(s.orderBy, column+" "+dir)
	}
	return s
}

func (s *Select) Limit(n int) *Select { s.limit = n; return s }
func (s *Select) Offset(n int) *Select { s.offset = n; return s }

// ToSQL assembles the template in the fixed order FROM, JOIN, WHERE,
// GROUP BY, HAVING, ORDER BY, LIMIT/OFFSET, then runs the defense-in-depth
// statement guard.
func (s *Select) ToSQL() (string, []Binding, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	if s.table == "" {
		return "", nil, ErrEmptyQuery
	}
	cols := "*"
	if len(s.columns) > 0 {
		cols = strings.Join(s.columns, ", ")
	}
	var b strings.Builder
	b.WriteString("SELECT " + cols + " FROM " + s.table)
	for _, j := range s.joins {
		b.WriteString(" " + j)
	}
	whereSQL, args := s.whereSQL()
	b.WriteString(whereSQL)
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY " + strings.Join(s.groupBy, ", "))
	}
	if len(s.having) > 0 {
		exprs := make([]string, len(s.having))
		for i, h := range s.having {
			exprs[i] = h.expr
			args = append(args, h.args...)
		}
		b.WriteString(" HAVING " + strings.Join(exprs, " AND "))
	}
	if len(s.orderBy) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(s.orderBy, ", "))
	}
	if s.limit >= 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(s.limit))
	}
	if s.offset >= 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(s.offset))
	}
	sql := b.String()
	if err := ValidateSQL(sql); err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

// ---- INSERT ----

type Insert struct {
	conditions
	table   string
	columns []string
	values  []Binding
}

func NewInsert(ctx context.Context, wl TableWhitelist) *Insert {
	return &Insert{conditions: conditions{ctx: ctx, wl: wl}}
}

func (i *Insert) Into(table string) *Insert {
	if i.checkTable(table) {
		i.table = table
	}
	return i
}

func (i *Insert) Set(column string, value Binding) *Insert {
	if i.checkColumn(column) {
		i.columns = append(i.columns, column)
		i.values = append(i.values, value)
	}
	return i
}

func (i *Insert) ToSQL() (string, []Binding, error) {
	if i.err != nil {
		return "", nil, i.err
	}
	if i.table == "" || len(i.columns) == 0 {
		return "", nil, ErrEmptyQuery
	}
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(i.columns)), ", ")
	sql := "INSERT INTO " + i.table + " (" + strings.Join(i.columns, ", ") + ") VALUES (" + ph + ")"
	if err := ValidateSQL(sql); err != nil {
		return "", nil, err
	}
	return sql, i.values, nil
}

// ---- UPDATE ----

type Update struct {
	conditions
	table   string
	setCols []string
	setVals []Binding
}

func NewUpdate(ctx context.Context, wl TableWhitelist) *Update {
	return &Update{conditions: conditions{ctx: ctx, wl: wl}}
}

func (u *Update) Table(table string) *Update {
	if u.checkTable(table) {
		u.table = table
	}
	return u
}

func (u *Update) Set(column string, value Binding) *Update {
	if u.checkColumn(column) {
		u.setCols = append(u.setCols, column)
		u.setVals = append(u.setVals, value)
	}
	return u
}

func (u *Update) Where(column, operator string, value Binding) *Update {
	u.where(column, operator, value)
	return u
}

func (u *Update) WhereNull(column string) *Update {
	u.where(column, "IS NULL")
	return u
}

func (u *Update) ToSQL() (string, []Binding, error) {
	if u.err != nil {
		return "", nil, u.err
	}
	if u.table == "" || len(u.setCols) == 0 {
		return "", nil, ErrEmptyQuery
	}
	sets := make([]string, len(u.setCols))
	for idx, col := range u.setCols {
		sets[idx] = col + " = ?"
	}
	sql := "UPDATE " + u.table + " SET " + strings.Join(sets, ", ")
	args := append([]Binding(nil), u.setVals...)
	whereSQL, whereArgs := u.whereSQL()
	sql += whereSQL
	args = append(args, whereArgs...)
	if err := ValidateSQL(sql); err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

// ---- DELETE ----

type Delete struct {
	conditions
	table string
}

func NewDelete(ctx context.Context, wl TableWhitelist) *Delete {
	return &Delete{conditions: conditions{ctx: ctx, wl: wl}}
}

func (d *Delete) From(table string) *Delete {
	if d.checkTable(table) {
		d.table = table
	}
	return d
}

func (d *Delete) Where(column, operator string, value Binding) *Delete {
	d.where(column, operator, value)
	return d
}

func (d *Delete) ToSQL() (string, []Binding, error) {
	if d.err != nil {
		return "", nil, d.err
	}
	if d.table == "" {
		return "", nil, ErrEmptyQuery
	}
	if len(d.wheres) == 0 {
		// An unbounded DELETE is always a bug.
		return "", nil, fmt.Errorf("%w: delete requires a where clause", ErrEmptyQuery)
	}
	whereSQL, args := d.whereSQL()
	sql := "DELETE FROM " + d.table + whereSQL
	if err := ValidateSQL(sql); err != nil {
		return "", nil, err
	}
	return sql, args, nil
}
