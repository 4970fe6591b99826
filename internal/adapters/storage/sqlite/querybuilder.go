package sqlite

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern restricts table and column identifiers the builder will
// accept. Anything else fails the build, which callers treat as a signal to
// fall back to a raw statement.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// selectBuilder assembles simple parameterized SELECT statements.
type selectBuilder struct {
	table   string
	columns []string
	wheres  []string
	args    []any
	orderBy string
	limit   int
}

// newSelectBuilder starts a builder for one table.
func newSelectBuilder(table string) *selectBuilder {
	return &selectBuilder{table: table}
}

// Columns sets the selected columns.
func (b *selectBuilder) Columns(columns ...string) *selectBuilder {
	b.columns = columns
	return b
}

// Where appends one AND-joined condition with its arguments.
func (b *selectBuilder) Where(condition string, args ...any) *selectBuilder {
	b.wheres = append(b.wheres, condition)
	b.args = append(b.args, args...)
	return b
}

// OrderBy sets the ordering clause.
func (b *selectBuilder) OrderBy(clause string) *selectBuilder {
	b.orderBy = clause
	return b
}

// Limit caps the result count. Zero or negative means no limit clause.
func (b *selectBuilder) Limit(limit int) *selectBuilder {
	b.limit = limit
	return b
}

// Build renders the statement and its argument list.
func (b *selectBuilder) Build() (string, []any, error) {
	if !identifierPattern.MatchString(b.table) {
		return "", nil, fmt.Errorf("invalid table identifier: %q", b.table)
	}
	if len(b.columns) == 0 {
		return "", nil, fmt.Errorf("no columns selected")
	}
	for _, column := range b.columns {
		if !identifierPattern.MatchString(column) {
			return "", nil, fmt.Errorf("invalid column identifier: %q", column)
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)
	if len(b.wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.wheres, " AND "))
	}
	if b.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.orderBy)
	}
	args := append([]any(nil), b.args...)
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	return sb.String(), args, nil
}
