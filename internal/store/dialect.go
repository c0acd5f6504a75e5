package store

import (
	"strconv"
	"strings"
)

type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// appended to row reads that precede a write to the same row
	lockSuffix  string
	schema      string
	tableExists string
}

var sqliteDialect = dialect{
	name:        "sqlite",
	schema:      sqliteSchema,
	tableExists: "SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
}

var postgresDialect = dialect{
	name:        "postgres",
	numbered:    true,
	lockSuffix:  " FOR UPDATE",
	schema:      postgresSchema,
	tableExists: "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'schema_version'",
}

// rebind rewrites ? placeholders for drivers that need numbered parameters.
// Queries in this package never contain a literal question mark.
func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
