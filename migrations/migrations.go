// Package migrations embeds the schema files applied by `duebot migrate`.
package migrations

import (
	"embed"
	"strings"
)

//go:embed *.sql
var FS embed.FS

const (
	MySQL      = "001_init.sql"
	ClickHouse = "clickhouse.sql"
)

// Statements splits a schema file into single statements so it can be run
// without the driver's multiStatements option.
func Statements(name string) ([]string, error) {
	b, err := FS.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, stmt := range strings.Split(string(b), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
