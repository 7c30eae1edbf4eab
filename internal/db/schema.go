package db

import (
	"io/fs"
	"sort"
	"strings"
)

// GetSchemaSQL returns the concatenated up migrations, in version order.
//
// Repository tests load the schema through this function rather than
// declaring tables of their own, so a column referenced by a repository but
// missing from the migrations fails the tests with "no such column".
func GetSchemaSQL() string {
	names, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	if err != nil {
		panic(err)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		data, err := migrationFS.ReadFile(n)
		if err != nil {
			panic(err)
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String()
}
