// Package ddl defines a small, backend-agnostic model for SQL DDL and renders
// CREATE/DROP TABLE statements from it.
//
// A Dialect supplies identifier quoting and the physical type of each
// logical column kind. The zero Dialect quotes nothing and leaves SQLType as
// given, which is what BuildCreateTableSQL uses.
package ddl

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/ypatankar/datalake/internal/schema"
)

// Dialect describes how one SQL backend spells DDL.
type Dialect struct {
	Name string
	// Quote quotes a single identifier. Nil means no quoting.
	Quote func(ident string) string
	// Types maps column kinds to SQL types.
	Types map[schema.Kind]string
	// KeyTypes overrides Types for primary-key columns, for backends that
	// cannot index unbounded text.
	KeyTypes map[schema.Kind]string
}

// Ident quotes one identifier.
func (d Dialect) Ident(s string) string {
	if d.Quote == nil {
		return s
	}
	return d.Quote(s)
}

// FQN quotes every dot-separated part of a possibly schema-qualified name.
func (d Dialect) FQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.Ident(p)
	}
	return strings.Join(parts, ".")
}

// FromTable builds the definition of t under the name fqn. The unique key
// becomes the primary key.
func (d Dialect) FromTable(t schema.Table, fqn string) TableDef {
	def := TableDef{FQN: fqn, Columns: make([]ColumnDef, 0, len(t.Columns))}
	for _, c := range t.Columns {
		pk := t.IsKey(c.Name)
		typ := d.Types[c.Kind]
		if kt, ok := d.KeyTypes[c.Kind]; ok && pk {
			typ = kt
		}
		def.Columns = append(def.Columns, ColumnDef{
			Name:       c.Name,
			SQLType:    typ,
			Nullable:   c.Nullable && !pk,
			PrimaryKey: pk,
		})
	}
	return def
}

// DropTableSQL renders DROP TABLE IF EXISTS for fqn.
func (d Dialect) DropTableSQL(fqn string) string {
	return "DROP TABLE IF EXISTS " + d.FQN(strings.TrimSpace(fqn)) + ";"
}

// CreateTableSQL renders a CREATE TABLE statement from t.
//
// A column is rendered as "<Name> <SQLType> [NOT NULL]"; columns marked
// PrimaryKey are collected into a trailing PRIMARY KEY (...) clause.
func (d Dialect) CreateTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", errors.New("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", errors.New("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", errors.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", errors.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(d.Ident(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, d.Ident(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf(
		"CREATE TABLE %s (\n  %s\n);",
		d.FQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// BuildCreateTableSQL renders t without quoting.
func BuildCreateTableSQL(t TableDef) (string, error) {
	return Dialect{}.CreateTableSQL(t)
}
