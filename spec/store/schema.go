package store

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name can be used as a table or column name.
func ValidIdentifier(name string) bool {
	return identifierRegex.MatchString(name)
}

// CheckIdentifier returns ErrInvalidColumn when name is not a valid identifier.
func CheckIdentifier(name string) error {
	if !ValidIdentifier(name) {
		return fmt.Errorf("%w: %q is not a valid identifier", ErrInvalidColumn, name)
	}
	return nil
}

type ColumnType string

const (
	Integer ColumnType = "INTEGER"
	Real    ColumnType = "REAL"
	Text    ColumnType = "TEXT"
	Blob    ColumnType = "BLOB"
)

// ParseColumnType accepts the engine type names case-insensitively.
func ParseColumnType(s string) (ColumnType, error) {
	switch ColumnType(strings.ToUpper(strings.TrimSpace(s))) {
	case Integer, "INT":
		return Integer, nil
	case Real, "FLOAT", "DOUBLE":
		return Real, nil
	case Text, "STRING":
		return Text, nil
	case Blob, "BYTES":
		return Blob, nil
	default:
		return "", fmt.Errorf("unknown column type %q", s)
	}
}

type Column struct {
	Name string
	Type ColumnType
}

// Schema declares a table and its columns. The id column is implicit.
type Schema struct {
	Table   string
	Columns []Column
}

// NewSchema validates the declaration and prepends the implicit id column
// when it was not declared.
func NewSchema(table string, columns ...Column) (Schema, error) {
	if err := CheckIdentifier(table); err != nil {
		return Schema{}, err
	}
	seen := make(map[string]bool, len(columns)+1)
	cols := make([]Column, 0, len(columns)+1)
	hasID := false
	for _, c := range columns {
		if c.Name == IDColumn {
			hasID = true
			break
		}
	}
	if !hasID {
		cols = append(cols, Column{Name: IDColumn, Type: Integer})
		seen[IDColumn] = true
	}
	for _, c := range columns {
		if err := CheckIdentifier(c.Name); err != nil {
			return Schema{}, err
		}
		if seen[c.Name] {
			return Schema{}, fmt.Errorf("%w: duplicate column %q", ErrInvalidColumn, c.Name)
		}
		switch c.Type {
		case Integer, Real, Text, Blob:
		default:
			return Schema{}, fmt.Errorf("%w: column %q has unknown type %q", ErrInvalidColumn, c.Name, c.Type)
		}
		if c.Name == IDColumn && c.Type != Integer {
			return Schema{}, fmt.Errorf("%w: id column must be INTEGER", ErrInvalidColumn)
		}
		seen[c.Name] = true
		cols = append(cols, c)
	}
	return Schema{Table: table, Columns: cols}, nil
}

func (s Schema) Has(column string) bool {
	_, ok := s.Column(column)
	return ok
}

func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// CheckRecord ensures every column of r is declared.
func (s Schema) CheckRecord(r Record) error {
	for _, f := range r {
		if !s.Has(f.Column) {
			return fmt.Errorf("%w: %q is not a column of %s", ErrInvalidColumn, f.Column, s.Table)
		}
	}
	return nil
}

// CheckQuery ensures every predicate and ordering references a declared column.
func (s Schema) CheckQuery(q QuerySpec) error {
	for _, p := range q.Where {
		if !s.Has(p.Column) {
			return fmt.Errorf("%w: %q is not a column of %s", ErrInvalidColumn, p.Column, s.Table)
		}
	}
	for _, o := range q.OrderBy {
		if !s.Has(o.Column) {
			return fmt.Errorf("%w: %q is not a column of %s", ErrInvalidColumn, o.Column, s.Table)
		}
	}
	return nil
}
