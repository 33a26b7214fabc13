package query

import (
	"fmt"
	"strconv"
	"strings"

	"go.miragespace.co/sqlrepo/spec/store"
)

// Statement is SQL text with its positional bind values.
type Statement struct {
	SQL    string
	Params []store.Value
}

func quote(ident string) (string, error) {
	if err := store.CheckIdentifier(ident); err != nil {
		return "", err
	}
	return `"` + ident + `"`, nil
}

func quoteAll(idents []string) ([]string, error) {
	out := make([]string, len(idents))
	for i, ident := range idents {
		q, err := quote(ident)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return "?" + strings.Repeat(",?", n-1)
}

func insert(verb, table string, r store.Record) (Statement, error) {
	t, err := quote(table)
	if err != nil {
		return Statement{}, err
	}
	if len(r) == 0 {
		return Statement{SQL: verb + " INTO " + t + " DEFAULT VALUES"}, nil
	}
	cols, err := quoteAll(r.Columns())
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL: verb + " INTO " + t +
			" (" + strings.Join(cols, ",") + ")" +
			" VALUES (" + placeholders(len(cols)) + ")",
		Params: r.Values(),
	}, nil
}

// Insert inserts every column of r, binding values in record order.
func Insert(table string, r store.Record) (Statement, error) {
	return insert("INSERT", table, r)
}

// InsertOrReplace is Insert where a row with a conflicting key is replaced.
func InsertOrReplace(table string, r store.Record) (Statement, error) {
	return insert("INSERT OR REPLACE", table, r)
}

// Update sets every column of r except id. The id is bound last, for the WHERE clause.
func Update(table string, r store.Record) (Statement, error) {
	t, err := quote(table)
	if err != nil {
		return Statement{}, err
	}
	id, ok := r.Get(store.IDColumn)
	if !ok || id == nil {
		return Statement{}, store.ErrMissingIdentifier
	}
	props := r.Without(store.IDColumn)
	if len(props) == 0 {
		return Statement{}, fmt.Errorf("%w: no columns to update", store.ErrInvalidColumn)
	}
	cols, err := quoteAll(props.Columns())
	if err != nil {
		return Statement{}, err
	}
	for i := range cols {
		cols[i] += "=?"
	}
	return Statement{
		SQL:    "UPDATE " + t + " SET " + strings.Join(cols, ",") + ` WHERE "id"=?`,
		Params: append(props.Values(), id),
	}, nil
}

// Destroy deletes by id; the caller binds the id.
func Destroy(table string) (string, error) {
	t, err := quote(table)
	if err != nil {
		return "", err
	}
	return "DELETE FROM " + t + ` WHERE "id"=?`, nil
}

func DestroyAll(table string) (string, error) {
	t, err := quote(table)
	if err != nil {
		return "", err
	}
	return "DELETE FROM " + t, nil
}

// Find selects by id; the caller binds the id.
func Find(table string) (string, error) {
	t, err := quote(table)
	if err != nil {
		return "", err
	}
	return "SELECT * FROM " + t + ` WHERE "id"=? LIMIT 1`, nil
}

// Query selects rows matching spec. Bind values come from Params(spec).
func Query(table string, spec store.QuerySpec) (string, error) {
	t, err := quote(table)
	if err != nil {
		return "", err
	}
	where, err := whereClause(spec.Where)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(t)
	b.WriteString(where)

	if err := writeOrder(&b, spec.OrderBy); err != nil {
		return "", err
	}

	if spec.Limit != nil {
		if *spec.Limit < 0 {
			return "", fmt.Errorf("%w: negative limit %d", store.ErrInvalidColumn, *spec.Limit)
		}
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*spec.Limit))
	}
	return b.String(), nil
}

// Count counts rows matching the predicates. Bind values come from Params.
func Count(table string, where []store.Predicate) (string, error) {
	t, err := quote(table)
	if err != nil {
		return "", err
	}
	w, err := whereClause(where)
	if err != nil {
		return "", err
	}
	return "SELECT COUNT(*) AS " + `"count"` + " FROM " + t + w, nil
}

// Params flattens predicate values into positional parameters, in the same
// left-to-right order the predicates appear in the generated WHERE clause.
func Params(spec store.QuerySpec) []store.Value {
	return whereParams(spec.Where)
}

func whereParams(where []store.Predicate) []store.Value {
	params := make([]store.Value, 0, len(where))
	for _, p := range where {
		switch {
		case p.Op == store.OpIn:
			params = append(params, p.Values...)
		case p.Value == nil && (p.Op == store.OpEq || p.Op == store.OpNe):
		default:
			params = append(params, p.Value)
		}
	}
	return params
}

func whereClause(where []store.Predicate) (string, error) {
	if len(where) == 0 {
		return "", nil
	}
	preds := make([]string, len(where))
	for i, p := range where {
		col, err := quote(p.Column)
		if err != nil {
			return "", err
		}
		switch p.Op {
		case store.OpEq, store.OpNe:
			if p.Value == nil {
				if p.Op == store.OpEq {
					preds[i] = col + " IS NULL"
				} else {
					preds[i] = col + " IS NOT NULL"
				}
				continue
			}
			preds[i] = col + " " + string(p.Op) + " ?"
		case store.OpGt, store.OpGte, store.OpLt, store.OpLte, store.OpLike:
			preds[i] = col + " " + string(p.Op) + " ?"
		case store.OpIn:
			if len(p.Values) == 0 {
				preds[i] = "0 = 1"
				continue
			}
			preds[i] = col + " IN (" + placeholders(len(p.Values)) + ")"
		default:
			return "", fmt.Errorf("%w: unknown operator %q on %q", store.ErrInvalidColumn, p.Op, p.Column)
		}
	}
	return " WHERE " + strings.Join(preds, " AND "), nil
}

func writeOrder(b *strings.Builder, order []store.Order) error {
	b.WriteString(" ORDER BY ")
	if len(order) == 0 {
		b.WriteString(`"id" ASC`)
		return nil
	}
	for i, o := range order {
		col, err := quote(o.Column)
		if err != nil {
			return err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col)
		if o.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
	return nil
}

// CreateTable declares the table from schema when it does not exist yet.
func CreateTable(schema store.Schema) (string, error) {
	t, err := quote(schema.Table)
	if err != nil {
		return "", err
	}
	defs := make([]string, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		col, err := quote(c.Name)
		if err != nil {
			return "", err
		}
		if c.Name == store.IDColumn {
			defs = append(defs, col+" INTEGER PRIMARY KEY AUTOINCREMENT")
			continue
		}
		defs = append(defs, col+" "+string(c.Type))
	}
	return "CREATE TABLE IF NOT EXISTS " + t + " (" + strings.Join(defs, ", ") + ")", nil
}
