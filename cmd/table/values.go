package table

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.miragespace.co/sqlrepo/spec/store"
)

// NullLiteral is how a NULL is written on the command line.
const NullLiteral = "NULL"

func parseValue(col store.Column, raw string) (store.Value, error) {
	if raw == NullLiteral {
		return nil, nil
	}
	switch col.Type {
	case store.Integer:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q expects an integer, got %q", store.ErrTypeMismatch, col.Name, raw)
		}
		return n, nil
	case store.Real:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q expects a number, got %q", store.ErrTypeMismatch, col.Name, raw)
		}
		return f, nil
	case store.Blob:
		b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: column %q expects hex, got %q", store.ErrTypeMismatch, col.Name, raw)
		}
		return b, nil
	default:
		return raw, nil
	}
}

// parseAssignments turns col=value pairs into a record.
func parseAssignments(schema store.Schema, pairs []string) (store.Record, error) {
	r := make(store.Record, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expecting column=value, got %q", pair)
		}
		col, ok := schema.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a column of %s", store.ErrInvalidColumn, name, schema.Table)
		}
		v, err := parseValue(col, raw)
		if err != nil {
			return nil, err
		}
		r = r.Set(name, v)
	}
	return r, nil
}

// parsePredicate reads column:op:value. The value of in is comma separated.
func parsePredicate(schema store.Schema, s string) (store.Predicate, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return store.Predicate{}, fmt.Errorf("expecting column:op:value, got %q", s)
	}
	col, ok := schema.Column(parts[0])
	if !ok {
		return store.Predicate{}, fmt.Errorf("%w: %q is not a column of %s", store.ErrInvalidColumn, parts[0], schema.Table)
	}
	op, ok := store.ParseOp(parts[1])
	if !ok {
		return store.Predicate{}, fmt.Errorf("unknown operator %q", parts[1])
	}
	if op == store.OpIn {
		var vals []store.Value
		for _, raw := range strings.Split(parts[2], ",") {
			if raw == "" {
				continue
			}
			v, err := parseValue(col, raw)
			if err != nil {
				return store.Predicate{}, err
			}
			vals = append(vals, v)
		}
		return store.In(col.Name, vals...), nil
	}
	if op == store.OpLike {
		return store.Like(col.Name, parts[2]), nil
	}
	v, err := parseValue(col, parts[2])
	if err != nil {
		return store.Predicate{}, err
	}
	return store.Predicate{Column: col.Name, Op: op, Value: v}, nil
}

func parsePredicates(schema store.Schema, ss []string) ([]store.Predicate, error) {
	preds := make([]store.Predicate, 0, len(ss))
	for _, s := range ss {
		p, err := parsePredicate(schema, s)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// parseOrder reads column or column:asc|desc.
func parseOrder(ss []string) ([]store.Order, error) {
	order := make([]store.Order, 0, len(ss))
	for _, s := range ss {
		name, dir, _ := strings.Cut(s, ":")
		switch strings.ToLower(dir) {
		case "", "asc":
			order = append(order, store.Asc(name))
		case "desc":
			order = append(order, store.Desc(name))
		default:
			return nil, fmt.Errorf("unknown order direction %q", dir)
		}
	}
	return order, nil
}

// rowRecord converts a decoded YAML row. Columns are sorted by name since
// mappings decode without order.
func rowRecord(row map[string]any) store.Record {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	r := make(store.Record, 0, len(cols))
	for _, c := range cols {
		r = append(r, store.Field{Column: c, Value: row[c]})
	}
	return r
}
