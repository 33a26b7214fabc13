package store

// IDColumn is the implicit identity column every table carries.
const IDColumn = "id"

type Field struct {
	Column string
	Value  Value
}

// Record is an ordered mapping from column name to value.
type Record []Field

// R builds a Record from alternating column/value pairs. It panics on an odd
// number of arguments or a non-string column.
func R(pairs ...any) Record {
	if len(pairs)%2 != 0 {
		panic("store: R requires column/value pairs")
	}
	r := make(Record, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		col, ok := pairs[i].(string)
		if !ok {
			panic("store: R column must be a string")
		}
		r = append(r, Field{Column: col, Value: pairs[i+1]})
	}
	return r
}

func (r Record) Get(column string) (Value, bool) {
	for _, f := range r {
		if f.Column == column {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of column, appending it when absent.
func (r Record) Set(column string, value Value) Record {
	for i := range r {
		if r[i].Column == column {
			r[i].Value = value
			return r
		}
	}
	return append(r, Field{Column: column, Value: value})
}

// Without returns a copy of r with column removed.
func (r Record) Without(column string) Record {
	out := make(Record, 0, len(r))
	for _, f := range r {
		if f.Column != column {
			out = append(out, f)
		}
	}
	return out
}

func (r Record) Columns() []string {
	cols := make([]string, len(r))
	for i, f := range r {
		cols[i] = f.Column
	}
	return cols
}

func (r Record) Values() []Value {
	vals := make([]Value, len(r))
	for i, f := range r {
		vals[i] = f.Value
	}
	return vals
}

// ID returns the identity of the record if it carries a non-zero integer id.
func (r Record) ID() (int64, bool) {
	v, ok := r.Get(IDColumn)
	if !ok {
		return 0, false
	}
	n, err := Normalize(v)
	if err != nil {
		return 0, false
	}
	id, ok := n.(int64)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// Result is what a write statement reports back. LastInsertID is only
// meaningful after an INSERT.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}
