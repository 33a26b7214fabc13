package store

type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "<>"
	OpGt   Op = ">"
	OpGte  Op = ">="
	OpLt   Op = "<"
	OpLte  Op = "<="
	OpLike Op = "LIKE"
	OpIn   Op = "IN"
)

// ParseOp maps the comparison names used in query options to operators.
func ParseOp(name string) (Op, bool) {
	switch name {
	case "eq", "=", "==":
		return OpEq, true
	case "neq", "ne", "<>", "!=":
		return OpNe, true
	case "gt", ">":
		return OpGt, true
	case "gteq", "gte", ">=":
		return OpGte, true
	case "lt", "<":
		return OpLt, true
	case "lteq", "lte", "<=":
		return OpLte, true
	case "like":
		return OpLike, true
	case "in":
		return OpIn, true
	}
	return "", false
}

// Predicate compares one column. Values is used by OpIn, Value by everything else.
type Predicate struct {
	Column string
	Op     Op
	Value  Value
	Values []Value
}

func Eq(column string, v Value) Predicate  { return Predicate{Column: column, Op: OpEq, Value: v} }
func Ne(column string, v Value) Predicate  { return Predicate{Column: column, Op: OpNe, Value: v} }
func Gt(column string, v Value) Predicate  { return Predicate{Column: column, Op: OpGt, Value: v} }
func Gte(column string, v Value) Predicate { return Predicate{Column: column, Op: OpGte, Value: v} }
func Lt(column string, v Value) Predicate  { return Predicate{Column: column, Op: OpLt, Value: v} }
func Lte(column string, v Value) Predicate { return Predicate{Column: column, Op: OpLte, Value: v} }

func Like(column string, pattern string) Predicate {
	return Predicate{Column: column, Op: OpLike, Value: pattern}
}

func In(column string, vs ...Value) Predicate {
	return Predicate{Column: column, Op: OpIn, Values: vs}
}

type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// QuerySpec selects rows: predicates are combined with AND, rows are ordered
// by OrderBy (by id when empty) and truncated to Limit when set.
type QuerySpec struct {
	Where   []Predicate
	Limit   *int
	OrderBy []Order
}

// Limit returns a pointer suitable for QuerySpec.Limit.
func Limit(n int) *int {
	return &n
}
